package models

import "time"

// GapRecord is the later bar of a consecutive pair whose timestamps are
// further apart than the gap threshold.
type GapRecord struct {
	Boundary Bar
	Previous time.Time
	Delta    time.Duration
}

type FillMode string

const (
	// FillMissing synthesizes every absent minute between the pair.
	FillMissing FillMode = "missing"
	// FillBoundary synthesizes a single row at the boundary timestamp.
	FillBoundary FillMode = "boundary"
)
