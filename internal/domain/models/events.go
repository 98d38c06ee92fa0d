package models

import "time"

const (
	EventBarsIngested = "bars.ingested"
	EventBarsRepaired = "bars.repaired"
)

type IngestedEvent struct {
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	Symbol     string    `json:"symbol"`
	Rows       int       `json:"rows"`
	Inserted   int64     `json:"inserted"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Synthetic  bool      `json:"synthetic"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RepairedEvent lists the timestamps that were fabricated so downstream
// consumers can tell them apart from observed bars.
type RepairedEvent struct {
	Type       string      `json:"type"`
	Symbol     string      `json:"symbol"`
	Gaps       int         `json:"gaps"`
	Inserted   int64       `json:"inserted"`
	Synthetic  []time.Time `json:"synthetic_timestamps"`
	OccurredAt time.Time   `json:"occurred_at"`
}
