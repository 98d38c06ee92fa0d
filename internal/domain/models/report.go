package models

import (
	"encoding/json"
	"errors"
	"time"
)

type SymbolOutcome struct {
	Symbol   string `json:"symbol"`
	Offered  int    `json:"offered"`
	Inserted int64  `json:"inserted"`
	Err      error  `json:"-"`
}

func (o SymbolOutcome) Failed() bool { return o.Err != nil }

func (o SymbolOutcome) MarshalJSON() ([]byte, error) {
	type plain SymbolOutcome
	v := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(o)}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return json.Marshal(v)
}

// IngestReport is the result of one batch.
type IngestReport struct {
	Source   string          `json:"source"`
	Rows     int             `json:"rows"`
	Accepted bool            `json:"accepted"`
	Reason   string          `json:"reason,omitempty"`
	Symbols  []SymbolOutcome `json:"symbols"`
	Duration time.Duration   `json:"-"`
}

func (r *IngestReport) Inserted() int64 {
	var n int64
	for _, s := range r.Symbols {
		n += s.Inserted
	}
	return n
}

func (r *IngestReport) FailedSymbols() []string {
	var out []string
	for _, s := range r.Symbols {
		if s.Failed() {
			out = append(out, s.Symbol)
		}
	}
	return out
}

// Success is true when the batch was accepted and every symbol group committed.
func (r *IngestReport) Success() bool {
	return r.Accepted && len(r.Symbols) > 0 && len(r.FailedSymbols()) == 0
}

// Partial is true when some, but not all, symbol groups failed.
func (r *IngestReport) Partial() bool {
	failed := len(r.FailedSymbols())
	return failed > 0 && failed < len(r.Symbols)
}

// Err joins the per-symbol failures.
func (r *IngestReport) Err() error {
	var errs []error
	for _, s := range r.Symbols {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

// RepairReport is the result of one gap-repair run for a symbol.
type RepairReport struct {
	Symbol      string      `json:"symbol"`
	Scanned     int         `json:"scanned"`
	Gaps        int         `json:"gaps"`
	Synthesized int         `json:"synthesized"`
	Inserted    int64       `json:"inserted"`
	Skipped     bool        `json:"skipped,omitempty"`
	Synthetic   []time.Time `json:"-"`
}

// Success mirrors the boolean result of a repair run.
func (r *RepairReport) Success() bool {
	return r != nil && !r.Skipped
}
