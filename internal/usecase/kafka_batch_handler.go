package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"BarLake/internal/domain/models"
	"BarLake/pkg/apperr"
	pkgkafka "BarLake/pkg/kafka"
)

// KafkaBatchHandler ingests raw batches published on a topic. The message
// body is {"source": "...", "columns": [...], "rows": [[...], ...]} where
// cells may be strings, numbers or null.
type KafkaBatchHandler struct {
	topic    string
	ingestor *Ingestor
}

var _ pkgkafka.MessageHandler = (*KafkaBatchHandler)(nil)

func NewKafkaBatchHandler(topic string, ingestor *Ingestor) *KafkaBatchHandler {
	return &KafkaBatchHandler{topic: topic, ingestor: ingestor}
}

func (h *KafkaBatchHandler) Topic() string { return h.topic }

// Handle returns a non-retryable error for malformed or rejected batches
// so they go to the DLQ at once. Transient storage failures are retried;
// re-inserting already committed groups is a no-op.
func (h *KafkaBatchHandler) Handle(ctx context.Context, b []byte) error {
	raw, err := DecodeRawBatch(b)
	if err != nil {
		return pkgkafka.NonRetryable(err)
	}
	if raw.Source == "" {
		raw.Source = "kafka:" + h.topic
	}

	report, err := h.ingestor.IngestBatch(ctx, raw)
	if err != nil {
		return pkgkafka.NonRetryable(err)
	}
	if err := report.Err(); err != nil {
		if apperr.IsRetryable(err) {
			return err
		}
		return pkgkafka.NonRetryable(err)
	}
	return nil
}

type wireBatch struct {
	Source  string              `json:"source"`
	Columns []string            `json:"columns"`
	Rows    [][]json.RawMessage `json:"rows"`
}

// DecodeRawBatch parses the JSON batch envelope.
func DecodeRawBatch(b []byte) (models.RawBatch, error) {
	var w wireBatch
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return models.RawBatch{}, fmt.Errorf("decode batch: %w", err)
	}
	if len(w.Columns) == 0 {
		return models.RawBatch{}, fmt.Errorf("decode batch: no columns")
	}

	batch := models.RawBatch{Source: w.Source, Columns: w.Columns, Rows: make([][]*string, 0, len(w.Rows))}
	for i, r := range w.Rows {
		row := make([]*string, len(w.Columns))
		for j := 0; j < len(r) && j < len(row); j++ {
			cell, err := decodeCell(r[j])
			if err != nil {
				return models.RawBatch{}, fmt.Errorf("decode batch: row %d col %d: %w", i, j, err)
			}
			row[j] = cell
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

func decodeCell(raw json.RawMessage) (*string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return models.Cell(s), nil
	}
	switch raw[0] {
	case '{', '[':
		return nil, fmt.Errorf("nested value")
	}
	return models.Cell(string(raw)), nil
}
