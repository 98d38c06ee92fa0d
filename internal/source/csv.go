package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"BarLake/internal/domain/models"
)

type CSVReader struct{}

func (CSVReader) Read(r io.Reader, _ int64, name string) (models.RawBatch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return models.RawBatch{Source: name}, nil
	}
	if err != nil {
		return models.RawBatch{}, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	batch := models.RawBatch{Source: name, Columns: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.RawBatch{}, fmt.Errorf("read csv row %d: %w", len(batch.Rows)+2, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		row := make([]*string, len(header))
		for i := range header {
			if i < len(rec) {
				row[i] = models.Cell(rec[i])
			}
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}
