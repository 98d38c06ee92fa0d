package usecase

import (
	"errors"
	"fmt"
	"strings"

	"BarLake/internal/domain/models"
	"BarLake/pkg/apperr"
)

var (
	ErrEmptyBatch     = errors.New("empty batch")
	ErrMissingColumns = errors.New("missing required columns")
	ErrNullValues     = errors.New("null values present")
	ErrDuplicateRows  = errors.New("duplicate rows present")
)

// Validator accepts or rejects a cleaned batch as a whole.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

func (v *Validator) Validate(batch models.CleanBatch) error {
	if batch.Len() == 0 {
		return apperr.New(apperr.KindValidation, "validate", ErrEmptyBatch)
	}

	seen := make(map[string]int, batch.Len())
	for i, row := range batch.Rows {
		if nulls := row.NullColumns(); len(nulls) > 0 {
			return apperr.New(apperr.KindValidation, "validate",
				fmt.Errorf("%w: row %d (%s)", ErrNullValues, i+1, strings.Join(nulls, ", ")))
		}

		bar, _ := row.Bar()
		k := rowKey(bar)
		if first, dup := seen[k]; dup {
			return apperr.New(apperr.KindValidation, "validate",
				fmt.Errorf("%w: rows %d and %d", ErrDuplicateRows, first+1, i+1))
		}
		seen[k] = i
	}
	return nil
}

func rowKey(b models.Bar) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%d",
		b.Symbol, b.Date.Format(models.DateLayout), b.Time,
		b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume)
}

// RejectionReason is a short label for metrics.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyBatch):
		return "empty"
	case errors.Is(err, ErrMissingColumns):
		return "missing_columns"
	case errors.Is(err, ErrNullValues):
		return "nulls"
	case errors.Is(err, ErrDuplicateRows):
		return "duplicates"
	default:
		return "other"
	}
}
