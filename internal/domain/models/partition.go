package models

import (
	"fmt"
	"time"
)

// Partition is a quarter-aligned range [Start, End) of a symbol table.
type Partition struct {
	Table string
	Name  string
	Start time.Time
	End   time.Time
}

// QuarterRange returns the calendar quarter that contains date.
func QuarterRange(date time.Time) (start, end time.Time) {
	date = date.UTC()
	firstMonth := time.Month((int(date.Month())-1)/3*3 + 1)
	start = time.Date(date.Year(), firstMonth, 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 3, 0)
	return start, end
}

// Quarter is 1..4.
func Quarter(date time.Time) int {
	return (int(date.Month())-1)/3 + 1
}

// PartitionFor describes the partition of table that holds date. The
// double underscore before the quarter suffix never occurs in a symbol
// table name, so partitions and tables cannot collide.
func PartitionFor(table string, date time.Time) Partition {
	start, end := QuarterRange(date)
	return Partition{
		Table: table,
		Name:  fmt.Sprintf("%s__%d_q%d", table, start.Year(), Quarter(start)),
		Start: start,
		End:   end,
	}
}

func (p Partition) Contains(date time.Time) bool {
	return !date.Before(p.Start) && date.Before(p.End)
}
