package http

import (
	"time"

	"BarLake/pkg/util"
)

// ParseDateParam parses a date path or query value in any layout
// util.ParseDate accepts.
func ParseDateParam(field, value string) (time.Time, *AppError) {
	d, ok := util.ParseDate(value)
	if !ok {
		e := BadRequestErrorf("%s %q is not a date", field, value)
		e.Field = field
		return time.Time{}, e
	}
	return d, nil
}

// QueryBool reads a boolean query flag, falling back to def when absent
// or unparseable.
func QueryBool(raw string, def bool) bool {
	switch raw {
	case "1", "true", "TRUE", "True", "yes":
		return true
	case "0", "false", "FALSE", "False", "no":
		return false
	default:
		return def
	}
}
