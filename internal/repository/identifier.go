package repository

import (
	"regexp"
	"strings"

	"BarLake/pkg/apperr"
)

var (
	symbolPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.&-]{0,31}$`)
	prefixPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,15}$`)
)

// SymbolTable maps a symbol onto its table name: the prefix followed by
// the lower-cased symbol with every character outside [a-z0-9_] replaced
// by an underscore and runs of underscores collapsed to one. Symbols
// outside the allow-list are rejected.
func SymbolTable(prefix, symbol string) (string, error) {
	s := strings.TrimSpace(symbol)
	if !symbolPattern.MatchString(s) {
		return "", apperr.Validation("symbol_table", "symbol %q must match %s", symbol, symbolPattern.String())
	}

	var b strings.Builder
	b.Grow(len(prefix) + len(s))
	b.WriteString(prefix)
	prev := byte(0)
	if prefix != "" {
		prev = prefix[len(prefix)-1]
	}
	for _, r := range strings.ToLower(s) {
		c := byte('_')
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			c = byte(r)
		}
		if c == '_' && prev == '_' {
			continue
		}
		b.WriteByte(c)
		prev = c
	}
	return b.String(), nil
}

func validPrefix(prefix string) bool {
	return prefixPattern.MatchString(prefix) && !strings.Contains(prefix, "__")
}
