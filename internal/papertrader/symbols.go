package papertrader

import (
	"strings"

	"paper-trading-ledger-go/internal/ledger"
)

// ParseSymbols splits a comma-separated symbol list, dropping blanks and duplicates.
func ParseSymbols(list string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(list, ",") {
		symbol := ledger.NormalizeSymbol(part)
		if symbol == "" {
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		out = append(out, symbol)
	}
	return out
}
