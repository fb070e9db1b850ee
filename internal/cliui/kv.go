package cliui

import (
	"strconv"
	"strings"
)

type KV struct {
	K string
	V string
}

// JoinKV renders pairs as "k=v  k=v", skipping empty keys.
func JoinKV(pairs ...KV) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if strings.TrimSpace(p.K) == "" {
			continue
		}
		parts = append(parts, p.K+"="+p.V)
	}
	return strings.Join(parts, "  ")
}

// Float renders v with prec decimals, trimming trailing zeros.
func Float(v float64, prec int) string {
	s := strconv.FormatFloat(v, 'f', prec, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

// Percent renders part/total as a percentage with one decimal.
func Percent(part, total int) string {
	if total <= 0 {
		return "-"
	}
	return Float(100*float64(part)/float64(total), 1) + "%"
}
