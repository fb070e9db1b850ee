package cliui

import (
	"fmt"
	"strings"
	"time"
)

// FormatTime renders a unix-nanosecond timestamp as "2006-01-02 15:04:05Z".
func FormatTime(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(0, ts).UTC().Format("2006-01-02 15:04:05Z")
}

func FormatTimeFull(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(0, ts).UTC().Format(time.RFC3339Nano)
}

// FormatDuration renders endTS-startTS; open or inverted spans render "-".
func FormatDuration(startTS, endTS int64) string {
	if startTS <= 0 || endTS <= 0 || endTS < startTS {
		return "-"
	}
	d := time.Duration(endTS - startTS)
	if d >= time.Minute {
		return d.Round(time.Second).String()
	}
	return seconds(d)
}

func seconds(d time.Duration) string {
	s := fmt.Sprintf("%.3f", float64(d)/float64(time.Second))
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" {
		s = "0"
	}
	return s + "s"
}
