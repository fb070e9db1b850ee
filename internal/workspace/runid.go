package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var tagSanitizeRe = regexp.MustCompile(`[^a-z0-9._-]+`)

// SanitizeTag turns a free-form label into a run id component.
func SanitizeTag(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = tagSanitizeRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 32 {
		s = strings.TrimRight(s[:32], "-")
	}
	if s == "" {
		return "run"
	}
	return s
}

// NewRunID returns an unused run id under runsDir.
// Format: YYYYMMDD-HHMMSS-<tag>[-N]
func NewRunID(runsDir, tag string, now time.Time) (string, error) {
	base := fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), SanitizeTag(tag))
	id := base
	for i := 2; i <= 1000; i++ {
		p := filepath.Join(runsDir, id)
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return id, nil
			}
			return "", fmt.Errorf("stat %s: %w", p, err)
		}
		id = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("unable to allocate unique run id for base %q", base)
}
