package segment

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/melonattacker/honeycluster/internal/model"
)

// Input suffixes accepted by the clean stage.
var InputSuffixes = []string{".json.gz", ".json"}

const CleanedSuffix = ".jsonl"

var logDateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Source is the name of a log without directory or known extensions:
// cyberlab_2019-05-18.json.gz becomes cyberlab_2019-05-18.
func Source(path string) string {
	base := filepath.Base(path)
	for _, suf := range []string{".json.gz", ".jsonl", ".json", ".gz"} {
		if strings.HasSuffix(strings.ToLower(base), suf) {
			return base[:len(base)-len(suf)]
		}
	}
	return base
}

// LogDate extracts the YYYY-MM-DD date embedded in a log name, falling back
// to the source name.
func LogDate(path string) string {
	src := Source(path)
	if m := logDateRe.FindString(src); m != "" {
		return m
	}
	return src
}

// CollectFiles lists regular files under path whose name ends in one of the
// suffixes, sorted. A file path is returned as-is.
func CollectFiles(path string, suffixes ...string) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, model.MissingInput(path)
		}
		return nil, err
	}
	if !fi.IsDir() {
		return []string{path}, nil
	}

	files := make([]string, 0, 8)
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		for _, suf := range suffixes {
			if strings.HasSuffix(name, suf) {
				files = append(files, p)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// CleanedPath is where the cleaned intermediate of input is written.
func CleanedPath(cleanedDir, input string) string {
	return filepath.Join(cleanedDir, Source(input)+CleanedSuffix)
}
