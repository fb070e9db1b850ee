package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoRuns is returned when the runs directory holds no run.
var ErrNoRuns = errors.New("no runs found")

func (w Workspace) RunDir(runID string) string {
	return filepath.Join(w.RunsDir(), runID)
}

// ResolveRun maps "last", "" or an explicit id to an existing run.
func (w Workspace) ResolveRun(sel string) (runID, runDir string, err error) {
	sel = strings.TrimSpace(sel)
	if sel == "" || sel == "last" {
		id, err := w.LastRunID()
		if err != nil {
			return "", "", err
		}
		return id, w.RunDir(id), nil
	}
	if sel != filepath.Base(sel) {
		return "", "", fmt.Errorf("invalid run id %q", sel)
	}
	dir := w.RunDir(sel)
	if _, err := os.Stat(dir); err != nil {
		return "", "", fmt.Errorf("run %q not found: %w", sel, err)
	}
	return sel, dir, nil
}

// RunIDs lists run directories in id order, which is also time order.
func (w Workspace) RunIDs() ([]string, error) {
	ents, err := os.ReadDir(w.RunsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", w.RunsDir(), err)
	}
	ids := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (w Workspace) LastRunID() (string, error) {
	ids, err := w.RunIDs()
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w under %s", ErrNoRuns, w.RunsDir())
	}
	return ids[len(ids)-1], nil
}
