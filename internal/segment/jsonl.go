package segment

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/melonattacker/honeycluster/internal/model"
)

// Writer appends cleaned sessions to a JSONL file. Lines go to a temporary
// file that only replaces the final path on Commit.
type Writer struct {
	mu   sync.Mutex
	path string
	tmp  string
	f    *os.File
	w    *bufio.Writer
	n    int
}

func NewWriter(path string) (*Writer, error) {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", tmp, err)
	}
	return &Writer{path: path, tmp: tmp, f: f, w: bufio.NewWriterSize(f, 256*1024)}, nil
}

func (jw *Writer) Append(s model.Session) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	b, err := jsonAPI.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}
	if _, err := jw.w.Write(b); err != nil {
		return err
	}
	if err := jw.w.WriteByte('\n'); err != nil {
		return err
	}
	jw.n++
	return nil
}

// Count is the number of sessions appended so far.
func (jw *Writer) Count() int {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.n
}

// Commit flushes and moves the file into place.
func (jw *Writer) Commit() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.closeLocked(); err != nil {
		_ = os.Remove(jw.tmp)
		return err
	}
	if err := os.Rename(jw.tmp, jw.path); err != nil {
		_ = os.Remove(jw.tmp)
		return fmt.Errorf("rename %s: %w", jw.tmp, err)
	}
	return nil
}

// Abort discards everything written so far.
func (jw *Writer) Abort() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	_ = jw.closeLocked()
	if err := os.Remove(jw.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (jw *Writer) closeLocked() error {
	var ret error
	if jw.w != nil {
		if err := jw.w.Flush(); err != nil {
			ret = err
		}
		jw.w = nil
	}
	if jw.f != nil {
		if err := jw.f.Close(); err != nil && ret == nil {
			ret = err
		}
		jw.f = nil
	}
	return ret
}

// maxLineSize bounds one cleaned session line.
var maxLineSize = 64 * 1024 * 1024

// ReadSessions streams a cleaned JSONL file. Lines that fail to decode are
// passed to onMalformed as *model.MalformedRecordError and skipped. A file
// that cannot be read to the end, or holds a line over maxLineSize, returns
// an error wrapping model.ErrMalformedFile.
func ReadSessions(ctx context.Context, path string, fn func(model.Session) error, onMalformed func(error)) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.MissingInput(path)
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		var s model.Session
		if err := jsonAPI.Unmarshal(b, &s); err != nil {
			if onMalformed != nil {
				onMalformed(&model.MalformedRecordError{Source: path, Record: fmt.Sprintf("line %d", line), Err: err})
			}
			continue
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: %s: line %d: %v", model.ErrMalformedFile, path, line+1, err)
	}
	return nil
}
