package segment

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/melonattacker/honeycluster/internal/metrics"
	"github.com/melonattacker/honeycluster/internal/model"
	"github.com/melonattacker/honeycluster/internal/taxonomy"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const parseBufSize = 64 * 1024

// Stats summarizes one streamed file.
type Stats struct {
	Sessions  int
	Dropped   int
	Malformed int
	Events    int
}

// Segmenter turns a Cowrie dump into sessions, one at a time.
type Segmenter struct {
	Log     *zap.Logger
	Metrics *metrics.Pipeline
}

func New(log *zap.Logger, m *metrics.Pipeline) *Segmenter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Segmenter{Log: log, Metrics: m}
}

// Stream parses path incrementally and calls fn for every session that has at
// least one interesting event. A broken session entry is logged and skipped;
// a broken file structure returns an error wrapping model.ErrMalformedFile.
// An error returned by fn stops the stream and is returned unchanged.
func (s *Segmenter) Stream(ctx context.Context, path string, fn func(model.Session) error) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Stats{}, model.MissingInput(path)
		}
		return Stats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReaderSize(f, 1<<20)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return Stats{}, fmt.Errorf("%w: %s: gzip: %v", model.ErrMalformedFile, path, err)
		}
		defer zr.Close()
		r = zr
	}
	return s.StreamReader(ctx, Source(path), r, fn)
}

// StreamReader is Stream over an already-decompressed reader.
//
// The top level is split into entries by bracket and string tracking alone,
// and each entry is decoded on its own. A syntax error inside one entry drops
// the rest of that entry only. Unbalanced brackets, an unterminated string or
// a truncated stream are file-level errors.
func (s *Segmenter) StreamReader(ctx context.Context, source string, r io.Reader, fn func(model.Session) error) (Stats, error) {
	var st Stats
	logDate := LogDate(source)

	malformed := func(msg string, fields ...zap.Field) {
		st.Malformed++
		s.Metrics.Malformed("segment")
		s.Log.Warn(msg, append(fields, zap.String("source", source))...)
	}

	var stop error
	visit := func(id string, raw []byte) bool {
		if err := ctx.Err(); err != nil {
			stop = err
			return false
		}
		sess, err := s.decodeSession(source, logDate, id, raw)
		if err != nil {
			malformed("skip malformed session", zap.String("session_id", id), zap.Error(err))
			return true
		}
		st.Events += len(sess.Events)
		if len(sess.Events) == 0 {
			st.Dropped++
			s.Metrics.Session(false)
			return true
		}
		st.Sessions++
		s.Metrics.Session(true)
		if err := fn(sess); err != nil {
			stop = err
			return false
		}
		return true
	}

	sp, err := newSplitter(r)
	if err != nil {
		return st, fmt.Errorf("%w: %s: %v", model.ErrMalformedFile, source, err)
	}
	for n := 0; ; n++ {
		entry, err := sp.next()
		if err == io.EOF {
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("%w: %s: entry %d: %v", model.ErrMalformedFile, source, n, err)
		}
		if sp.object {
			entry = append(append([]byte{'{'}, entry...), '}')
		}

		iter := jsoniter.ParseBytes(jsonAPI, entry)
		if iter.WhatIsNext() != jsoniter.ObjectValue {
			malformed("skip non-object session entry", zap.Int("entry", n))
			continue
		}
		for id := iter.ReadObject(); id != "" && iter.Error == nil; id = iter.ReadObject() {
			raw := iter.SkipAndReturnBytes()
			if iter.Error != nil {
				break
			}
			if !visit(id, raw) {
				return st, stop
			}
		}
		if iter.Error != nil {
			malformed("skip rest of malformed entry", zap.Int("entry", n), zap.Error(iter.Error))
		}
	}
}

// splitter yields the raw top-level entries of a JSON array, or the raw
// "key": value members of a JSON object, without decoding them.
type splitter struct {
	r      *bufio.Reader
	object bool
	closer byte
	done   bool
	buf    []byte
}

func newSplitter(r io.Reader) (*splitter, error) {
	sp := &splitter{r: bufio.NewReaderSize(r, parseBufSize)}
	c, err := sp.skipSpace()
	if err != nil {
		return nil, fmt.Errorf("empty document: %w", err)
	}
	switch c {
	case '[':
		sp.closer = ']'
	case '{':
		sp.object, sp.closer = true, '}'
	default:
		return nil, errors.New("top level is neither an array nor an object")
	}
	_, _ = sp.r.ReadByte()
	return sp, nil
}

// skipSpace consumes whitespace and returns the next byte without consuming it.
func (sp *splitter) skipSpace() (byte, error) {
	for {
		c, err := sp.r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c, sp.r.UnreadByte()
	}
}

// next returns the next entry, or io.EOF after the closing bracket. The
// returned slice is reused by the following call.
func (sp *splitter) next() ([]byte, error) {
	for !sp.done {
		c, err := sp.skipSpace()
		if err != nil {
			return nil, truncated(err)
		}
		switch c {
		case sp.closer:
			sp.done = true
			continue
		case ',':
			_, _ = sp.r.ReadByte()
			continue
		}
		return sp.capture()
	}
	return nil, io.EOF
}

func (sp *splitter) capture() ([]byte, error) {
	sp.buf = sp.buf[:0]
	depth := 0
	inString, escaped := false, false
	for {
		c, err := sp.r.ReadByte()
		if err != nil {
			return nil, truncated(err)
		}
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			sp.buf = append(sp.buf, c)
			continue
		}
		if depth == 0 && (c == ',' || c == sp.closer) {
			return sp.buf, sp.r.UnreadByte()
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			if depth--; depth < 0 {
				return nil, fmt.Errorf("unbalanced %q", c)
			}
		}
		sp.buf = append(sp.buf, c)
	}
}

func truncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (s *Segmenter) decodeSession(source, logDate, id string, raw []byte) (model.Session, error) {
	var events []map[string]any
	if err := jsonAPI.Unmarshal(raw, &events); err != nil {
		return model.Session{}, &model.MalformedRecordError{Source: source, Record: id, Err: err}
	}
	sess := model.Session{ID: id, Source: source, LogDate: logDate}
	if len(events) == 0 {
		return sess, nil
	}
	sess.Start = taxonomy.ParseTimestamp(fmt.Sprint(events[0]["timestamp"]))
	sess.End = taxonomy.ParseTimestamp(fmt.Sprint(events[len(events)-1]["timestamp"]))

	for _, raw := range events {
		ev, ok := taxonomy.Extract(raw)
		if !ok {
			s.Metrics.Event(model.CodeIgnored)
			continue
		}
		s.Metrics.Event(ev.Code)
		sess.Events = append(sess.Events, ev)
	}
	return sess, nil
}
