package segment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melonattacker/honeycluster/internal/model"
)

func TestWriterCommitAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)

	ts := time.Date(2019, 5, 18, 3, 4, 5, 0, time.UTC)
	in := model.Session{
		ID: "abc", Source: "x", LogDate: "2019-05-18", Start: ts, End: ts.Add(time.Minute),
		Events: []model.Event{
			{Code: model.CodeLoginSuccess, Timestamp: ts, Username: "root", Password: "root"},
			{Code: model.CodeCommandFailed, Timestamp: ts.Add(time.Second), Command: "lss"},
		},
	}
	require.NoError(t, w.Append(in))
	assert.Equal(t, 1, w.Count())

	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "final path must not exist before commit")
	require.NoError(t, w.Commit())

	var got []model.Session
	require.NoError(t, ReadSessions(context.Background(), path, func(s model.Session) error {
		got = append(got, s)
		return nil
	}, nil))
	require.Len(t, got, 1)
	assert.Equal(t, in.ID, got[0].ID)
	assert.True(t, in.Start.Equal(got[0].Start))
	require.Len(t, got[0].Events, 2)
	assert.Equal(t, model.CodeCommandFailed, got[0].Events[1].Code)
	assert.Equal(t, "lss", got[0].Events[1].Command)
}

func TestWriterAbortRemovesPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(model.Session{ID: "a"}))
	require.NoError(t, w.Abort())

	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadSessionsSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.jsonl")
	content := `{"session_id":"a","events":[{"status":-1,"command":"ls"}]}
not json

{"session_id":"b","events":[]}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	var ids []string
	var bad []error
	require.NoError(t, ReadSessions(context.Background(), path, func(s model.Session) error {
		ids = append(ids, s.ID)
		return nil
	}, func(err error) { bad = append(bad, err) }))

	assert.Equal(t, []string{"a", "b"}, ids)
	require.Len(t, bad, 1)
	var rec *model.MalformedRecordError
	require.ErrorAs(t, bad[0], &rec)
	assert.Equal(t, "line 2", rec.Record)

	err := ReadSessions(context.Background(), filepath.Join(t.TempDir(), "none.jsonl"), func(model.Session) error { return nil }, nil)
	assert.ErrorIs(t, err, model.ErrMissingInput)
}

func TestReadSessionsOverlongLine(t *testing.T) {
	defer func(n int) { maxLineSize = n }(maxLineSize)
	maxLineSize = 64 * 1024

	path := filepath.Join(t.TempDir(), "x.jsonl")
	long := `{"session_id":"big","events":[{"command":"` + strings.Repeat("a", 100*1024) + `"}]}`
	content := `{"session_id":"a","events":[]}` + "\n" + long + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	var ids []string
	err := ReadSessions(context.Background(), path, func(s model.Session) error {
		ids = append(ids, s.ID)
		return nil
	}, nil)
	assert.ErrorIs(t, err, model.ErrMalformedFile)
	assert.Equal(t, []string{"a"}, ids)
}
