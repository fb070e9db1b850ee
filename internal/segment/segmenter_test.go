package segment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melonattacker/honeycluster/internal/metrics"
	"github.com/melonattacker/honeycluster/internal/model"
)

const sampleDump = `[
 {"s1": [
   {"eventid": "cowrie.session.connect", "timestamp": "2019-05-18T00:00:10.000000Z"},
   {"eventid": "cowrie.client.version", "timestamp": "2019-05-18T00:00:11.000000Z", "version": "b'SSH-2.0-libssh2_1.8.0'"},
   {"eventid": "cowrie.login.failed", "timestamp": "2019-05-18T00:00:12.000000Z", "username": "root", "password": "admin"},
   {"eventid": "cowrie.command.input", "timestamp": "2019-05-18T00:00:13.000000Z", "message": "CMD: uname -a"},
   {"eventid": "cowrie.session.closed", "timestamp": "2019-05-18T00:00:20.000000Z", "geolocation_data": {"country_name": "NL"}}
 ]},
 {"s2": [
   {"eventid": "cowrie.session.connect", "timestamp": "2019-05-18T01:00:00.000000Z"},
   {"eventid": "cowrie.session.closed", "timestamp": "2019-05-18T01:00:01.000000Z"}
 ]},
 {"s3": {"not": "a list"}},
 {"s4": [
   {"eventid": "cowrie.direct-tcpip.data", "timestamp": "2019-05-18T02:00:00Z", "data": "b'\\x16\\x03\\x01\\x00'"}
 ], "s5": []}
]`

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func collect(t *testing.T, s *Segmenter, path string) ([]model.Session, Stats, error) {
	t.Helper()
	var out []model.Session
	st, err := s.Stream(context.Background(), path, func(sess model.Session) error {
		out = append(out, sess)
		return nil
	})
	return out, st, err
}

func TestStreamGzipDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cyberlab_2019-05-18.json.gz")
	writeGzip(t, path, sampleDump)

	m := metrics.New()
	sessions, st, err := collect(t, New(nil, m), path)
	require.NoError(t, err)

	require.Len(t, sessions, 2)
	assert.Equal(t, Stats{Sessions: 2, Dropped: 2, Malformed: 1, Events: 4}, st)

	s1 := sessions[0]
	assert.Equal(t, "s1", s1.ID)
	assert.Equal(t, "cyberlab_2019-05-18", s1.Source)
	assert.Equal(t, "2019-05-18", s1.LogDate)
	assert.Equal(t, 10, s1.Start.Second())
	assert.Equal(t, 20, s1.End.Second())
	require.Len(t, s1.Events, 3)
	assert.Equal(t, model.CodeVersion, s1.Events[0].Code)
	assert.Equal(t, "SSH-2.0-libssh2_1.8.0", s1.Events[0].Version)
	assert.Equal(t, "uname -a", s1.Events[2].Command)

	assert.Equal(t, "TLS_1.0", sessions[1].Events[0].Probe)
}

func TestStreamObjectTopLevel(t *testing.T) {
	doc := `{"a": [{"eventid": "cowrie.command.success", "message": "ls"}], "b": [{"eventid": "cowrie.log.closed"}]}`
	var ids []string
	st, err := New(nil, nil).StreamReader(context.Background(), "x", strings.NewReader(doc), func(s model.Session) error {
		ids = append(ids, s.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
	assert.Equal(t, 1, st.Dropped)
}

func TestStreamMalformedFile(t *testing.T) {
	dir := t.TempDir()

	truncated := filepath.Join(dir, "truncated.json")
	require.NoError(t, os.WriteFile(truncated, []byte(sampleDump[:200]), 0o600))
	_, _, err := collect(t, New(nil, nil), truncated)
	assert.True(t, errors.Is(err, model.ErrMalformedFile), "got %v", err)

	notGzip := filepath.Join(dir, "bad.json.gz")
	require.NoError(t, os.WriteFile(notGzip, []byte("plain"), 0o600))
	_, _, err = collect(t, New(nil, nil), notGzip)
	assert.True(t, errors.Is(err, model.ErrMalformedFile), "got %v", err)

	scalar := filepath.Join(dir, "scalar.json")
	require.NoError(t, os.WriteFile(scalar, []byte(`42`), 0o600))
	_, _, err = collect(t, New(nil, nil), scalar)
	assert.True(t, errors.Is(err, model.ErrMalformedFile), "got %v", err)

	_, _, err = collect(t, New(nil, nil), filepath.Join(dir, "missing.json.gz"))
	assert.True(t, errors.Is(err, model.ErrMissingInput), "got %v", err)
}

func TestStreamSyntaxErrorStaysInsideEntry(t *testing.T) {
	cmd := func(c string) string {
		return `{"eventid": "cowrie.command.input", "timestamp": "2019-05-18T00:00:10Z", "message": "CMD: ` + c + `"}`
	}
	doc := `[
 {"a": [` + cmd("ls") + `]},
 {"b": [{"eventid": "cowrie.command.input", "message": oops}]},
 {"c": [` + cmd("id") + `], "d": [{"eventid": ,}], "e": [` + cmd("pwd") + `]},
 7,
 {"f": [` + cmd("uname") + `, {"note": "brackets ] and braces } in a string"}]}
]`
	var ids []string
	st, err := New(nil, nil).StreamReader(context.Background(), "x", strings.NewReader(doc), func(s model.Session) error {
		ids = append(ids, s.ID)
		return nil
	})
	require.NoError(t, err)
	// "e" shares an entry with the broken "d" and is lost with it.
	assert.Equal(t, []string{"a", "c", "f"}, ids)
	assert.Equal(t, 3, st.Malformed)

	obj := `{"a": [` + cmd("ls") + `], "b": [oops], "c": [` + cmd("id") + `]}`
	ids = nil
	st, err = New(nil, nil).StreamReader(context.Background(), "x", strings.NewReader(obj), func(s model.Session) error {
		ids = append(ids, s.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)
	assert.Equal(t, 1, st.Malformed)

	_, err = New(nil, nil).StreamReader(context.Background(), "x", strings.NewReader(`[{"a": [}]`), func(model.Session) error { return nil })
	assert.ErrorIs(t, err, model.ErrMalformedFile)
}

func TestStreamCallbackErrorStops(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := New(nil, nil).StreamReader(context.Background(), "x", strings.NewReader(sampleDump), func(model.Session) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestStreamHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil, nil).StreamReader(ctx, "x", strings.NewReader(sampleDump), func(model.Session) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSourceAndLogDate(t *testing.T) {
	assert.Equal(t, "cyberlab_2019-05-18", Source("/a/b/cyberlab_2019-05-18.json.gz"))
	assert.Equal(t, "cyberlab_2019-05-18", Source("cyberlab_2019-05-18.jsonl"))
	assert.Equal(t, "2019-05-18", LogDate("/a/cyberlab_2019-05-18.json.gz"))
	assert.Equal(t, "dump", LogDate("dump.json"))
	assert.Equal(t, filepath.Join("c", "x.jsonl"), CleanedPath("c", "/o/x.json.gz"))
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.json.gz", "a.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o600))
	}
	files, err := CollectFiles(dir, InputSuffixes...)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json.gz")}, files)

	_, err = CollectFiles(filepath.Join(dir, "nope"), InputSuffixes...)
	assert.ErrorIs(t, err, model.ErrMissingInput)
}
