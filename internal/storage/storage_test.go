package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melonattacker/honeycluster/internal/aggregate"
	"github.com/melonattacker/honeycluster/internal/model"
)

func openTemp(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "processed", "features.sqlite")
	db, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

func row(id string, tool, unique float64) FeatureRow {
	fv := model.NeutralFeatureVector()
	fv.ToolSignatures = tool
	fv.UniqueCommandsRatio = unique
	return FeatureRow{SessionID: id, Features: fv}
}

func writeSource(t *testing.T, db *SQLite, source string, rows ...FeatureRow) {
	t.Helper()
	ctx := context.Background()
	b, err := db.BeginSource(ctx, source)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, b.Add(ctx, r))
	}
	require.NoError(t, b.Commit(ctx))
}

func TestSourceBatchAndMarker(t *testing.T) {
	ctx := context.Background()
	db, path := openTemp(t)

	done, err := db.IsProcessed(ctx, "a")
	require.NoError(t, err)
	assert.False(t, done)

	writeSource(t, db, "a", row("s1", 0.5, 1), row("s2", 0, 0.2))
	done, err = db.IsProcessed(ctx, "a")
	require.NoError(t, err)
	assert.True(t, done)

	n, err := db.CountFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	files, err := db.ProcessedFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 2, files[0].Sessions)

	// Rolled-back batches leave neither rows nor a marker.
	b, err := db.BeginSource(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, b.Add(ctx, row("x", 1, 1)))
	require.NoError(t, b.Rollback())
	done, err = db.IsProcessed(ctx, "b")
	require.NoError(t, err)
	assert.False(t, done)
	n, err = db.CountFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, db.Close())
	ro, err := OpenSQLiteReadOnly(path)
	require.NoError(t, err)
	defer ro.Close()
	n, err = ro.CountFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOpenReadOnlyMissing(t *testing.T) {
	_, err := OpenSQLiteReadOnly(filepath.Join(t.TempDir(), "none.sqlite"))
	assert.ErrorIs(t, err, model.ErrMissingInput)
}

func TestIterateAndLoadFeatures(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)

	start := time.Date(2019, 5, 18, 0, 0, 0, 0, time.UTC)
	r := NewFeatureRow(model.Session{ID: "t", Source: "a", LogDate: "2019-05-18", Start: start, End: start.Add(time.Second)}, model.NeutralFeatureVector())
	writeSource(t, db, "a", r, row("s1", 0.501, 1), row("s2", 0.499, 1), row("s3", 0.2, 0.3))

	var chunks []int
	require.NoError(t, db.IterateFeatures(ctx, 3, func(b []FeatureRow) error {
		chunks = append(chunks, len(b))
		return nil
	}))
	assert.Equal(t, []int{3, 1}, chunks)

	all, err := db.LoadFeatures(ctx, LoadOptions{Chunk: 2})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "t", all[0].SessionID)
	assert.Equal(t, "2019-05-18", all[0].LogDate)
	assert.Equal(t, start.UnixNano(), all[0].StartTS)
	assert.Equal(t, 0.501, all[1].Features.ToolSignatures)

	deduped, err := db.LoadFeatures(ctx, LoadOptions{Dedupe: true})
	require.NoError(t, err)
	require.Len(t, deduped, 3)
	assert.Equal(t, "s1", deduped[1].SessionID)
	assert.Equal(t, 0.5, deduped[1].Features.ToolSignatures)
	assert.Equal(t, "s3", deduped[2].SessionID)
}

func TestReprocessReplacesSourceRows(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)
	writeSource(t, db, "a", row("s1", 0, 0), row("s2", 0, 0))
	writeSource(t, db, "a", row("s1", 1, 1))

	n, err := db.CountFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSummaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)

	names := []string{model.FeatErrorRate, model.FeatInterCommandTiming}
	sum, err := aggregate.Summarize(names, [][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}}, []int{0, 1, 1, aggregate.NoiseLabel})
	require.NoError(t, err)
	require.NoError(t, db.SaveSummary(ctx, "run1", "global", sum))
	require.NoError(t, db.SaveSummary(ctx, "run1", "global", sum))

	got, err := db.LoadSummary(ctx, "run1", "global")
	require.NoError(t, err)
	assert.Equal(t, []string{model.FeatInterCommandTiming, model.FeatErrorRate}, got.Names)
	assert.Equal(t, 1, got.Noise)
	assert.Equal(t, 4, got.Total)
	require.Len(t, got.Clusters, 2)
	assert.Equal(t, 1, got.Clusters[0].ID)
	assert.Equal(t, 2, got.Clusters[0].Size)
	assert.Equal(t, 5.0, got.Clusters[0].Features[0].Mean)
	assert.Equal(t, 4.0, got.Clusters[0].Features[1].Mean)

	views, err := db.SummaryViews(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, []string{"global"}, views)

	_, err = db.LoadSummary(ctx, "run1", "nope")
	assert.Error(t, err)
}

func TestAssignments(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)
	as := []Assignment{{"a", "1", 0}, {"a", "2", 1}, {"a", "3", 1}, {"b", "1", -1}}
	require.NoError(t, db.SaveAssignments(ctx, "run1", "density", as))
	counts, err := db.AssignmentCounts(ctx, "run1", "density")
	require.NoError(t, err)
	assert.Equal(t, []ClusterCount{{1, 2}, {-1, 1}, {0, 1}}, counts)
}

func TestCSVExports(t *testing.T) {
	sum, err := aggregate.Summarize([]string{"x"}, [][]float64{{1}, {2}, {9}}, []int{0, 0, aggregate.NoiseLabel})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteSummaryCSV(&buf, sum))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "cluster_id,size,feature,mean,std,min,median,max", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0,2,x,1.5,"))
	assert.Equal(t, "-1,1,,,,,,", lines[2])

	rows := []FeatureRow{{Source: "a", SessionID: "1"}, {Source: "a", SessionID: "2"}}
	buf.Reset()
	require.NoError(t, WriteAssignmentsCSV(&buf, rows, []string{"global", "temporal"}, map[string][]int{
		"global":   {0, 1},
		"temporal": {2, 2},
	}))
	assert.Equal(t, "source,session_id,global,temporal\na,1,0,2\na,2,1,2\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteProjectionCSV(&buf, rows, [][]float64{{0.5, 1}, {-0.5, 2}}, []int{0, 1}))
	assert.Equal(t, "source,session_id,cluster_id,pc1,pc2\na,1,0,0.5,1\na,2,1,-0.5,2\n", buf.String())

	assert.Error(t, WriteProjectionCSV(&buf, rows, nil, nil))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "x.csv")
	require.NoError(t, WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("ok"))
		return err
	}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(b))

	boom := errors.New("boom")
	err = WriteFileAtomic(filepath.Join(t.TempDir(), "y.csv"), func(io.Writer) error { return boom })
	assert.ErrorIs(t, err, boom)
}
