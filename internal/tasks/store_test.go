package tasks

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTask(name, state string, created time.Time) Task {
	return Task{
		Name:        name,
		Description: "ndvi_2022-01-01_2022-01-06",
		Product:     "ndvi",
		Window:      "2022-01-01_2022-01-06",
		Destination: "drive://earthengine/ndvi_2022-01-01_2022-01-06",
		RequestID:   "req-" + name,
		State:       state,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(" ")
	assert.Error(t, err)
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	created := time.Date(2022, 1, 1, 10, 0, 0, 0, time.UTC)

	want := sampleTask("projects/p/operations/A", "PENDING", created)
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Get(ctx, want.Name)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("task mismatch (-want +got):\n%s", diff)
	}

	_, err = s.Get(ctx, "projects/p/operations/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveUpsertsState(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	created := time.Date(2022, 1, 1, 10, 0, 0, 0, time.UTC)

	task := sampleTask("op", "PENDING", created)
	require.NoError(t, s.Save(ctx, task))

	task.State = "FAILED"
	task.Error = "quota"
	task.Description = "ignored on update"
	task.UpdatedAt = created.Add(time.Hour)
	require.NoError(t, s.Save(ctx, task))

	got, err := s.Get(ctx, "op")
	require.NoError(t, err)
	assert.Equal(t, "FAILED", got.State)
	assert.Equal(t, "quota", got.Error)
	assert.Equal(t, "ndvi_2022-01-01_2022-01-06", got.Description)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, created.Add(time.Hour), got.UpdatedAt)
}

func TestUpdateState(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, sampleTask("op", "RUNNING", now.Add(-time.Hour))))
	require.NoError(t, s.UpdateState(ctx, "op", "SUCCEEDED", ""))

	got, err := s.Get(ctx, "op")
	require.NoError(t, err)
	assert.Equal(t, "SUCCEEDED", got.State)
	assert.Equal(t, now, got.UpdatedAt)

	assert.ErrorIs(t, s.UpdateState(ctx, "nope", "FAILED", ""), ErrNotFound)
}

func TestListFiltersByState(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, sampleTask("c", "SUCCEEDED", base.Add(2*time.Minute))))
	require.NoError(t, s.Save(ctx, sampleTask("a", "PENDING", base)))
	require.NoError(t, s.Save(ctx, sampleTask("b", "RUNNING", base.Add(time.Minute))))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, taskNames(all))

	active, err := s.List(ctx, "PENDING", "RUNNING")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, taskNames(active))

	none, err := s.List(ctx, "CANCELLED")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestManifest(t *testing.T) {
	created := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	tasks := []Task{sampleTask("a", "PENDING", created), sampleTask("b", "RUNNING", created)}

	var buf bytes.Buffer
	require.NoError(t, WriteManifest(&buf, tasks))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "operation,description,product,window,destination,request_id,state"))
	assert.True(t, strings.HasPrefix(lines[1], "a,"))

	back, err := ReadManifest(&buf)
	require.NoError(t, err)
	assert.Equal(t, taskNames(tasks), taskNames(back))
	assert.Equal(t, "RUNNING", back[1].State)
}

func TestSaveManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "manifest.csv")
	require.NoError(t, SaveManifest(path, nil))
	assert.FileExists(t, path)
}

func taskNames(tasks []Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Name)
	}
	return out
}
