package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/psantana5/fiobench/internal/broker"
	"github.com/psantana5/fiobench/internal/fio"
	"github.com/psantana5/fiobench/internal/registry"
	"github.com/psantana5/fiobench/pkg/models"
)

const testJobFile = "[global]\nruntime=1\n\n[seqread]\nrw=read\n"

type harness struct {
	workers *registry.Registry
	broker  *broker.Broker
	jobDir  string
	workDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	jobDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, "job.ini"), []byte(testJobFile), 0o644))

	return &harness{
		workers: registry.New(rdb, 30*time.Second),
		broker:  broker.New(rdb),
		jobDir:  jobDir,
		workDir: t.TempDir(),
	}
}

func stubBinary(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fio")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

// startWorker runs Serve in the background and stops it when the test ends.
func startWorker(t *testing.T, h *harness, script string, cleanup bool) *Worker {
	t.Helper()
	w, err := New(Config{
		Identity: models.Identity{Group: "A", ID: "w1", WorkDir: h.workDir, Cleanup: cleanup},
		JobDir:   h.jobDir,
	}, h.workers, h.broker, &fio.Executor{Binary: stubBinary(t, script)}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Serve(ctx)
	return w
}

func dispatchAndAwait(t *testing.T, h *harness) (*models.Completion, error) {
	t.Helper()
	wave := models.NewWave([]string{"A"}, []string{"job.ini"})
	task := models.NewTask("job.ini", wave, "w1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	handle, err := h.broker.Dispatch(ctx, task)
	require.NoError(t, err)
	return handle.Await(ctx)
}

func TestNewRequiresIdentity(t *testing.T) {
	h := newHarness(t)
	log := zaptest.NewLogger(t)
	executor := fio.NewExecutor()

	_, err := New(Config{}, h.workers, h.broker, executor, log)
	if !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("New() error = %v, want ErrMissingIdentity", err)
	}
	_, err = New(Config{Identity: models.Identity{Group: "A"}}, h.workers, h.broker, executor, log)
	if !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("New() without id error = %v, want ErrMissingIdentity", err)
	}
}

func TestServeRegistersAndShutdownUnregisters(t *testing.T) {
	h := newHarness(t)
	w := startWorker(t, h, `echo '{"jobs":[]}'`, false)
	ctx := context.Background()

	require.Eventually(t, func() bool {
		ids, err := h.workers.Workers(ctx, "A")
		return err == nil && len(ids) == 1 && ids[0] == "w1"
	}, 3*time.Second, 50*time.Millisecond, "worker never appeared in the registry")

	require.NoError(t, w.Shutdown(ctx))
	ids, err := h.workers.Workers(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestServeExecutesAndCompletes(t *testing.T) {
	h := newHarness(t)
	startWorker(t, h,
		`echo '{"jobs":[{"jobname":"seqread","read":{"io_bytes":4096}}]}'`, false)

	completion, err := dispatchAndAwait(t, h)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPassed, completion.Status)
	assert.Equal(t, "w1", completion.WorkerID)
	assert.Equal(t, "A", completion.WorkerGroup)
	assert.Equal(t, "w1", completion.Hostname, "hostname defaults to the worker id")
	assert.Equal(t, "job.ini", completion.Filename)
	assert.Empty(t, completion.Error)

	result, err := fio.ParseResult(completion.Result)
	require.NoError(t, err)
	assert.Equal(t, []string{"seqread"}, result.JobNames())
}

func TestFailedRunPublishesFailedCompletion(t *testing.T) {
	h := newHarness(t)
	startWorker(t, h, `echo "io setup failed" >&2; exit 1`, false)

	_, err := dispatchAndAwait(t, h)
	var failure *broker.TaskFailure
	require.ErrorAs(t, err, &failure)
	require.NotNil(t, failure.Completion)
	assert.Equal(t, models.StatusFailed, failure.Completion.Status)
	assert.Contains(t, failure.Completion.Error, "io setup failed")
	assert.Nil(t, failure.Completion.Result)
}

func TestMissingJobFileFailsTask(t *testing.T) {
	h := newHarness(t)
	startWorker(t, h, `echo '{"jobs":[]}'`, false)

	wave := models.NewWave([]string{"A"}, []string{"ghost.ini"})
	task := models.NewTask("ghost.ini", wave, "w1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	handle, err := h.broker.Dispatch(ctx, task)
	require.NoError(t, err)

	_, err = handle.Await(ctx)
	var failure *broker.TaskFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, models.StatusFailed, failure.Completion.Status)
	assert.Contains(t, failure.Completion.Error, "ghost.ini")
}

func TestCleanupRemovesDataFiles(t *testing.T) {
	h := newHarness(t)
	startWorker(t, h,
		`touch "$3/seqread.0.0"
echo '{"jobs":[]}'`, true)

	completion, err := dispatchAndAwait(t, h)
	require.NoError(t, err)
	require.Equal(t, models.StatusPassed, completion.Status)

	entries, err := os.ReadDir(h.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "benchmark data files must be removed after the run")
}

func TestKeepFilesLeavesDataInPlace(t *testing.T) {
	h := newHarness(t)
	startWorker(t, h,
		`touch "$3/seqread.0.0"
echo '{"jobs":[]}'`, false)

	completion, err := dispatchAndAwait(t, h)
	require.NoError(t, err)
	require.Equal(t, models.StatusPassed, completion.Status)

	entries, err := os.ReadDir(h.workDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "seqread.0.0", entries[0].Name())
}
