// Package worker serves benchmark tasks from the private queue bound to
// one registered worker identity.
package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/psantana5/fiobench/internal/broker"
	"github.com/psantana5/fiobench/internal/fio"
	"github.com/psantana5/fiobench/internal/registry"
	"github.com/psantana5/fiobench/pkg/models"
)

// ErrMissingIdentity means serving was attempted before a group and id
// were assigned. The process must not bind a queue without an identity.
var ErrMissingIdentity = errors.New("worker: identity not configured")

// DefaultJobDir is where dispatched tasks look up their job files.
const DefaultJobDir = "job_files"

// consumePoll bounds each blocking queue pop so shutdown is noticed
// between tasks.
const consumePoll = time.Second

// Config describes one worker process.
type Config struct {
	Identity models.Identity
	// Hostname is reported in completion records. Defaults to Identity.ID.
	Hostname string
	// JobDir holds the job files named by dispatched tasks. Defaults to
	// DefaultJobDir.
	JobDir string
	// RenewEvery is the lease heartbeat interval. Non-positive derives a
	// third of the registry's lease TTL.
	RenewEvery time.Duration
}

// Worker consumes its private queue one task at a time: benchmark runs on
// one disk target must never overlap.
type Worker struct {
	cfg      Config
	workers  *registry.Registry
	broker   *broker.Broker
	executor *fio.Executor
	log      *zap.Logger
}

// New validates the identity and builds a worker from explicitly passed
// clients.
func New(cfg Config, workers *registry.Registry, brk *broker.Broker, executor *fio.Executor, log *zap.Logger) (*Worker, error) {
	if cfg.Identity.Group == "" || cfg.Identity.ID == "" {
		return nil, ErrMissingIdentity
	}
	if cfg.Hostname == "" {
		cfg.Hostname = cfg.Identity.ID
	}
	if cfg.JobDir == "" {
		cfg.JobDir = DefaultJobDir
	}
	if cfg.RenewEvery <= 0 {
		cfg.RenewEvery = workers.LeaseTTL() / 3
	}
	return &Worker{
		cfg:      cfg,
		workers:  workers,
		broker:   brk,
		executor: executor,
		log: log.With(
			zap.String("worker_group", cfg.Identity.Group),
			zap.String("worker_id", cfg.Identity.ID)),
	}, nil
}

// Serve registers the identity and consumes the private queue until ctx is
// cancelled. Exactly one task is in flight at a time. Deregistration is
// not done here: callers run Shutdown from their termination hook so it
// covers every exit path.
func (w *Worker) Serve(ctx context.Context) error {
	id := w.cfg.Identity
	if err := w.workers.Register(ctx, id.Group, id.ID); err != nil {
		return err
	}
	w.log.Info("worker registered",
		zap.String("work_dir", id.WorkDir),
		zap.Bool("cleanup", id.Cleanup))

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeat(heartbeatCtx)

	for {
		task, err := w.broker.Consume(ctx, id.ID, consumePoll)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			w.log.Warn("consume failed", zap.Error(err))
			continue
		}
		if task == nil {
			continue
		}
		w.handle(ctx, *task)
	}
}

// Shutdown removes the registration. It is idempotent and safe to call
// from a shutdown hook after Serve returned.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.log.Info("unregistering worker")
	return w.workers.Unregister(ctx, w.cfg.Identity.Group, w.cfg.Identity.ID)
}

func (w *Worker) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.RenewEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.workers.Renew(ctx, w.cfg.Identity.Group, w.cfg.Identity.ID); err != nil {
				w.log.Warn("lease renewal failed", zap.Error(err))
			}
		}
	}
}

// handle executes one task and always publishes a completion record, so
// the dispatcher's await never hangs on a worker-side error.
func (w *Worker) handle(ctx context.Context, task models.Task) {
	log := w.log.With(
		zap.String("task_id", task.ID),
		zap.String("wave_id", task.WaveID),
		zap.String("filename", task.Filename))
	log.Info("task received")

	completion := &models.Completion{
		Status:      models.StatusPassed,
		WorkerID:    w.cfg.Identity.ID,
		WorkerGroup: w.cfg.Identity.Group,
		Hostname:    w.cfg.Hostname,
		WaveID:      task.WaveID,
		TriggeredAt: task.TriggeredAt,
		Filename:    task.Filename,
	}

	result, err := w.runTask(ctx, task)
	if err != nil {
		completion.Status = models.StatusFailed
		completion.Error = err.Error()
		log.Error("benchmark failed", zap.Error(err))
	} else if raw, err := result.JSON(); err != nil {
		completion.Status = models.StatusFailed
		completion.Error = err.Error()
		log.Error("encoding result failed", zap.Error(err))
	} else {
		completion.Result = raw
		log.Info("benchmark finished")
	}

	if err := w.broker.Complete(ctx, task, completion); err != nil {
		log.Error("publishing completion failed", zap.Error(err))
	}
}

func (w *Worker) runTask(ctx context.Context, task models.Task) (*fio.Result, error) {
	config, err := fio.Load(filepath.Join(w.cfg.JobDir, task.Filename))
	if err != nil {
		return nil, err
	}
	result, err := w.executor.Execute(ctx, config, w.cfg.Identity.WorkDir)
	if err != nil {
		return nil, err
	}
	if w.cfg.Identity.Cleanup {
		w.cleanupWorkDir()
	}
	return result, nil
}

// cleanupWorkDir removes the benchmark data files fio left under the work
// directory. Best effort; a leftover file only wastes space.
func (w *Worker) cleanupWorkDir() {
	entries, err := os.ReadDir(w.cfg.Identity.WorkDir)
	if err != nil {
		w.log.Warn("work dir cleanup failed", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(w.cfg.Identity.WorkDir, entry.Name())); err != nil {
			w.log.Warn("removing data file failed",
				zap.String("file", entry.Name()),
				zap.Error(err))
		}
	}
}
