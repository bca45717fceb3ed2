// Package coordinator triggers benchmark waves across worker groups, on a
// recurring schedule or on demand, and correlates the completions under a
// single wave id.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/psantana5/fiobench/internal/broker"
	"github.com/psantana5/fiobench/internal/registry"
	"github.com/psantana5/fiobench/pkg/models"
)

// DefaultCronSpec triggers a wave every two hours on the hour.
const DefaultCronSpec = "0 */2 * * *"

// DefaultTaskTimeout bounds how long one dispatched task is awaited.
// Timeout semantics otherwise belong to the broker.
const DefaultTaskTimeout = time.Hour

// schedulePoll is the resolution of the scheduling loop.
const schedulePoll = time.Second

// Config is the immutable wave configuration. Build it once, validate it,
// then hand it to New; the scheduler refuses to start without a fully
// populated configuration.
type Config struct {
	// Groups and Filenames are iterated in declaration order.
	Groups    []string
	Filenames []string
	// CronSpec overrides the recurring schedule. Empty selects
	// DefaultCronSpec.
	CronSpec string
	// Quick triggers the next wave immediately after the previous one
	// finished instead of following the schedule.
	Quick bool
	// Runs bounds quick mode; 0 means unlimited.
	Runs int
	// TaskTimeout bounds each Await. Non-positive selects
	// DefaultTaskTimeout.
	TaskTimeout time.Duration
}

// Validate reports the first reason the configuration cannot drive waves.
func (c Config) Validate() error {
	if len(c.Groups) == 0 {
		return errors.New("coordinator: no worker groups configured")
	}
	if len(c.Filenames) == 0 {
		return errors.New("coordinator: no job filenames configured")
	}
	if c.Runs < 0 {
		return errors.New("coordinator: runs must not be negative")
	}
	if _, err := cron.ParseStandard(c.cronSpec()); err != nil {
		return fmt.Errorf("coordinator: invalid schedule %q: %w", c.CronSpec, err)
	}
	return nil
}

func (c Config) cronSpec() string {
	if c.CronSpec == "" {
		return DefaultCronSpec
	}
	return c.CronSpec
}

func (c Config) taskTimeout() time.Duration {
	if c.TaskTimeout <= 0 {
		return DefaultTaskTimeout
	}
	return c.TaskTimeout
}

// Coordinator owns the wave state machine: idle until a trigger, then
// dispatching and collecting, then idle again. One logical thread of
// control drives the schedule; fan-out within a (group, filename) pair is
// the only parallelism it introduces.
type Coordinator struct {
	cfg     Config
	workers *registry.Registry
	broker  *broker.Broker
	log     *zap.Logger

	sched   cron.Schedule
	promReg *prometheus.Registry
	metrics *metrics
}

// New validates cfg and builds a coordinator using the given registry and
// broker clients.
func New(cfg Config, workers *registry.Registry, brk *broker.Broker, log *zap.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sched, err := cron.ParseStandard(cfg.cronSpec())
	if err != nil {
		return nil, fmt.Errorf("coordinator: invalid schedule %q: %w", cfg.CronSpec, err)
	}
	promReg := prometheus.NewRegistry()
	return &Coordinator{
		cfg:     cfg,
		workers: workers,
		broker:  brk,
		log:     log,
		sched:   sched,
		promReg: promReg,
		metrics: newMetrics(promReg),
	}, nil
}

// MetricsGatherer exposes the coordinator's prometheus registry.
func (c *Coordinator) MetricsGatherer() prometheus.Gatherer { return c.promReg }

// Trigger runs one wave. Pairs of (group, filename) are processed in
// declaration order; within one pair all of the group's live workers run
// in parallel, and the next pair starts only after the whole fan-out
// completed. A group with zero live workers dispatches nothing and is not
// an error; a registry lookup failure aborts the wave.
func (c *Coordinator) Trigger(ctx context.Context) (*models.Wave, error) {
	wave := models.NewWave(c.cfg.Groups, c.cfg.Filenames)
	log := c.log.With(zap.String("wave_id", wave.ID))
	log.Info("triggering benchmark wave")
	c.metrics.wavesTriggered.Inc()
	started := time.Now()

	for _, group := range wave.Groups {
		for _, filename := range wave.Filenames {
			ids, err := c.workers.Workers(ctx, group)
			if err != nil {
				return nil, fmt.Errorf("resolve workers for group %q: %w", group, err)
			}
			if len(ids) == 0 {
				log.Warn("group has no live workers",
					zap.String("group", group),
					zap.String("filename", filename))
				continue
			}
			c.dispatchPair(ctx, wave, group, filename, ids, log)
		}
	}

	log.Info("wave complete", zap.Duration("elapsed", time.Since(started)))
	return &wave, nil
}

// dispatchPair fans one (group, filename) pair out to every live worker
// and waits for all of them. A failed task is logged and never cancels its
// siblings; the point of a wave is to collect as much data as possible.
func (c *Coordinator) dispatchPair(ctx context.Context, wave models.Wave, group, filename string, ids []string, log *zap.Logger) {
	var wg sync.WaitGroup
	for _, id := range ids {
		task := models.NewTask(filename, wave, id)
		handle, err := c.broker.Dispatch(ctx, task)
		if err != nil {
			c.metrics.taskFailures.Inc()
			log.Error("dispatch failed",
				zap.String("group", group),
				zap.String("worker", id),
				zap.Error(err))
			continue
		}
		c.metrics.tasksDispatched.Inc()
		log.Info("task dispatched",
			zap.String("group", group),
			zap.String("worker", id),
			zap.String("queue", task.Queue),
			zap.String("filename", filename),
			zap.String("task_id", task.ID))

		wg.Add(1)
		go func() {
			defer wg.Done()
			c.await(ctx, handle, log)
		}()
	}
	wg.Wait()
}

func (c *Coordinator) await(ctx context.Context, handle *broker.Handle, log *zap.Logger) {
	awaitCtx, cancel := context.WithTimeout(ctx, c.cfg.taskTimeout())
	defer cancel()

	completion, err := handle.Await(awaitCtx)
	if err != nil {
		c.metrics.taskFailures.Inc()
		var failure *broker.TaskFailure
		if errors.As(err, &failure) {
			log.Error("task failed",
				zap.String("task_id", failure.TaskID),
				zap.String("queue", failure.Queue),
				zap.String("payload", failure.Payload))
		} else {
			log.Error("await failed", zap.Error(err))
		}
		return
	}

	c.metrics.tasksCompleted.Inc()
	log.Info("task completed",
		zap.String("worker_id", completion.WorkerID),
		zap.String("worker_group", completion.WorkerGroup),
		zap.String("hostname", completion.Hostname),
		zap.String("filename", completion.Filename),
		zap.String("status", completion.Status))
}

// Run drives waves until ctx is cancelled; it never returns under normal
// operation. In quick mode the next wave starts as soon as the previous
// one finished (bounded by Runs); otherwise the schedule is polled about
// once a second. An individual wave failure is logged and scheduling
// continues.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.cfg.Quick {
		return c.runQuick(ctx)
	}

	c.log.Info("coordinator started", zap.String("schedule", c.cfg.cronSpec()))
	next := c.sched.Next(time.Now())
	ticker := time.NewTicker(schedulePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if now.Before(next) {
				continue
			}
			if _, err := c.Trigger(ctx); err != nil {
				c.log.Error("wave failed", zap.Error(err))
			}
			next = c.sched.Next(time.Now())
		}
	}
}

func (c *Coordinator) runQuick(ctx context.Context) error {
	c.log.Info("coordinator started in quick mode", zap.Int("runs", c.cfg.Runs))
	for run := 0; c.cfg.Runs == 0 || run < c.cfg.Runs; run++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.Trigger(ctx); err != nil {
			c.log.Error("wave failed", zap.Error(err))
		}
	}
	return nil
}
