package coordinator

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// metrics counts wave and task lifecycle events. Counters only; the raw
// benchmark numbers live in the completion records, not here.
type metrics struct {
	wavesTriggered  prometheus.Counter
	tasksDispatched prometheus.Counter
	tasksCompleted  prometheus.Counter
	taskFailures    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		wavesTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fiobench_waves_triggered_total",
			Help: "Benchmark waves triggered.",
		}),
		tasksDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fiobench_tasks_dispatched_total",
			Help: "Tasks dispatched to worker queues.",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fiobench_tasks_completed_total",
			Help: "Tasks that returned a passed completion record.",
		}),
		taskFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fiobench_task_failures_total",
			Help: "Tasks that failed to dispatch, timed out or returned a failure.",
		}),
	}
	reg.MustRegister(m.wavesTriggered, m.tasksDispatched, m.tasksCompleted, m.taskFailures)
	return m
}

// ServeMetrics exposes /metrics and /healthz on addr until ctx is
// cancelled.
func ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, log *zap.Logger) error {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
