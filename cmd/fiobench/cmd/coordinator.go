package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/psantana5/fiobench/internal/broker"
	"github.com/psantana5/fiobench/internal/coordinator"
	"github.com/psantana5/fiobench/internal/registry"
)

var (
	coordGroups        []string
	coordFilenames     []string
	coordSchedule      string
	coordTrigger       bool
	coordQuick         bool
	coordRuns          int
	coordTaskTimeout   time.Duration
	coordMetricsListen string
)

// coordinatorCmd drives benchmark waves across the configured worker
// groups.
var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Coordinate benchmark waves across worker groups",
	RunE:  runCoordinator,
}

func init() {
	rootCmd.AddCommand(coordinatorCmd)

	coordinatorCmd.Flags().StringSliceVarP(&coordGroups, "groups", "g", nil, "worker groups to trigger, in order")
	coordinatorCmd.MarkFlagRequired("groups")
	coordinatorCmd.Flags().StringSliceVarP(&coordFilenames, "filenames", "f", nil, "fio job files to dispatch, resolved in the workers' job dir")
	coordinatorCmd.MarkFlagRequired("filenames")
	coordinatorCmd.Flags().StringVar(&coordSchedule, "schedule", coordinator.DefaultCronSpec, "cron schedule for recurring waves")
	coordinatorCmd.Flags().BoolVarP(&coordTrigger, "trigger", "t", false, "trigger one wave immediately and exit")
	coordinatorCmd.Flags().BoolVar(&coordQuick, "quick", false, "start the next wave directly after the previous one finished")
	coordinatorCmd.Flags().IntVar(&coordRuns, "runs", 0, "number of waves in quick mode (0 = unlimited)")
	coordinatorCmd.Flags().DurationVar(&coordTaskTimeout, "task-timeout", coordinator.DefaultTaskTimeout, "how long to await one dispatched task")
	coordinatorCmd.Flags().StringVar(&coordMetricsListen, "metrics-listen", "", "serve prometheus metrics on this address (e.g. :9090)")
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redisClient(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	coord, err := coordinator.New(coordinator.Config{
		Groups:      coordGroups,
		Filenames:   coordFilenames,
		CronSpec:    coordSchedule,
		Quick:       coordQuick,
		Runs:        coordRuns,
		TaskTimeout: coordTaskTimeout,
	}, registry.New(rdb, 0), broker.New(rdb), log)
	if err != nil {
		return err
	}

	if coordMetricsListen != "" {
		go func() {
			if err := coordinator.ServeMetrics(ctx, coordMetricsListen, coord.MetricsGatherer(), log); err != nil {
				log.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	if coordTrigger {
		_, err := coord.Trigger(ctx)
		return err
	}

	if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
