package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/cobra"

	"github.com/psantana5/fiobench/internal/broker"
	"github.com/psantana5/fiobench/internal/fio"
	"github.com/psantana5/fiobench/internal/registry"
	"github.com/psantana5/fiobench/internal/shutdown"
	"github.com/psantana5/fiobench/internal/worker"
	"github.com/psantana5/fiobench/pkg/models"
)

var (
	workerGroup     string
	workerDirectory string
	workerHostname  string
	workerJobDir    string
	workerKeepFiles bool
)

// workerCmd registers this node under a group and serves benchmark tasks
// from its private queue until terminated.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Serve benchmark tasks as a worker node",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringVarP(&workerGroup, "group", "g", "", "worker group to register under")
	workerCmd.MarkFlagRequired("group")
	workerCmd.Flags().StringVarP(&workerDirectory, "directory", "d", "", "directory to perform benchmarks on")
	workerCmd.MarkFlagRequired("directory")
	workerCmd.Flags().StringVar(&workerHostname, "hostname", "", "overwrite the node hostname used as worker id")
	workerCmd.Flags().StringVar(&workerJobDir, "job-dir", worker.DefaultJobDir, "directory holding the fio job files")
	workerCmd.Flags().BoolVar(&workerKeepFiles, "keep-files", false, "keep benchmark data files after each task")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redisClient(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	hostname := workerHostname
	if hostname == "" {
		if info, err := host.Info(); err == nil {
			hostname = info.Hostname
		}
	}
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	w, err := worker.New(worker.Config{
		Identity: models.Identity{
			Group:   workerGroup,
			ID:      hostname,
			WorkDir: workerDirectory,
			Cleanup: !workerKeepFiles,
		},
		Hostname: hostname,
		JobDir:   workerJobDir,
	}, registry.New(rdb, 0), broker.New(rdb), fio.NewExecutor(), log)
	if err != nil {
		return err
	}

	// Deregistration runs from the shutdown hook on every exit path.
	mgr := shutdown.New(10*time.Second, log)
	mgr.Register(w.Shutdown)
	defer mgr.Shutdown()

	return w.Serve(ctx)
}
