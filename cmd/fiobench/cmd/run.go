package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/fiobench/internal/fio"
)

var (
	runDirectory   string
	runConfig      string
	runPrintReport bool
	runExport      string
)

// runCmd executes a single local benchmark without any cluster involvement.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single local benchmark",
	Long:  `Run one fio benchmark on this machine against the given directory and print the per-job metrics.`,
	RunE:  runBenchmark,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runDirectory, "directory", "d", "", "directory to perform the benchmark on")
	runCmd.MarkFlagRequired("directory")
	runCmd.Flags().StringVarP(&runConfig, "config", "c", "job_files/default.ini", "fio job file to run")
	runCmd.Flags().BoolVar(&runPrintReport, "print-report", false, "print the raw result JSON to stdout")
	runCmd.Flags().StringVar(&runExport, "export", "", "export the result JSON to a file")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	config, err := fio.Load(runConfig)
	if err != nil {
		return err
	}
	config.WriteRuntimeTable(os.Stdout)

	result, err := fio.NewExecutor().Execute(cmd.Context(), config, runDirectory)
	if err != nil {
		var execErr *fio.ExecutionError
		if errors.As(err, &execErr) {
			fmt.Fprint(os.Stderr, execErr.Stderr)
		}
		return err
	}

	result.WriteTable(os.Stdout)
	if runPrintReport {
		data, err := result.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}
	if runExport != "" {
		return result.ExportJSON(runExport)
	}
	return nil
}
