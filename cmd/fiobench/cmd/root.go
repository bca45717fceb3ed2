package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/psantana5/fiobench/internal/logging"
	"github.com/psantana5/fiobench/internal/retry"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	logFile   string

	log *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fiobench",
	Short: "Distributed fio benchmarking for storage fleets",
	Long: `fiobench runs fio storage benchmarks either locally or across a fleet
of worker nodes. Workers register under a group in a shared Redis store and
serve tasks from a private queue; the coordinator triggers benchmark waves
across groups on a schedule or on demand and correlates the results.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = logging.New(logging.Config{
			Level:  logLevel,
			Format: logFormat,
			File:   logFile,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file (default is $HOME/.fiobench/config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format: console or json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this rotating file")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".fiobench"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// Connection parameters for the shared registry/broker store.
	viper.BindEnv("redis_host", "REDIS_HOST")
	viper.BindEnv("redis_port", "REDIS_PORT")
	viper.BindEnv("redis_password", "REDIS_PASSWORD")
	viper.BindEnv("redis_db", "REDIS_DB")
	viper.SetDefault("redis_host", "localhost")
	viper.SetDefault("redis_port", 6379)

	viper.ReadInConfig()
}

// redisClient connects to the shared store, retrying the initial ping so a
// worker that comes up before Redis does not die immediately.
func redisClient(ctx context.Context) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", viper.GetString("redis_host"), viper.GetInt("redis_port"))
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: viper.GetString("redis_password"),
		DB:       viper.GetInt("redis_db"),
	})
	if err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return rdb.Ping(ctx).Err()
	}); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}
