package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/veldtlabs/exportq/queue"
	memqueue "github.com/veldtlabs/exportq/queue/memory"
	redisqueue "github.com/veldtlabs/exportq/queue/redis"
	"github.com/veldtlabs/exportq/store/sqlite"
)

// rootFlags holds the persistent flags shared by all subcommands.
type rootFlags struct {
	dataDir   string
	redisAddr string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "exportq",
		Short: "Durable download-preparation job queue",
		Long: `exportq tracks download-preparation jobs from submission through
completion: clients submit file references, workers bundle them into a
zip artifact, and pollers watch the job until a download URL appears.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if flags.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", defaultDataDir(), "directory for the job database and artifacts")
	cmd.PersistentFlags().StringVar(&flags.redisAddr, "redis", "", "Redis address for the work queue (empty runs the in-process queue)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newSubmitCmd(flags),
		newStatusCmd(flags),
		newListCmd(flags),
		newDLQCmd(flags),
		newWorkerCmd(flags),
	)
	return cmd
}

func defaultDataDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".exportq")
	}
	return ".exportq"
}

// openStore opens the SQLite store under the data directory, creating
// the schema on first use.
func openStore(cmd *cobra.Command, flags *rootFlags) (*sqlite.Store, error) {
	if err := os.MkdirAll(flags.dataDir, 0o755); err != nil {
		return nil, err
	}
	st, err := sqlite.Open(filepath.Join(flags.dataDir, "exportq.db"))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// openQueue returns the Redis queue when an address is configured and
// the in-process queue otherwise. The second return closes it.
func openQueue(flags *rootFlags) (queue.Queue, func()) {
	if flags.redisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: flags.redisAddr})
		q := redisqueue.New(client, redisqueue.WithVisibilityTimeout(3*time.Minute))
		return q, func() { _ = client.Close() }
	}
	q := memqueue.New()
	return q, func() { _ = q.Close() }
}
