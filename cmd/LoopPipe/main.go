// Command LoopPipe runs the viral-loop trigger pipeline.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/BTreeMap/LoopPipe/internal/config"
	"github.com/BTreeMap/LoopPipe/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions carries state shared by every subcommand.
type rootOptions struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.NewViper()}

	cmd := &cobra.Command{
		Use:           "LoopPipe",
		Short:         "Turn learner activity into personalized, trackable invites",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config.LoadDotEnv()
			cfg, err := config.Load(opts.v, opts.configFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = initializeLogger(cmd.ErrOrStderr(), cfg)
			slog.Debug("LoopPipe: configuration loaded", "state_dir", cfg.State.Dir, "dsn_set", cfg.State.DBDSN != "", "delivery", cfg.Delivery.Service)
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "YAML config file")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("state-dir", "", "state directory for the SQLite database and lock file")
	pf.String("db-dsn", "", `store DSN: SQLite path, PostgreSQL DSN, or "memory"`)
	bindFlags(opts.v, pf, map[string]string{
		"log.level":    "log-level",
		"state.dir":    "state-dir",
		"state.db_dsn": "db-dsn",
	})

	cmd.AddCommand(newServeCmd(opts), newTriggerCmd(opts), newQRCmd(opts))
	return cmd
}

// bindFlags binds each config key to its flag.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			slog.Warn("bindFlags: failed to bind flag", "flag", name, "key", key, "error", err)
		}
	}
}

// initializeLogger installs the process-wide slog logger. LOOPPIPE_DEBUG forces debug level.
func initializeLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if util.ParseBoolEnv("LOOPPIPE_DEBUG", false) {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, hopts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, hopts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
