package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/five82/jpdict/internal/config"
)

// cliState is shared by every subcommand once the root has loaded config.
type cliState struct {
	configPath string
	logLevel   string
	cfg        config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	st := &cliState{}

	root := &cobra.Command{
		Use:   "jpdict",
		Short: "Japanese dictionary lookup daemon",
		Long: `jpdict keeps a local kanji database up to date, serves word, name and
kanji lookups to content surfaces and reports database state to listeners.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			if st.configPath == "" {
				st.configPath = config.DefaultPath()
			}
			cfg, err := config.Load(st.configPath)
			if err != nil {
				return err
			}
			if st.logLevel != "" {
				cfg.LogLevel = strings.ToLower(st.logLevel)
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			st.cfg = cfg
			st.logger = logger
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&st.configPath, "config", "", "config file (default: ~/.config/jpdict/config.toml)")
	root.PersistentFlags().StringVar(&st.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	_ = root.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(newServeCmd(st))
	root.AddCommand(newWatchCmd(st))
	root.AddCommand(newSearchCmd(st))
	root.AddCommand(newTranslateCmd(st))
	root.AddCommand(newToggleCmd(st))

	return root
}

// newLogger builds the process logger from the configured level and format.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
