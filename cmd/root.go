// Package cmd implements the CLI commands for snap-confine-go.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"snap-confine-go/logging"
	"snap-confine-go/privs"
)

// Version information set at build time
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// Global flags
var (
	globalLog       string
	globalLogFormat string
	globalDebug     bool
)

// rootCmd is the base command for snap-confine-go.
var rootCmd = &cobra.Command{
	Use:   "snap-confine-go",
	Short: "Confinement launcher for snap applications",
	Long: `snap-confine-go is a privileged helper that confines a snap application
before executing it: it configures the device cgroup for the application's
security tag, records the process in the per-snap tracking hierarchy, drops
privileges and executes the command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command. Diagnostics for a failed invocation
// are formatted only after the effective identity has been lowered.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		privs.MustDropEffective()
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalLog, "log", "", "set the log file path")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "", "set the format for log output (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
}

func setupLogging() {
	var logOutput = os.Stderr
	if globalLog != "" {
		f, err := os.OpenFile(globalLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			logOutput = f
		}
	}

	logLevel := slog.LevelInfo
	if globalDebug {
		logLevel = slog.LevelDebug
	}

	// Humans at a terminal get text; everything else gets json so the
	// init system journal stays machine-readable.
	format := globalLogFormat
	if format == "" {
		if term.IsTerminal(int(logOutput.Fd())) {
			format = "text"
		} else {
			format = "json"
		}
	}

	logging.SetDefault(logging.NewLogger(logging.Config{
		Level:  logLevel,
		Format: format,
		Output: logOutput,
	}))
}
