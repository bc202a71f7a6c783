// Package cmd provides the CLI commands for the kube-devops-operator.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	dryRun  bool
	verbose bool
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "operator",
	Short: "kube-devops-operator - Kubernetes governance controller",
	Long: `kube-devops-operator observes workload pods across one or more
clusters, evaluates them against a declarative DevOpsPolicy resource, and
either audits violations or enforces them by patching the parent workload.
It also serves as an admission gate that rejects non-compliant pods at
creation time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false,
		"report what would change without mutating the cluster")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose (debug) logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"path to operator configuration file (defaults apply when omitted)")
}

// setupLogging configures structured JSON logging via slog, honoring
// RUST_LOG-style filter overrides when present (§6).
func setupLogging() error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if filter := os.Getenv("RUST_LOG"); filter != "" {
		switch filter {
		case "debug", "trace":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	if dryRun {
		slog.Info("dry-run mode enabled", "action", "mutating cluster actions are disabled; read-only calls still occur")
	}
	return nil
}

// IsDryRun returns whether dry-run mode is enabled.
func IsDryRun() bool { return dryRun }

// ConfigPath returns the --config flag value.
func ConfigPath() string { return cfgFile }
