package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/client"
	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/output"
	"github.com/jbweber/anvil/internal/resource"
)

var (
	version = "dev"
	commit  = "unknown"
)

// ServerEnv overrides the default --server value.
const ServerEnv = "ANVIL_SERVER"

var (
	configPath   string
	serverURL    string
	token        string
	outputFormat string
	noHeaders    bool
	timeout      time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "anvil",
	Short: "Anvil - uniform lifecycle control for containers and VMs",
	Long: `Anvil gives Docker containers and libvirt virtual machines one set of
lifecycle verbs: start, stop, restart, shutdown, remove, snapshot.

Run "anvil serve" on the host that owns the daemons. Every other command
talks to that server over HTTP.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	serverDefault := os.Getenv(ServerEnv)
	if serverDefault == "" {
		serverDefault = "http://" + config.DefaultListen
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "server configuration file (serve, test-conn)")
	flags.StringVar(&serverURL, "server", serverDefault, "anvil server URL (env "+ServerEnv+")")
	flags.StringVar(&token, "token", "", "API bearer token (env "+config.TokenEnv+")")
	flags.StringVarP(&outputFormat, "output", "o", "table", "output format: table, yaml, json")
	flags.BoolVar(&noHeaders, "no-headers", false, "omit table headers")
	flags.DurationVar(&timeout, "timeout", 5*time.Minute, "request timeout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(testConnCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(shutdownCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runVMCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(volumeCmd)
}

// newLogger builds the process logger from the log section of the config.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newClient builds the API client from the persistent flags.
func newClient() *client.Client {
	t := token
	if t == "" {
		t = os.Getenv(config.TokenEnv)
	}
	return client.New(serverURL, client.Options{
		Token:   t,
		Timeout: timeout,
		Logger:  newLogger(os.Stderr, config.LogConfig{Level: "warn"}),
	})
}

// newFormatter validates -o and returns the matching formatter.
func newFormatter() (output.Formatter, error) {
	if err := output.ValidateFormat(outputFormat); err != nil {
		return nil, err
	}
	return output.NewFormatter(output.Options{
		Format:    output.Format(outputFormat),
		NoHeaders: noHeaders,
	})
}

// render formats the value produced by fn and prints it.
func render(fn func(f output.Formatter) (string, error)) error {
	formatter, err := newFormatter()
	if err != nil {
		return err
	}

	result, err := fn(formatter)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	fmt.Print(result)
	return nil
}

// showResult prints the outcome of a mutating call, or returns its error.
func showResult(res resource.Result, err error) error {
	if err != nil {
		return err
	}
	return render(func(f output.Formatter) (string, error) { return f.FormatResult(res) })
}

// commandContext bounds a client command by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
