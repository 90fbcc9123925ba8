package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/app"
	"github.com/five82/vapor-console/internal/config"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer klog.Flush()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "vapor-console: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	var (
		configPath  string
		prefsPath   string
		logFile     string
		pollSeconds int
	)

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)

	cmd := &cobra.Command{
		Use:   "vapor-console",
		Short: "Terminal console for vapor virtualization and kubernetes resources",
		Long: `An interactive terminal console for a vapor backend. Lists virtual
machines, storage pools, ISO images, networks and pods, runs VM lifecycle
actions, and follows VM state changes over the backend's WebSocket feed.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if logFile == "" {
				logFile = cfg.LogPath()
			}
			if err := logToFile(klogFlags, logFile); err != nil {
				return err
			}
			klog.InfoS("Starting vapor-console", "version", version, "api", cfg.APIURL)

			return app.Run(cmd.Context(), app.Options{
				Config:    &cfg,
				PrefsPath: prefsPath,
				PollEvery: pollSeconds,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "override config path (optional)")
	cmd.Flags().StringVar(&prefsPath, "prefs", "", "override prefs path (optional)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "log destination (defaults to console.log in state_dir)")
	cmd.Flags().IntVar(&pollSeconds, "poll", 0, "refresh interval in seconds (optional, defaults to poll_seconds)")

	klogFlags.VisitAll(func(f *flag.Flag) {
		// The TUI owns the terminal; the log file flags are set from --log-file.
		switch f.Name {
		case "v", "vmodule":
			cmd.Flags().AddFlag(pflag.PFlagFromGoFlag(f))
		}
	})

	return cmd
}

// logToFile sends klog output to path instead of stderr.
func logToFile(fs *flag.FlagSet, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	for name, value := range map[string]string{
		"logtostderr":     "false",
		"alsologtostderr": "false",
		"log_file":        path,
		"one_output":      "true",
	} {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("set klog %s: %w", name, err)
		}
	}
	return nil
}
