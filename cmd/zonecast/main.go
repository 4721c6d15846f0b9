package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/zonecast/internal/cliconfig"
	"github.com/bft-labs/zonecast/pkg/log"
)

const longHelp = `
Post a message to a live page whenever you walk into a geofenced zone.

zonecast runs in two roles:
  serve   keeps one automation session (browser or webhook) alive and posts
          the messages it receives over HTTP, retrying transient failures.
  track   follows a stream of location fixes, evaluates them against a zone
          catalog and sends a message to the server when a zone is entered.

Configuration is read from $HOME/.zonecast/config.toml, then ZONECAST_*
environment variables, then flags.
`

var exampleUsage = strings.TrimSpace(`
  zonecast serve --target-url https://www.instagram.com/<account>/live/
  zonecast serve --actor webhook --webhook-url https://hooks.example.com/T000/B000
  zonecast track --catalog configs/zones.yaml --replay-file walk.jsonl --replay-speed 10
  zonecast track --provider mqtt --mqtt-broker tcp://localhost:1883 --watch
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "zonecast",
		Short:         "Geofence-triggered message dispatch",
		Long:          strings.TrimSpace(longHelp),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.zonecast/config.toml)")

	root.AddCommand(newServeCommand(&cfgPath), newTrackCommand(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "zonecast:", err)
		os.Exit(1)
	}
}

// changedFlags returns the names of flags set on the command line.
func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

// loadFileConfig reads the config file if one exists. A missing default
// file is not an error; a missing explicit one is.
func loadFileConfig(path string) (*cliconfig.FileConfig, error) {
	explicit := path != ""
	if !explicit {
		path = cliconfig.DefaultConfigPath()
	}
	if path == "" || !cliconfig.FileExists(path) {
		if explicit {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		return nil, nil
	}
	fc, err := cliconfig.LoadFileConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &fc, nil
}

func newLogger(level, format string) (*log.ZerologAdapter, error) {
	logger, err := log.NewZerologAdapter(level, format)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(logger log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			logger.Info("received signal, stopping...", log.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
