// Command mrf-pipeline is the CLI wrapper around the engine: it loads a
// YAML config, builds the output backend, and runs the pipeline pool to
// completion. Config loading, credential resolution, and flag parsing stay
// at this outer layer; the engine underneath never touches the filesystem
// or environment directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/healthrates/mrf-engine/internal/batch"
	"github.com/healthrates/mrf-engine/internal/config"
	"github.com/healthrates/mrf-engine/internal/handler"
	"github.com/healthrates/mrf-engine/internal/orchestrator"
	"github.com/healthrates/mrf-engine/internal/pipeline"
	"github.com/healthrates/mrf-engine/internal/progress"
)

func main() {
	os.Exit(int(run()))
}

func run() pipeline.ExitCode {
	var configPath string
	var noTTY bool

	root := &cobra.Command{
		Use:   "mrf-pipeline",
		Short: "Stream Transparency-in-Coverage MRFs into a canonical rate warehouse",
	}

	exitCode := pipeline.ExitSuccess

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Walk every configured payer's table of contents and normalize its in-network rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				exitCode = pipeline.ExitConfigError
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			installSignalHandler(cancel)

			backend, err := buildBackend(ctx, cfg)
			if err != nil {
				exitCode = pipeline.ExitConfigError
				return err
			}

			var mgr progress.Manager
			if noTTY {
				mgr = progress.NewLogManager()
			} else {
				mgr = progress.NewMPBManager()
			}

			pool := &orchestrator.Pool{
				Config:   cfg,
				Registry: handler.NewRegistry(),
				Backend:  backend,
				Progress: mgr,
			}

			manifests := pool.Run(ctx)
			exitCode = orchestrator.ExitCode(ctx, manifests)

			for _, m := range manifests {
				status := "ok"
				if m.Failed {
					status = "FAILED: " + m.FailureReason
				} else if m.Truncated {
					status = "truncated: " + m.TruncationReason
				}
				fmt.Fprintf(os.Stderr, "%-24s rates=%-8d admitted=%-8d status=%s\n",
					m.Payer, m.RatesEmitted, m.Counters.Admitted, status)
			}
			return nil
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the pipeline YAML configuration")
	runCmd.Flags().BoolVar(&noTTY, "no-tty", false, "use throttled line logging instead of interactive progress bars")

	root.AddCommand(runCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if exitCode == pipeline.ExitSuccess {
			exitCode = pipeline.ExitConfigError
		}
	}
	return exitCode
}

// loadConfig is the one place this binary touches the filesystem for
// configuration; the engine package never does.
func loadConfig(path string) (config.Config, error) {
	cfg := config.Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if len(cfg.PayerEndpoints) == 0 {
		return cfg, fmt.Errorf("config has no payer_endpoints")
	}
	return cfg, nil
}

func buildBackend(ctx context.Context, cfg config.Config) (batch.Backend, error) {
	if cfg.Output.S3 != nil && cfg.Output.S3.Bucket != "" {
		return batch.NewS3Backend(ctx, cfg.Output.S3.Bucket, cfg.Output.S3.Prefix, cfg.Output.S3.Region)
	}
	dir := cfg.Output.LocalDirectory
	if dir == "" {
		dir = "./output"
	}
	return batch.LocalBackend{Root: dir}, nil
}

// installSignalHandler cancels ctx on SIGINT/SIGTERM so every in-flight
// pipeline unwinds cleanly and flushes buffered rows, using a double-signal
// force-quit pattern: a second signal exits immediately without waiting for
// a graceful flush.
func installSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		<-sigCh
		os.Exit(int(pipeline.ExitCancelled))
	}()
}
