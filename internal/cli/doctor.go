package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and daemon reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))
			fmt.Fprintf(out, "Embedding model: %s (%d dims, %d tokens per chunk)\n", cfg.Embedding.Model, cfg.Embedding.Dimensions, cfg.Embedding.ChunkTokens)
			fmt.Fprintf(out, "Sandbox: %s / %s, metrics: %v\n", cfg.Sandbox.PythonBin, cfg.Sandbox.PipBin, cfg.Server.MetricsEnabled)
			fmt.Fprintf(out, "Repair attempts: %d, index top-k: %d\n", cfg.Repair.MaxAttempts, cfg.Index.TopK)

			client := &http.Client{Timeout: 2 * time.Second}
			resp, err := client.Get(daemonURL(cfg.Server.Addr) + "/health")
			if err != nil {
				fmt.Fprintf(out, "Daemon: not reachable at %s (%v)\n", cfg.Server.Addr, err)
				return nil
			}
			defer resp.Body.Close()
			fmt.Fprintf(out, "Daemon: reachable at %s (status %d)\n", cfg.Server.Addr, resp.StatusCode)
			return nil
		},
	}
}
