package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tensor-ninja/agent-fix/internal/rpc"
)

// NewIndexCmd asks the daemon to rebuild its similarity index.
func NewIndexCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "index [files...]",
		Short: "Rebuild the daemon's similarity index from files or its workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			reqBody := rpc.IndexRequest{}
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				reqBody.Documents = append(reqBody.Documents, rpc.IndexDocument{
					Identifier: path,
					Content:    string(data),
				})
			}

			var resp rpc.IndexResponse
			if err := postJSON(cmd, daemonURL(cfg.Server.Addr)+"/index", reqBody, &resp); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d documents\n", resp.Indexed)
			return nil
		},
	}
}

// NewQueryCmd retrieves the indexed documents most similar to a text.
func NewQueryCmd(opts *Options) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "query \"<text>\"",
		Short: "Find indexed documents similar to a text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			var resp rpc.QueryResponse
			reqBody := rpc.QueryRequest{Text: args[0], TopK: topK}
			if err := postJSON(cmd, daemonURL(cfg.Server.Addr)+"/query", reqBody, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Matches) == 0 {
				fmt.Fprintln(out, "No matches")
				return nil
			}
			for _, m := range resp.Matches {
				fmt.Fprintf(out, "%s (score: %.4f)\n", m.Identifier, m.Score)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of matches to return (default: daemon setting)")
	return cmd
}

func postJSON(cmd *cobra.Command, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
