package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/tensor-ninja/agent-fix/internal/repair"
	"github.com/tensor-ninja/agent-fix/internal/rpc"
	"github.com/tensor-ninja/agent-fix/internal/rpc/connectjson"
	repairrpc "github.com/tensor-ninja/agent-fix/internal/rpc/repair"
)

// NewRepairCmd streams a repair run from the daemon.
func NewRepairCmd(opts *Options) *cobra.Command {
	var modelOverride string
	var contextQuery string
	var contextFiles []string

	cmd := &cobra.Command{
		Use:   "repair \"<title>\" \"<description>\"",
		Short: "Ask the daemon to repair a failing piece of code and stream progress",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			title := args[0]
			if strings.TrimSpace(title) == "" {
				return fmt.Errorf("title cannot be empty")
			}
			description := title
			if len(args) == 2 {
				description = args[1]
			}

			snippets, err := loadContextFiles(contextFiles)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sessionID := uuid.NewString()
			reqBody := rpc.RunRepairRequest{
				SessionID:     sessionID,
				CorrelationID: sessionID + "-corr",
				Model:         modelOverride,
				Title:         title,
				Description:   description,
				Context:       snippets,
				ContextQuery:  contextQuery,
			}

			baseURL := daemonURL(cfg.Server.Addr)
			switch strings.ToLower(strings.TrimSpace(cfg.Server.Transport)) {
			case "ndjson":
				return repairNDJSON(ctx, cmd, baseURL+"/repair/run", reqBody)
			default:
				return repairConnect(ctx, cmd, baseURL+repairrpc.ConnectRunProcedure, reqBody)
			}
		},
	}

	cmd.Flags().StringVar(&modelOverride, "model", "", "Override the repair model for this run")
	cmd.Flags().StringVar(&contextQuery, "context-query", "", "Retrieve similar indexed documents for this query and attach them")
	cmd.Flags().StringSliceVar(&contextFiles, "context", nil, "Local files to attach as context (repeatable or comma-separated)")
	return cmd
}

func loadContextFiles(paths []string) ([]repair.ContextSnippet, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	snippets := make([]repair.ContextSnippet, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read context %s: %w", p, err)
		}
		snippets = append(snippets, repair.ContextSnippet{Identifier: p, Content: string(data)})
	}
	return snippets, nil
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func repairNDJSON(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.RunRepairRequest) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
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
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var evt rpc.RepairEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := renderEvent(cmd, evt); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func repairConnect(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.RunRepairRequest) error {
	client := connect.NewClient[rpc.RepairStreamRequest, rpc.RepairEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.RepairStreamRequest{Run: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	go func() {
		<-ctx.Done()
		_ = stream.Send(&rpc.RepairStreamRequest{Cancel: true, SessionID: reqBody.SessionID, CorrelationID: reqBody.CorrelationID})
		_ = stream.CloseRequest()
	}()

	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := renderEvent(cmd, *evt); err != nil {
			return err
		}
	}
	_ = stream.CloseRequest()
	return stream.CloseResponse()
}

func renderEvent(cmd *cobra.Command, evt rpc.RepairEvent) error {
	out := cmd.OutOrStdout()
	switch evt.Type {
	case "token":
		fmt.Fprint(out, evt.Token+" ")
	case "message":
		fmt.Fprintln(out, evt.Message)
	case "progress":
		fmt.Fprintf(out, "[%s] %s\n", evt.Kind, evt.Message)
	case "done":
		fmt.Fprintln(out, evt.Message)
		if evt.Outcome != nil && evt.Outcome.Success {
			fmt.Fprintln(out, "\nFixed code:")
			fmt.Fprintln(out, evt.Outcome.Code)
			if len(evt.Outcome.Tests) > 0 {
				fmt.Fprintln(out, "\nVerified by:")
				for _, test := range evt.Outcome.Tests {
					fmt.Fprintf(out, "  %s\n", test)
				}
			}
		}
	case "error":
		return fmt.Errorf("daemon error: %s", evt.Error)
	}
	return nil
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
