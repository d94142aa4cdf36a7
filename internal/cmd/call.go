package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rodgomesc/terminal-hook/internal/bridge"
	"github.com/rodgomesc/terminal-hook/internal/config"
	"github.com/rodgomesc/terminal-hook/internal/proxy"
)

var callCmd = &cobra.Command{
	Use:   "call <operation> [arguments-json]",
	Short: "Invoke one operation against a running bridge",
	Long: `Invoke a single operation over the bridge and print the JSON
response. Arguments are passed as one JSON object.

Examples:
  terminal-hook call list-sessions
  terminal-hook call get-output '{"query": "build", "maxLines": 50}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	arguments := map[string]any{}
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &arguments); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	raw, err := invokeOperation(args[0], arguments)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		// Not valid JSON; print it as received.
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
	return nil
}

// responseEnvelope is the client-side view of a bridge response, with the
// result left raw for the caller to decode.
type responseEnvelope struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *bridge.RPCError `json:"error"`
}

// invokeOperation performs one tools/call round trip through the proxy
// and returns the raw response frame.
func invokeOperation(name string, arguments map[string]any) ([]byte, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	frame, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      name,
			"arguments": arguments,
		},
	})
	if err != nil {
		return nil, err
	}

	p := proxy.New(bridgeAddr(cfg), proxy.WithTimeout(cfg.Proxy.Timeout()))
	return p.Forward(frame)
}
