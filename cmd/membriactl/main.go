// Command membriactl is a thin client for the membriad JSON-RPC tool
// surface: it spawns a membriad process and talks to it over stdio,
// sends one request per invocation, and prints the raw result. It holds
// no decision-memory logic of its own — every subcommand is a one-line
// JSON-RPC call, mirroring the teacher's internal/mcp StdioTransport
// subprocess-plus-pipes pattern used here as a client instead of a
// server connector.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

var daemonPath string

var rootCmd = &cobra.Command{
	Use:   "membriactl",
	Short: "thin CLI for the membria decision-memory daemon",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list the tools membriad exposes",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := call("tools/list", nil)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var callCmd = &cobra.Command{
	Use:   "call <tool> <json-args>",
	Short: "invoke a membriad tool with a raw JSON argument object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var toolArgs map[string]any
		if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
			return fmt.Errorf("parse json args: %w", err)
		}
		result, err := call("tools/call", map[string]any{"name": args[0], "arguments": toolArgs})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "check that membriad is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := call("initialize", nil)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&daemonPath, "daemon", "membriad", "path to the membriad binary")
	rootCmd.AddCommand(listCmd, callCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErr         `json:"error,omitempty"`
}

type rpcErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call spawns a single membriad subprocess, writes one JSON-RPC request
// line to its stdin, reads one response line from its stdout, and tears
// the subprocess down. membriactl never holds a persistent connection:
// every invocation is a fresh request/response round trip.
func call(method string, params any) (json.RawMessage, error) {
	cmd := exec.Command(daemonPath, "--stdio-only")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open daemon stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open daemon stdout: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", daemonPath, err)
	}
	defer cmd.Process.Kill()

	req, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := stdin.Write(append(req, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	stdin.Close()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, fmt.Errorf("daemon closed stdout without responding")
	}

	var resp rpcResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("membriad error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

func printJSON(raw json.RawMessage) error {
	var pretty any
	if err := json.Unmarshal(raw, &pretty); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
