package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultServerURL = "http://localhost:12212"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// client talks to a running printlink server
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends body as JSON and decodes the JSON reply. Non-2xx replies are
// returned as errors carrying the server's error message.
func (c *client) do(method, path string, body interface{}) (map[string]interface{}, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	if resp.StatusCode >= 300 {
		if msg, ok := out["error"].(string); ok && msg != "" {
			return out, fmt.Errorf("%s", msg)
		}
		return out, fmt.Errorf("server returned %s", resp.Status)
	}
	return out, nil
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var serverURL string
	var asJSON bool

	root := &cobra.Command{
		Use:   "printlink-cli",
		Short: "Drive a running printlink server",
		Long: `printlink-cli sends connection panel commands to a printlink server.
Anything that is not a known subcommand is passed through to the server's
command line, e.g. "printlink-cli mode network".`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServerURL, "Server URL")
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print raw JSON responses")
	root.SetOut(stdout)

	api := func() *client { return newClient(serverURL) }
	emit := func(cmd *cobra.Command, out map[string]interface{}, summary func()) error {
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		summary()
		return nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "exec <command...>",
		Short: "Run a panel command on the server (try 'exec help')",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := api().do(http.MethodPost, "/command", map[string]string{"command": joinArgs(args)})
			if err != nil {
				return err
			}
			return emit(cmd, out, func() { printCommandResult(cmd.OutOrStdout(), out) })
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "state",
		Short: "Show the connection panel state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := api().do(http.MethodGet, "/selector", nil)
			if err != nil {
				return err
			}
			return emit(cmd, out, func() { printState(cmd.OutOrStdout(), out) })
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "build",
		Short: "Print the connection descriptor for the active mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := api().do(http.MethodPost, "/connection", nil)
			if err != nil {
				return err
			}
			return emit(cmd, out, func() { fmt.Fprintln(cmd.OutOrStdout(), out["uri"]) })
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Open the connection and query printer status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := api().do(http.MethodPost, "/connection/test", nil)
			if err != nil {
				return err
			}
			return emit(cmd, out, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "connected to %v\n", out["uri"])
				if status, ok := out["status"].(string); ok && status != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", strings.TrimSpace(status))
				}
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "printers",
		Short: "List printers known to the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := api().do(http.MethodGet, "/printers", nil)
			if err != nil {
				return err
			}
			return emit(cmd, out, func() { printRegistry(cmd.OutOrStdout(), out) })
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "rename <printer-id> <name>",
		Short: "Set a custom name for a printer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args[1:], " ")
			out, err := api().do(http.MethodPost, "/printer/"+args[0]+"/name", map[string]string{"name": name})
			if err != nil {
				return err
			}
			return emit(cmd, out, func() { fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %q\n", args[0], name) })
		},
	})

	// Unknown subcommands are forwarded as panel commands
	root.Args = cobra.ArbitraryArgs
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		out, err := api().do(http.MethodPost, "/command", map[string]string{"command": joinArgs(args)})
		if err != nil {
			return err
		}
		return emit(cmd, out, func() { printCommandResult(cmd.OutOrStdout(), out) })
	}

	return root
}

// joinArgs rebuilds a command line, quoting arguments that contain spaces
func joinArgs(args []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}

func printCommandResult(w io.Writer, out map[string]interface{}) {
	if msg, ok := out["message"].(string); ok && msg != "" {
		fmt.Fprintln(w, msg)
	}
	if printers, ok := out["printers"].([]interface{}); ok {
		fmt.Fprintln(w, "\nPrinters:")
		for _, p := range printers {
			row, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			mark := " "
			if sel, _ := row["selected"].(bool); sel {
				mark = "*"
			}
			fmt.Fprintf(w, " %s [%v] %v\n", mark, row["index"], row["label"])
		}
	}
	if status, ok := out["status"].(string); ok && status != "" {
		fmt.Fprintf(w, "status: %s\n", strings.TrimSpace(status))
	}
}

func printState(w io.Writer, out map[string]interface{}) {
	fmt.Fprintf(w, "mode: %v\n", out["mode"])
	if tls, ok := out["tls"].(map[string]interface{}); ok {
		fmt.Fprintf(w, "tls: host=%q port=%q trust=%v cert=%q\n", tls["host"], tls["port"], tls["trust_mode"], tls["cert_path"])
	}
	if nw, ok := out["network"].(map[string]interface{}); ok {
		fmt.Fprintf(w, "network: host=%q port=%q\n", nw["host"], nw["port"])
	}
	if usb, ok := out["usb_direct"].(map[string]interface{}); ok {
		fmt.Fprintf(w, "usb direct: address=%q\n", usb["address"])
	}
	if drv, ok := out["usb_driver"].(map[string]interface{}); ok {
		entries, _ := drv["entries"].([]interface{})
		fmt.Fprintf(w, "usb driver: %d entr(ies), selected %v\n", len(entries), drv["selected"])
	}
}

func printRegistry(w io.Writer, out map[string]interface{}) {
	printers, _ := out["printers"].([]interface{})
	if len(printers) == 0 {
		fmt.Fprintln(w, "no printers registered")
		return
	}
	for _, p := range printers {
		entry, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		if name == "" {
			name, _ = entry["description"].(string)
		}
		fmt.Fprintf(w, "%v: %s (%v)\n", entry["id"], name, entry["mode"])
	}
}
