// Command murmurctl is the CLI client for murmurd's control surface: it
// issues POST /api/control requests and exits 0 on success, 1 on error.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var daemonAddr string

type controlRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

type controlResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func main() {
	root := &cobra.Command{
		Use:           "murmurctl",
		Short:         "control the murmurd push-to-talk daemon",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&daemonAddr, "addr", "http://127.0.0.1:7700", "murmurd control surface address")

	root.AddCommand(
		simpleCommand("status", "report recording/transcribing/model state"),
		simpleCommand("stop", "stop recording and transcribe the buffered audio"),
		simpleCommand("models", "list available model files"),
		simpleCommand("reload", "reload settings.yaml and re-apply config"),
		argCommand("model", "model <name>", "switch the active transcription model", 1),
		argCommand("continuous", "continuous on|off", "toggle continuous transcription mode", 1),
		argCommand("mic-warm", "mic-warm on|off", "toggle keeping the mic device open between utterances", 1),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func simpleCommand(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(name, nil)
		},
	}
}

func argCommand(name, use, short string, nargs int) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(name, args)
		},
	}
}

func runControl(command string, args []string) error {
	body, err := json.Marshal(controlRequest{Command: command, Args: args})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(daemonAddr+"/api/control", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request to %s: %w", daemonAddr, err)
	}
	defer resp.Body.Close()

	var cr controlResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !cr.OK {
		return fmt.Errorf("%s", cr.Error)
	}
	if len(cr.Result) > 0 {
		fmt.Println(string(cr.Result))
	}
	return nil
}
