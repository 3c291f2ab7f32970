package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/opsconsole/internal/mcpserver"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

var (
	commandJSON     bool
	commandAdvanced bool
)

var commandCmd = &cobra.Command{
	Use:   "command <text>",
	Short: "Run one direct command",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.dispatcher.Handle(cmd.Context(), protocol.CommandRequest{
			Input:       strings.Join(args, " "),
			UseAdvanced: commandAdvanced,
		})
		out := cmd.OutOrStdout()
		if commandJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		fmt.Fprintln(out, res.Message)
		for _, e := range res.Entities {
			fmt.Fprintf(out, "  %s  %-12s %-10s %s\n", e.ID, e.Type, e.Status, e.Title)
		}
		for _, s := range res.Suggestions {
			fmt.Fprintln(out, "  "+s)
		}
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <text>",
	Short: "Ask a question and stream the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.orchestrator == nil {
			return errors.New("chat is disabled (features.chat = false)")
		}

		out := cmd.OutOrStdout()
		req := protocol.ChatRequest{Message: strings.Join(args, " ")}
		for chunk := range a.orchestrator.Run(ctx, req) {
			switch {
			case chunk.Error != "":
				return errors.New(chunk.Error)
			case chunk.Done:
				fmt.Fprintln(out)
			default:
				fmt.Fprint(out, chunk.Content)
			}
		}
		return ctx.Err()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the tool registry over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if !a.cfg.Features.MCP {
			return errors.New("mcp is disabled (features.mcp = false)")
		}
		return mcpserver.Run(ctx, a.tools, version)
	},
}

func init() {
	commandCmd.Flags().BoolVar(&commandJSON, "json", false, "print the full result as JSON")
	commandCmd.Flags().BoolVar(&commandAdvanced, "advanced", false, "classify with the reasoning service when it is configured")
}
