// Package mcpserver exposes the tool registry to MCP clients.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/flynn-ai/opsconsole/internal/tools"
	"github.com/flynn-ai/opsconsole/internal/tools/executor"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Name is the implementation name reported to clients.
const Name = "opsconsole"

// New builds an MCP server with one tool per registry entry. Calls run
// through the registry on the mcp channel.
func New(reg *tools.Registry, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: Name, Version: version}, nil)
	for _, def := range reg.Definitions() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        def.Name,
			Description: describe(def),
		}, handler(reg, def.Name))
	}
	return server
}

// Run serves the registry over stdio until ctx is done or the client
// disconnects.
func Run(ctx context.Context, reg *tools.Registry, version string) error {
	log.Info().Int("tools", len(reg.Names())).Msg("mcp server starting on stdio")
	return New(reg, version).Run(ctx, &mcp.StdioTransport{})
}

func handler(reg *tools.Registry, name string) func(context.Context, *mcp.CallToolRequest, map[string]any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in map[string]any) (*mcp.CallToolResult, any, error) {
		ctx = executor.WithChannel(ctx, protocol.ChannelMCP)
		res := reg.Execute(ctx, protocol.ToolCall{Name: name, Arguments: in})
		return result(res), nil, nil
	}
}

// result renders a tool result as text content. Failures carry the
// user-facing message and are flagged as errors.
func result(res protocol.ToolResult) *mcp.CallToolResult {
	if !res.Success {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: res.Error}},
		}
	}
	data, err := json.MarshalIndent(res.Payload, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "could not encode result: " + err.Error()}},
		}
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}
}

// describe appends the parameter contract to the tool description, since
// the input schema is inferred as a free-form object.
func describe(def protocol.ToolDefinition) string {
	if len(def.Parameters) == 0 {
		return def.Description
	}
	names := make([]string, 0, len(def.Parameters))
	for n := range def.Parameters {
		names = append(names, n)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(def.Description)
	sb.WriteString("\n\nParameters:")
	for _, n := range names {
		p := def.Parameters[n]
		req := ""
		if p.Required {
			req = ", required"
		}
		fmt.Fprintf(&sb, "\n- %s (%s%s): %s", n, p.Type, req, p.Description)
		if len(p.Enum) > 0 {
			fmt.Fprintf(&sb, " One of: %s.", strings.Join(p.Enum, ", "))
		}
	}
	return sb.String()
}
