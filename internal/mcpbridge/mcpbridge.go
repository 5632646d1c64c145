// Package mcpbridge exposes the kernel session over the Model Context
// Protocol, the tool-calling analog of the HTTP plugin surface, so MCP
// clients can run cells and inspect variables without the HTTP API.
package mcpbridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rgbkrk/honchkrow/internal/display"
	"github.com/rgbkrk/honchkrow/internal/kernel"
	"github.com/rgbkrk/honchkrow/internal/logger"
	"github.com/rgbkrk/honchkrow/internal/store"
)

// Bridge adapts a kernel session to MCP tools
type Bridge struct {
	session  kernel.Session
	rewriter *display.Rewriter
	logger   *logger.Logger
}

// Config holds bridge settings
type Config struct {
	Session kernel.Session
	Images  store.ImageStore

	// BaseURL prefixes image links in tool results so MCP clients can
	// fetch them from the HTTP surface
	BaseURL string

	Logger *logger.Logger
}

// RunCellArgs is the input for the run_cell tool
type RunCellArgs struct {
	Code string `json:"code" jsonschema:"the code to execute in the notebook session"`
}

// RunCellResult mirrors the HTTP response envelope
type RunCellResult struct {
	Success       bool           `json:"success"`
	ExecuteResult *display.Data  `json:"execute_result,omitempty"`
	Error         string         `json:"error,omitempty"`
	Stdout        string         `json:"stdout"`
	Stderr        string         `json:"stderr"`
	Displays      []display.Data `json:"displays"`
}

// GetVariableArgs is the input for the get_variable tool
type GetVariableArgs struct {
	Name string `json:"name" jsonschema:"the name of the variable to inspect"`
}

// GetVariableResult carries the formatted value or a lookup error
type GetVariableResult struct {
	Value *display.Data `json:"value,omitempty"`
	Error string        `json:"error,omitempty"`
}

// New creates a bridge over the given session and image store
func New(cfg Config) *Bridge {
	log := cfg.Logger
	if log == nil {
		log = logger.New("info", "text", "mcp")
	}
	images := cfg.Images
	if images == nil {
		images = store.NewMemory()
	}

	return &Bridge{
		session:  cfg.Session,
		rewriter: display.NewRewriter(images, cfg.BaseURL),
		logger:   log,
	}
}

// Server builds the MCP server with the session tools registered
func (b *Bridge) Server() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "notebook_session",
		Title:   "Notebook Session",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "run_cell",
		Description: "Execute code in the live notebook session and capture its output.",
	}, b.runCell)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_variable",
		Description: "Inspect a variable in the notebook session by name.",
	}, b.getVariable)

	return srv
}

// Run serves the bridge over stdio until the client disconnects
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("Starting MCP bridge on stdio", logger.Fields{})
	return b.Server().Run(ctx, &mcp.StdioTransport{})
}

func (b *Bridge) runCell(ctx context.Context, req *mcp.CallToolRequest, args RunCellArgs) (*mcp.CallToolResult, RunCellResult, error) {
	outcome, err := b.session.Execute(ctx, args.Code)
	if err != nil {
		// Session faults stay in-band, matching the HTTP envelope
		return nil, RunCellResult{
			Success:  false,
			Error:    fmt.Sprintf("Error executing code: %v", err),
			Displays: []display.Data{},
		}, nil
	}

	result := RunCellResult{
		Success:  outcome.Success,
		Stdout:   outcome.Stdout,
		Stderr:   outcome.Stderr,
		Displays: []display.Data{},
	}
	if !outcome.Success {
		result.Error = fmt.Sprintf("Error executing code: %s", outcome.ErrorDetail)
	}

	if outcome.Success && outcome.Result != nil {
		if err := b.rewriter.Rewrite(ctx, outcome.Result); err != nil {
			return nil, RunCellResult{Success: false, Error: fmt.Sprintf("Error executing code: %v", err), Displays: []display.Data{}}, nil
		}
		result.ExecuteResult = outcome.Result
	}
	for i := range outcome.Displays {
		if err := b.rewriter.Rewrite(ctx, &outcome.Displays[i]); err != nil {
			return nil, RunCellResult{Success: false, Error: fmt.Sprintf("Error executing code: %v", err), Displays: []display.Data{}}, nil
		}
	}
	result.Displays = append(result.Displays, outcome.Displays...)

	return nil, result, nil
}

func (b *Bridge) getVariable(ctx context.Context, req *mcp.CallToolRequest, args GetVariableArgs) (*mcp.CallToolResult, GetVariableResult, error) {
	value, err := b.session.Lookup(ctx, args.Name)
	if err != nil {
		var notDefined *kernel.NotDefinedError
		if !errors.As(err, &notDefined) {
			b.logger.Error("Session fault during lookup", logger.Fields{
				"name":  args.Name,
				"error": err.Error(),
			})
		}
		return nil, GetVariableResult{Error: err.Error()}, nil
	}

	if err := b.rewriter.Rewrite(ctx, value); err != nil {
		return nil, GetVariableResult{Error: err.Error()}, nil
	}
	return nil, GetVariableResult{Value: value}, nil
}
