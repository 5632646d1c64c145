package server

import (
	"context"
	"fmt"

	"github.com/rgbkrk/honchkrow/internal/display"
	"github.com/rgbkrk/honchkrow/internal/kernel"
)

// RunCellRequest is the body of POST /api/run_cell
type RunCellRequest struct {
	Code string `json:"code"`
}

// RunCellResponse is the envelope returned from the run-code endpoint.
// All failures are carried in-band; the endpoint itself answers 200.
type RunCellResponse struct {
	Success       bool           `json:"success"`
	ExecuteResult *display.Data  `json:"execute_result,omitempty"`
	Error         string         `json:"error,omitempty"`
	Stdout        string         `json:"stdout"`
	Stderr        string         `json:"stderr"`
	Displays      []display.Data `json:"displays"`
}

// ErrorResponse is the payload-level error shape used by lookup-style
// endpoints
type ErrorResponse struct {
	Error string `json:"error"`
}

// responseFromError builds the failure envelope with the fixed
// explanatory prefix
func responseFromError(detail string) RunCellResponse {
	return RunCellResponse{
		Success:  false,
		Error:    fmt.Sprintf("Error executing code: %s", detail),
		Displays: []display.Data{},
	}
}

// assemble maps one execution outcome into the response envelope. The
// execute result and every display event run through the rewriter, which
// registers inline images as a side effect; stdout and stderr are copied
// verbatim. A failed execution keeps whatever was captured before the
// failure; only the direct result is dropped.
func (s *Server) assemble(ctx context.Context, out *kernel.Outcome) (RunCellResponse, error) {
	resp := RunCellResponse{
		Success:  out.Success,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		Displays: []display.Data{},
	}
	if !out.Success {
		resp.Error = fmt.Sprintf("Error executing code: %s", out.ErrorDetail)
	}

	if out.Success && out.Result != nil {
		if err := s.rewriter.Rewrite(ctx, out.Result); err != nil {
			return RunCellResponse{}, fmt.Errorf("failed to serialize execute result: %w", err)
		}
		resp.ExecuteResult = out.Result
	}

	for i := range out.Displays {
		if err := s.rewriter.Rewrite(ctx, &out.Displays[i]); err != nil {
			return RunCellResponse{}, fmt.Errorf("failed to serialize display %d: %w", i, err)
		}
	}
	resp.Displays = append(resp.Displays, out.Displays...)

	return resp, nil
}
