package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	_ "embed"

	"github.com/rgbkrk/honchkrow/internal/kernel"
	"github.com/rgbkrk/honchkrow/internal/logger"
	"github.com/rgbkrk/honchkrow/internal/store"
)

//go:embed assets/logo.png
var logoPNG []byte

// pinger is implemented by sessions that can report liveness
type pinger interface {
	Ping(ctx context.Context) error
}

// handleRunCell executes code against the session and answers with the
// result envelope. Every failure mode is folded into the envelope; this
// endpoint never surfaces a transport-level fault.
func (s *Server) handleRunCell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Adapter-level faults, including panics, become the same
	// success=false envelope as execution failures
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("Recovered panic in run_cell", logger.Fields{
				"panic": fmt.Sprintf("%v", rec),
			})
			s.writeJSON(w, http.StatusOK, responseFromError(fmt.Sprintf("%v", rec)))
		}
	}()

	var req RunCellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("Failed to decode run_cell request", logger.Fields{
			"error": err.Error(),
		})
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	outcome, err := s.session.Execute(ctx, req.Code)
	if err != nil {
		s.logger.Error("Session fault during execution", logger.Fields{
			"error": err.Error(),
		})
		s.metrics.RecordExecution(true)
		s.writeJSON(w, http.StatusOK, responseFromError(err.Error()))
		return
	}

	s.metrics.RecordExecution(!outcome.Success)

	resp, err := s.assemble(ctx, outcome)
	if err != nil {
		s.logger.Error("Failed to assemble response", logger.Fields{
			"error": err.Error(),
		})
		s.writeJSON(w, http.StatusOK, responseFromError(err.Error()))
		return
	}

	s.logger.Info("Cell executed", logger.Fields{
		"success":  resp.Success,
		"displays": len(resp.Displays),
	})
	s.writeJSON(w, http.StatusOK, resp)
}

// handleVariable returns the formatted representation of a session
// variable. A missing name is a payload-level error with status 200, so
// callers distinguish it by payload shape, not status code.
func (s *Server) handleVariable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Path[len("/api/variable/"):]
	if name == "" {
		s.writeJSON(w, http.StatusOK, ErrorResponse{Error: "variable name required"})
		return
	}

	ctx := r.Context()
	s.metrics.RecordLookup()

	value, err := s.session.Lookup(ctx, name)
	if err != nil {
		var notDefined *kernel.NotDefinedError
		if !errors.As(err, &notDefined) {
			s.logger.Error("Session fault during lookup", logger.Fields{
				"name":  name,
				"error": err.Error(),
			})
		}
		s.writeJSON(w, http.StatusOK, ErrorResponse{Error: err.Error()})
		return
	}

	if err := s.rewriter.Rewrite(ctx, value); err != nil {
		s.logger.Error("Failed to serialize variable", logger.Fields{
			"name":  name,
			"error": err.Error(),
		})
		s.writeJSON(w, http.StatusOK, ErrorResponse{Error: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, value)
}

// handleImage serves stored PNG bytes. Unknown names answer a structured
// 404 payload, the one endpoint where a miss is a status-level error.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Path[len("/images/"):]
	if name == "" {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "image name required"})
		return
	}

	data, err := s.images.Get(r.Context(), name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("Image store fault", logger.Fields{
				"name":  name,
				"error": err.Error(),
			})
			s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to fetch image"})
			return
		}
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "image not found: " + name})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write image response", logger.Fields{
			"error": err.Error(),
		})
	}
}

// handleManifest serves the static plugin descriptor
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(s.manifestJSON); err != nil {
		s.logger.Error("Failed to write manifest", logger.Fields{
			"error": err.Error(),
		})
	}
}

// handleOpenAPI serves the static API schema
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(s.openapiJSON); err != nil {
		s.logger.Error("Failed to write openapi schema", logger.Fields{
			"error": err.Error(),
		})
	}
}

// handleLogo serves the embedded logo image
func (s *Server) handleLogo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(logoPNG); err != nil {
		s.logger.Error("Failed to write logo", logger.Fields{
			"error": err.Error(),
		})
	}
}

// handleHealth returns health status including kernel liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]interface{}{
		"status": "healthy",
	}

	if p, ok := s.session.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			s.logger.Error("Kernel health check failed", logger.Fields{
				"error": err.Error(),
			})
			health["status"] = "unhealthy"
			health["kernel_error"] = err.Error()
			s.writeJSON(w, http.StatusServiceUnavailable, health)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, health)
}

// handleStats returns process counters
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// writeJSON writes a JSON response body
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", logger.Fields{
			"error": err.Error(),
		})
	}
}
