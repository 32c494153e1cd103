package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/jzx17/genproxy/internal/errors"
	"github.com/jzx17/genproxy/pkg/gemini"
)

// Envelope is the JSON body of every API response except a successful passthrough
type Envelope struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ChatRequest is the request body for POST /api/chat
type ChatRequest struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// GenerateRequest is the request body for POST /api/generate
type GenerateRequest struct {
	Mode         string            `json:"mode"`
	Input        map[string]string `json:"input,omitempty"`
	SystemPrompt string            `json:"systemPrompt,omitempty"`
}

// apiFunc handles a validated POST body and returns the response payload
type apiFunc func(ctx context.Context, body []byte) (any, error)

// api wraps fn with the behavior shared by every API route
func (s *Server) api(fn apiFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
			return
		case http.MethodPost:
		default:
			s.writeError(w, r, apperrors.MethodNotAllowed(r.Method))
			return
		}

		if !s.client.HasAPIKey() {
			s.writeError(w, r, apperrors.Configuration(gemini.ErrMissingAPIKey))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := r.Context()
		if s.requestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
			defer cancel()
		}

		payload, err := fn(ctx, body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, payload)
	}
}

func (s *Server) handleChat(ctx context.Context, body []byte) (any, error) {
	var req ChatRequest
	if err := decodeJSON(body, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, apperrors.Validation(`field "prompt" is required`)
	}

	text, err := s.client.Generate(ctx, gemini.NewTextRequest(req.Prompt, req.SystemPrompt))
	if err != nil {
		return nil, err
	}
	return Envelope{Success: true, Result: text}, nil
}

func (s *Server) handleGenerate(ctx context.Context, body []byte) (any, error) {
	var req GenerateRequest
	if err := decodeJSON(body, &req); err != nil {
		return nil, err
	}
	if req.Mode == "" {
		return nil, apperrors.Validation(`field "mode" is required`)
	}

	promptText, err := s.catalog.Render(req.Mode, req.Input)
	if err != nil {
		return nil, err
	}

	text, err := s.client.Generate(ctx, gemini.NewTextRequest(promptText, req.SystemPrompt))
	if err != nil {
		return nil, err
	}
	return Envelope{Success: true, Result: text}, nil
}

func (s *Server) handleProxy(ctx context.Context, body []byte) (any, error) {
	data, err := s.client.Forward(ctx, body)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.Validation("invalid JSON body")
	}
	return nil
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Failed to write JSON response", "error", err)
	}
}

// writeError classifies err and writes the failure envelope
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	classified := apperrors.Classify(err)

	level := slog.LevelWarn
	if classified.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "Request failed",
		slog.String("path", r.URL.Path),
		slog.String("kind", classified.Kind.String()),
		slog.Int("status", classified.Status),
		slog.String("error", err.Error()))

	s.writeJSON(w, classified.Status, Envelope{Success: false, Error: classified.Message})
}
