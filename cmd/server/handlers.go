package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/AccentAB/pkg/accentab"
	"github.com/himanishpuri/AccentAB/pkg/logger"
	"github.com/himanishpuri/AccentAB/pkg/models"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service accentab.Service
	config  *ServerConfig
	log     accentab.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	StorePath      string
	Backend        string
	AllowedOrigins []string
	LogRequests    bool
}

// NewServer creates a new server instance
func NewServer(service accentab.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger().With("http"),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// respondServiceError maps service errors onto status codes.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrAnswerIndexOutOfRange):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrAnswerAlreadyRecorded):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrInvalidAnswer), errors.Is(err, models.ErrUnknownTable):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Errorf("Request failed: %v", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// rowTarget extracts {table}, {email} and, when present, {index}.
func (s *Server) rowTarget(w http.ResponseWriter, r *http.Request, withIndex bool) (models.Table, string, int, bool) {
	table, ok := models.ParseTable(strings.ToLower(r.PathValue("table")))
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("unknown table %q", r.PathValue("table")))
		return "", "", 0, false
	}
	email := strings.TrimSpace(r.PathValue("email"))
	if email == "" {
		s.respondError(w, http.StatusBadRequest, "email is required")
		return "", "", 0, false
	}
	if !withIndex {
		return table, email, 0, true
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid index %q", r.PathValue("index")))
		return "", "", 0, false
	}
	return table, email, index, true
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "AccentAB API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":   "GET /health",
			"total":    "GET /api/{table}/{email}/total",
			"progress": "GET /api/{table}/{email}/progress",
			"row":      "GET /api/{table}/{email}/rows/{index}",
			"answer":   "POST /api/{table}/{email}/rows/{index}/answer",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"backend": s.config.Backend,
		"time":    time.Now().Format(time.RFC3339),
	})
}

// handleTotal handles GET /api/{table}/{email}/total
func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	table, email, _, ok := s.rowTarget(w, r, false)
	if !ok {
		return
	}
	n, err := s.service.TotalRows(r.Context(), table, email)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, TotalResponse{Table: string(table), Email: email, Total: n})
}

// handleProgress handles GET /api/{table}/{email}/progress
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	table, email, _, ok := s.rowTarget(w, r, false)
	if !ok {
		return
	}
	all, err := s.service.Progress(r.Context(), email)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	for _, p := range all {
		if p.Table != table {
			continue
		}
		s.respondJSON(w, http.StatusOK, ProgressResponse{
			Table:    string(p.Table),
			Email:    p.Email,
			Answered: p.Answered,
			Total:    p.Total,
			Next:     p.Next,
			Done:     p.Total > 0 && p.Next == 0,
		})
		return
	}
	s.respondError(w, http.StatusNotFound, "no progress for table")
}

// handleRow handles GET /api/{table}/{email}/rows/{index}
func (s *Server) handleRow(w http.ResponseWriter, r *http.Request) {
	table, email, index, ok := s.rowTarget(w, r, true)
	if !ok {
		return
	}

	switch table {
	case models.TableMOS:
		row, err := s.service.MOSRow(r.Context(), email, index)
		if err != nil {
			s.respondServiceError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, MosRowDTO{
			Index:     index,
			Email:     row.Email,
			AudioFile: row.AudioFile,
			Natural:   string(row.Natural),
			Answer:    row.Answer,
		})
	default:
		row, err := s.service.XABRow(r.Context(), email, index)
		if err != nil {
			s.respondServiceError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, XabRowDTO{
			Index:   index,
			Email:   row.Email,
			AudioX:  row.AudioX,
			AudioA:  row.AudioA,
			AudioB:  row.AudioB,
			AccentX: string(row.AccentX),
			AccentA: string(row.AccentA),
			AccentB: string(row.AccentB),
			Natural: string(row.Natural),
			Answer:  row.Answer,
		})
	}
}

// handleAnswer handles POST /api/{table}/{email}/rows/{index}/answer
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	table, email, index, ok := s.rowTarget(w, r, true)
	if !ok {
		return
	}

	var req AnswerRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<10)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.service.SetAnswer(r.Context(), table, email, index, string(req.Answer)); err != nil {
		s.respondServiceError(w, err)
		return
	}
	answer, _ := accentab.NormalizeAnswer(table, string(req.Answer))

	next, err := s.service.NextIndex(r.Context(), table, email)
	if err != nil {
		s.log.Warnf("Failed to compute next index for %s: %v", email, err)
	}
	s.respondJSON(w, http.StatusOK, AnswerResponse{
		Table:  string(table),
		Email:  email,
		Index:  index,
		Answer: answer,
		Next:   next,
	})
}
