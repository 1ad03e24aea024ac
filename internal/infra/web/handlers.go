package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/model"
	"telegram-bot-platform/internal/infra/logging"
	"telegram-bot-platform/internal/infra/metrics"
	"telegram-bot-platform/internal/usecase"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// GET /api/v1/message-processing?status=FAILED,TERMINAL&userMessageId=&page=&limit=
func (s *Server) listProcessing(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := &usecase.ProcessingFilter{}
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := model.ParseProcessingStatus(part)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if raw := q.Get("userMessageId"); raw != "" {
		id, err := parseID(raw, "userMessageId")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		filter.UserMessageID = &id
	}

	page, err := intParam(q.Get("page"), 1, "page")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(q.Get("limit"), defaultPageLimit, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	items, err := s.processing.FindAll(r.Context(), filter, &usecase.Pagination{Page: page, Limit: limit})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProcessingResponses(items))
}

// GET /api/v1/message-processing/{id}
func (s *Server) getProcessing(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.processing.FindByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if p == nil {
		s.writeError(w, r, fmt.Errorf("message processing with id %d not found: %w", id, domain.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, toProcessingResponse(p))
}

// POST /api/v1/message-processing/{id}/retry
func (s *Server) retryProcessing(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.recovery.RetryByID(r.Context(), id); err != nil {
		metrics.IncRetry(retryResult(err))
		s.writeError(w, r, err)
		return
	}
	metrics.IncRetry("published")
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

// GET /api/v1/message-processing/failed?limit=100
func (s *Server) listFailed(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 0, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.processing.FindFailed(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFailedResponses(items))
}

// POST /api/v1/message-processing/retry-failed?limit=100
func (s *Server) retryFailed(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 0, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.recovery.RetryFailed(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidArgument, name)
	}
	return id, nil
}

func intParam(raw string, def int, name string) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidArgument, name)
	}
	return n, nil
}

func retryResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrTerminalRetry):
		return "terminal"
	default:
		return "error"
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTerminalRetry):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("admin request failed")
		msg = "internal error"
	}
	writeJSON(w, code, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
