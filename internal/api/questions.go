package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/question-sync/internal/question"
)

const (
	defaultQuestionLimit = 50
	maxQuestionLimit     = 500
	storeTimeout         = 3 * time.Second
)

type questionDTO struct {
	ID              int             `json:"id"`
	Title           string          `json:"title"`
	Content         string          `json:"content"`
	AdditionalLinks []question.Link `json:"additional_links"`
	CreatedAt       *time.Time      `json:"created_at,omitempty"`
}

// listQuestions handles GET /v1/questions?limit=&offset=. Records come back ordered by id.
func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultQuestionLimit, maxQuestionLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, ok := s.loadRecords(w, r)
	if !ok {
		return
	}
	total := len(records)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	writeJSON(w, http.StatusOK, map[string]any{
		"questions": toQuestionDTOs(records[offset:end]),
		"total":     total,
	})
}

// getQuestion handles GET /v1/questions/{question_id}.
func (s *Server) getQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "question_id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "question_id must be a positive integer")
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	rec, found, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.Error("get record failed", zap.Int("question_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load question")
		return
	}
	if found {
		writeJSON(w, http.StatusOK, toQuestionDTO(rec))
		return
	}
	writeError(w, http.StatusNotFound, "question not found")
}

func (s *Server) loadRecords(w http.ResponseWriter, r *http.Request) ([]question.Record, bool) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
		return nil, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	records, err := s.store.FetchAll(ctx)
	if err != nil {
		s.logger.Error("fetch records failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load questions")
		return nil, false
	}
	return records, true
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	limit := def
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		limit = min(v, maxLimit)
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
		offset = v
	}
	return limit, offset, nil
}

func toQuestionDTOs(records []question.Record) []questionDTO {
	out := make([]questionDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, toQuestionDTO(rec))
	}
	return out
}

func toQuestionDTO(rec question.Record) questionDTO {
	dto := questionDTO{
		ID:              rec.ID,
		Title:           rec.Title,
		Content:         rec.Content,
		AdditionalLinks: rec.AdditionalLinks,
	}
	if dto.AdditionalLinks == nil {
		dto.AdditionalLinks = []question.Link{}
	}
	if !rec.CreatedAt.IsZero() {
		created := rec.CreatedAt.UTC()
		dto.CreatedAt = &created
	}
	return dto
}
