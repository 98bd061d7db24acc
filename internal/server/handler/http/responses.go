// Package http provides HTTP handlers exposing the credential storage
// and verification operations.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/credself/credstore/internal/middleware"
	"github.com/credself/credstore/internal/models"
	"github.com/credself/credstore/internal/orchestrator"
	"github.com/credself/credstore/internal/profile"
	"github.com/credself/credstore/internal/validate"
)

// ResponseService defines the challenge/response operations required by
// the ResponseHandler.
type ResponseService interface {
	// ReadResponseRecord returns the user's answer set, or (nil, nil) when unset.
	ReadResponseRecord(ctx context.Context, user string) (*models.ResponseRecord, error)
	// WriteResponseRecord fans the record out to the configured backends.
	WriteResponseRecord(ctx context.Context, user string, record models.ResponseRecord) error
	// ClearResponseRecord removes the answer set from the configured backends.
	ClearResponseRecord(ctx context.Context, user string) error
	// ResolveProfile picks the applicable challenge profile for the user.
	ResolveProfile(ctx context.Context, user string, candidates []models.ChallengeProfile) (*models.ChallengeProfile, error)
	// PrepareResponseRecord validates a submission and seals it for storage.
	PrepareResponseRecord(profile models.ChallengeProfile, answers, helpdeskAnswers map[models.Challenge]string) (*models.ResponseRecord, error)
}

// ResponseHandler handles HTTP requests for challenge/response secrets.
type ResponseHandler struct {
	Service ResponseService
	// Profiles are the configured candidate profiles, in resolution order.
	Profiles []models.ChallengeProfile
}

// submittedAnswer pairs one challenge with its submitted answer.
type submittedAnswer struct {
	Challenge models.Challenge `json:"challenge"`
	Answer    string           `json:"answer"`
}

func toAnswerMap(pairs []submittedAnswer) map[models.Challenge]string {
	out := make(map[models.Challenge]string, len(pairs))
	for _, p := range pairs {
		out[p.Challenge] = p.Answer
	}
	return out
}

// Profile handles GET /api/responses/profile, returning the challenge
// profile assigned to the requesting user.
func (h *ResponseHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUserIDFromContext(ctx)

	p, err := h.Service.ResolveProfile(ctx, user, h.Profiles)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, p)
}

// Read handles GET /api/responses. An unset record answers 204.
func (h *ResponseHandler) Read(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUserIDFromContext(ctx)

	record, err := h.Service.ReadResponseRecord(ctx, user)
	if err != nil {
		writeError(w, err)
		return
	}
	if record == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, struct {
		*models.ResponseRecord
		Source models.BackendKind `json:"source"`
	}{record, record.Source})
}

// Set handles PUT /api/responses: resolves the user's profile,
// validates the submitted answers against it and fans the sealed
// record out to storage.
func (h *ResponseHandler) Set(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUserIDFromContext(ctx)

	var req struct {
		Answers         []submittedAnswer `json:"answers"`
		HelpdeskAnswers []submittedAnswer `json:"helpdeskAnswers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	p, err := h.Service.ResolveProfile(ctx, user, h.Profiles)
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := h.Service.PrepareResponseRecord(*p, toAnswerMap(req.Answers), toAnswerMap(req.HelpdeskAnswers))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.Service.WriteResponseRecord(ctx, user, *record); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/responses.
func (h *ResponseHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUserIDFromContext(ctx)

	if err := h.Service.ClearResponseRecord(ctx, user); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses: validation
// faults are the caller's to correct (400), configuration faults need
// an administrator (500), partial failures and backend outages are
// retryable (503).
func writeError(w http.ResponseWriter, err error) {
	var vErr *validate.Error
	var pErr *orchestrator.PartialWriteError
	switch {
	case errors.As(err, &vErr):
		http.Error(w, vErr.Error(), http.StatusBadRequest)
	case errors.Is(err, profile.ErrNoProfileAssigned),
		errors.Is(err, orchestrator.ErrNoBackendConfigured):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case errors.As(err, &pErr):
		http.Error(w, pErr.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	}
}
