// Package http provides HTTP handlers for one-time-password secrets.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/credself/credstore/internal/middleware"
	"github.com/credself/credstore/internal/models"
	"github.com/credself/credstore/internal/otp"
)

// OtpService defines the OTP operations required by the OtpHandler.
type OtpService interface {
	// ReadOtpRecord returns the user's record, or (nil, nil) when unset.
	ReadOtpRecord(ctx context.Context, user string) (*models.OtpRecord, error)
	// WriteOtpRecord fans the record out to the configured backends.
	WriteOtpRecord(ctx context.Context, user string, record models.OtpRecord) error
	// ClearOtpRecord removes the record from the configured backends.
	ClearOtpRecord(ctx context.Context, user string) error
	// GenerateOtpSetup produces a fresh record and its raw recovery codes.
	GenerateOtpSetup(identifier string) (*models.OtpRecord, []string, error)
	// VerifyOtp checks input against the record, consuming recovery codes.
	VerifyOtp(ctx context.Context, user string, record *models.OtpRecord, input string, allowRecovery bool) (bool, error)
}

// OtpHandler handles HTTP requests for one-time-password secrets.
type OtpHandler struct {
	Service OtpService
}

// Setup handles POST /api/otp/setup: generates a fresh secret, stores
// it and returns the raw recovery codes, which are shown exactly once.
func (h *OtpHandler) Setup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUserIDFromContext(ctx)

	record, rawCodes, err := h.Service.GenerateOtpSetup(user)
	if err != nil {
		if errors.Is(err, otp.ErrHOTPNotSupported) {
			http.Error(w, err.Error(), http.StatusNotImplemented)
			return
		}
		writeError(w, err)
		return
	}

	if err := h.Service.WriteOtpRecord(ctx, user, *record); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, struct {
		Identifier    string   `json:"identifier"`
		Secret        string   `json:"secret"`
		RecoveryCodes []string `json:"recoveryCodes,omitempty"`
	}{record.Identifier, record.Secret, rawCodes})
}

// Read handles GET /api/otp. The shared secret and recovery code values
// are never echoed back; only presence metadata is returned.
func (h *OtpHandler) Read(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUserIDFromContext(ctx)

	record, err := h.Service.ReadOtpRecord(ctx, user)
	if err != nil {
		writeError(w, err)
		return
	}
	if record == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	remaining := 0
	for _, c := range record.RecoveryCodes {
		if !c.Used {
			remaining++
		}
	}
	writeJSON(w, struct {
		Identifier             string              `json:"identifier"`
		Algorithm              models.OtpAlgorithm `json:"algorithm"`
		Source                 models.BackendKind  `json:"source"`
		RecoveryCodesRemaining int                 `json:"recoveryCodesRemaining"`
	}{record.Identifier, record.Algorithm, record.Source, remaining})
}

// Verify handles POST /api/otp/verify.
func (h *OtpHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUserIDFromContext(ctx)

	var req struct {
		Code          string `json:"code"`
		AllowRecovery bool   `json:"allowRecovery"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	record, err := h.Service.ReadOtpRecord(ctx, user)
	if err != nil {
		writeError(w, err)
		return
	}
	if record == nil {
		http.Error(w, "no otp secret configured", http.StatusNotFound)
		return
	}

	accepted, err := h.Service.VerifyOtp(ctx, user, record, req.Code, req.AllowRecovery)
	if err != nil {
		if errors.Is(err, otp.ErrRecoveryCodeUsed) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, struct {
		Accepted bool `json:"accepted"`
	}{accepted})
}

// Clear handles DELETE /api/otp.
func (h *OtpHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUserIDFromContext(ctx)

	if err := h.Service.ClearOtpRecord(ctx, user); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
