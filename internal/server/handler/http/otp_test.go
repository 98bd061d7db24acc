// Package http provides HTTP handlers for one-time-password secrets.
package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/credself/credstore/internal/models"
	"github.com/credself/credstore/internal/otp"
	handler "github.com/credself/credstore/internal/server/handler/http"
)

// fakeOtpService records calls and returns preconfigured results.
type fakeOtpService struct {
	receivedUser   string
	receivedInput  string
	receivedRecord *models.OtpRecord
	written        *models.OtpRecord
	cleared        bool

	readRecord *models.OtpRecord
	readErr    error
	genRecord  *models.OtpRecord
	genCodes   []string
	genErr     error
	writeErr   error
	verifyOK   bool
	verifyErr  error
	clearErr   error
}

func (f *fakeOtpService) ReadOtpRecord(ctx context.Context, user string) (*models.OtpRecord, error) {
	f.receivedUser = user
	return f.readRecord, f.readErr
}

func (f *fakeOtpService) WriteOtpRecord(ctx context.Context, user string, record models.OtpRecord) error {
	f.receivedUser = user
	f.written = &record
	return f.writeErr
}

func (f *fakeOtpService) ClearOtpRecord(ctx context.Context, user string) error {
	f.receivedUser = user
	f.cleared = true
	return f.clearErr
}

func (f *fakeOtpService) GenerateOtpSetup(identifier string) (*models.OtpRecord, []string, error) {
	return f.genRecord, f.genCodes, f.genErr
}

func (f *fakeOtpService) VerifyOtp(ctx context.Context, user string, record *models.OtpRecord, input string, allowRecovery bool) (bool, error) {
	f.receivedUser = user
	f.receivedInput = input
	f.receivedRecord = record
	return f.verifyOK, f.verifyErr
}

func TestOtpHandler_SetupStoresAndReturnsCodes(t *testing.T) {
	fake := &fakeOtpService{
		genRecord: &models.OtpRecord{
			Identifier: "cn=alice",
			Secret:     "JBSWY3DPEHPK3PXP",
			Algorithm:  models.TOTP,
		},
		genCodes: []string{"AAAA-BBBB", "CCCC-DDDD"},
	}
	h := &handler.OtpHandler{Service: fake}
	req := httptest.NewRequest(http.MethodPost, "/api/otp/setup", nil)

	w := serve(h.Setup, req, "cn=alice")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Identifier    string   `json:"identifier"`
		Secret        string   `json:"secret"`
		RecoveryCodes []string `json:"recoveryCodes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	if resp.Secret != "JBSWY3DPEHPK3PXP" {
		t.Errorf("secret = %q", resp.Secret)
	}
	if len(resp.RecoveryCodes) != 2 {
		t.Errorf("recoveryCodes = %v; want the raw codes", resp.RecoveryCodes)
	}
	if fake.written == nil {
		t.Error("generated record was not stored")
	}
}

func TestOtpHandler_SetupHOTPNotImplemented(t *testing.T) {
	fake := &fakeOtpService{genErr: otp.ErrHOTPNotSupported}
	h := &handler.OtpHandler{Service: fake}
	req := httptest.NewRequest(http.MethodPost, "/api/otp/setup", nil)

	w := serve(h.Setup, req, "cn=alice")

	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d; want %d", w.Code, http.StatusNotImplemented)
	}
}

func TestOtpHandler_ReadHidesSecret(t *testing.T) {
	fake := &fakeOtpService{
		readRecord: &models.OtpRecord{
			Identifier: "cn=alice",
			Secret:     "JBSWY3DPEHPK3PXP",
			Algorithm:  models.TOTP,
			Source:     models.EmbeddedStore,
			RecoveryCodes: []models.RecoveryCode{
				{Value: "h1"},
				{Value: "h2", Used: true},
				{Value: "h3"},
			},
		},
	}
	h := &handler.OtpHandler{Service: fake}
	req := httptest.NewRequest(http.MethodGet, "/api/otp", nil)

	w := serve(h.Read, req, "cn=alice")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("JBSWY3DPEHPK3PXP")) {
		t.Fatal("response echoes the shared secret")
	}
	var resp struct {
		Identifier             string             `json:"identifier"`
		Source                 models.BackendKind `json:"source"`
		RecoveryCodesRemaining int                `json:"recoveryCodesRemaining"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	if resp.Source != models.EmbeddedStore {
		t.Errorf("source = %q; want %q", resp.Source, models.EmbeddedStore)
	}
	if resp.RecoveryCodesRemaining != 2 {
		t.Errorf("recoveryCodesRemaining = %d; want 2", resp.RecoveryCodesRemaining)
	}
}

func TestOtpHandler_ReadUnset(t *testing.T) {
	h := &handler.OtpHandler{Service: &fakeOtpService{}}
	req := httptest.NewRequest(http.MethodGet, "/api/otp", nil)

	w := serve(h.Read, req, "cn=alice")

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d; want %d", w.Code, http.StatusNoContent)
	}
}

func TestOtpHandler_VerifyNoRecord(t *testing.T) {
	h := &handler.OtpHandler{Service: &fakeOtpService{}}
	b, _ := json.Marshal(map[string]any{"code": "123456"})
	req := httptest.NewRequest(http.MethodPost, "/api/otp/verify", bytes.NewReader(b))

	w := serve(h.Verify, req, "cn=alice")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d; want %d", w.Code, http.StatusNotFound)
	}
}

func TestOtpHandler_VerifyAccepted(t *testing.T) {
	fake := &fakeOtpService{
		readRecord: &models.OtpRecord{Identifier: "cn=alice", Secret: "JBSWY3DPEHPK3PXP", Algorithm: models.TOTP},
		verifyOK:   true,
	}
	h := &handler.OtpHandler{Service: fake}
	b, _ := json.Marshal(map[string]any{"code": "123456", "allowRecovery": true})
	req := httptest.NewRequest(http.MethodPost, "/api/otp/verify", bytes.NewReader(b))

	w := serve(h.Verify, req, "cn=alice")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Accepted bool `json:"accepted"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	if !resp.Accepted {
		t.Error("accepted = false; want true")
	}
	if fake.receivedInput != "123456" {
		t.Errorf("receivedInput = %q", fake.receivedInput)
	}
	if fake.receivedRecord == nil {
		t.Error("expected the stored record to be passed through")
	}
}

func TestOtpHandler_VerifyRejected(t *testing.T) {
	fake := &fakeOtpService{
		readRecord: &models.OtpRecord{Identifier: "cn=alice", Secret: "JBSWY3DPEHPK3PXP", Algorithm: models.TOTP},
	}
	h := &handler.OtpHandler{Service: fake}
	b, _ := json.Marshal(map[string]any{"code": "000000"})
	req := httptest.NewRequest(http.MethodPost, "/api/otp/verify", bytes.NewReader(b))

	w := serve(h.Verify, req, "cn=alice")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Accepted bool `json:"accepted"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	if resp.Accepted {
		t.Error("accepted = true; want false")
	}
}

func TestOtpHandler_VerifyUsedRecoveryCode(t *testing.T) {
	fake := &fakeOtpService{
		readRecord: &models.OtpRecord{Identifier: "cn=alice", Secret: "JBSWY3DPEHPK3PXP", Algorithm: models.TOTP},
		verifyErr:  otp.ErrRecoveryCodeUsed,
	}
	h := &handler.OtpHandler{Service: fake}
	b, _ := json.Marshal(map[string]any{"code": "AAAA-BBBB", "allowRecovery": true})
	req := httptest.NewRequest(http.MethodPost, "/api/otp/verify", bytes.NewReader(b))

	w := serve(h.Verify, req, "cn=alice")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want %d", w.Code, http.StatusBadRequest)
	}
}

func TestOtpHandler_VerifyBackendFailure(t *testing.T) {
	fake := &fakeOtpService{readErr: errors.New("all backends down")}
	h := &handler.OtpHandler{Service: fake}
	b, _ := json.Marshal(map[string]any{"code": "123456"})
	req := httptest.NewRequest(http.MethodPost, "/api/otp/verify", bytes.NewReader(b))

	w := serve(h.Verify, req, "cn=alice")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestOtpHandler_Clear(t *testing.T) {
	fake := &fakeOtpService{}
	h := &handler.OtpHandler{Service: fake}
	req := httptest.NewRequest(http.MethodDelete, "/api/otp", nil)

	w := serve(h.Clear, req, "cn=alice")

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d; want %d", w.Code, http.StatusNoContent)
	}
	if !fake.cleared {
		t.Error("expected ClearOtpRecord to be called")
	}
}
