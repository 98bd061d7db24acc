// Package otp generates and verifies one-time-password secrets and
// their single-use recovery codes.
package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/credself/credstore/internal/models"
)

// ErrHOTPNotSupported is returned when the configuration or a stored
// record selects the HOTP variant. The variant is enumerated for
// records that carry it but its semantics are not implemented.
var ErrHOTPNotSupported = errors.New("HOTP is not implemented")

// ErrRecoveryCodeUsed is returned when the submitted recovery code
// matches a code that has already been consumed.
var ErrRecoveryCodeUsed = errors.New("recovery code already used")

const recoveryCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Config carries the OTP parameters from configuration.
type Config struct {
	// Issuer labels provisioning URIs shown to authenticator apps.
	Issuer string
	// Algorithm is the variant to provision; only models.TOTP is supported.
	Algorithm models.OtpAlgorithm
	// Digits is the code length.
	Digits int
	// PeriodSeconds is the TOTP time-step length.
	PeriodSeconds int
	// PastIntervals and FutureIntervals widen the accepted time-step window.
	PastIntervals   int
	FutureIntervals int
	// SecretBytes is the shared-secret length before base32 encoding.
	SecretBytes int
	// RecoveryCodesEnabled provisions recovery codes alongside the secret.
	RecoveryCodesEnabled bool
	// RecoveryCodeCount and RecoveryCodeLength shape the generated codes.
	RecoveryCodeCount  int
	RecoveryCodeLength int
	// RecoveryHashAlgorithm and RecoveryHashIterations control code
	// hashing at rest. Zero iterations stores the codes raw.
	RecoveryHashAlgorithm  string
	RecoveryHashIterations int
	// RecoverySaltBytes is the shared salt length when codes are hashed.
	RecoverySaltBytes int
}

// Lifecycle generates and verifies OTP records. The zero clock means
// time.Now; tests inject their own.
type Lifecycle struct {
	cfg Config
	now func() time.Time
}

// NewLifecycle constructs a Lifecycle, filling unset config fields with
// the conventional defaults.
func NewLifecycle(cfg Config) *Lifecycle {
	if cfg.Algorithm == "" {
		cfg.Algorithm = models.TOTP
	}
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.PeriodSeconds == 0 {
		cfg.PeriodSeconds = 30
	}
	if cfg.SecretBytes == 0 {
		cfg.SecretBytes = 20
	}
	if cfg.RecoveryCodeCount == 0 {
		cfg.RecoveryCodeCount = 5
	}
	if cfg.RecoveryCodeLength == 0 {
		cfg.RecoveryCodeLength = 12
	}
	if cfg.RecoverySaltBytes == 0 {
		cfg.RecoverySaltBytes = 16
	}
	return &Lifecycle{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of the lifecycle using the given clock.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	cp := *l
	cp.now = now
	return &cp
}

// Generate produces a new OTP record and, when recovery codes are
// enabled, the raw codes to show the user once. The stored record holds
// the codes hashed unless the configured iteration count is zero.
func (l *Lifecycle) Generate(identifier string) (*models.OtpRecord, []string, error) {
	if l.cfg.Algorithm != models.TOTP {
		return nil, nil, ErrHOTPNotSupported
	}

	raw := make([]byte, l.cfg.SecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, nil, fmt.Errorf("generate shared secret: %w", err)
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)

	record := &models.OtpRecord{
		Identifier: identifier,
		Secret:     enc.EncodeToString(raw),
		Algorithm:  models.TOTP,
		Timestamp:  l.now().UTC(),
	}

	if !l.cfg.RecoveryCodesEnabled {
		return record, nil, nil
	}

	rawCodes := make([]string, 0, l.cfg.RecoveryCodeCount)
	for i := 0; i < l.cfg.RecoveryCodeCount; i++ {
		code, err := randomCode(l.cfg.RecoveryCodeLength)
		if err != nil {
			return nil, nil, fmt.Errorf("generate recovery code: %w", err)
		}
		rawCodes = append(rawCodes, code)
	}

	if l.cfg.RecoveryHashIterations > 0 {
		saltBytes := make([]byte, l.cfg.RecoverySaltBytes)
		if _, err := rand.Read(saltBytes); err != nil {
			return nil, nil, fmt.Errorf("generate recovery salt: %w", err)
		}
		salt := base64.StdEncoding.EncodeToString(saltBytes)

		record.RecoveryInfo = &models.RecoveryInfo{
			Salt:       salt,
			Iterations: l.cfg.RecoveryHashIterations,
			Algorithm:  strings.ToUpper(firstNonEmpty(l.cfg.RecoveryHashAlgorithm, "SHA1")),
		}
		for _, code := range rawCodes {
			hashed, err := IteratedHash(code, salt, record.RecoveryInfo.Iterations, record.RecoveryInfo.Algorithm)
			if err != nil {
				return nil, nil, fmt.Errorf("hash recovery code: %w", err)
			}
			record.RecoveryCodes = append(record.RecoveryCodes, models.RecoveryCode{Value: hashed})
		}
	} else {
		for _, code := range rawCodes {
			record.RecoveryCodes = append(record.RecoveryCodes, models.RecoveryCode{Value: code})
		}
	}

	return record, rawCodes, nil
}

// ProvisionURI renders the otpauth URI for authenticator-app enrollment.
func (l *Lifecycle) ProvisionURI(record *models.OtpRecord) string {
	label := url.PathEscape(l.cfg.Issuer + ":" + record.Identifier)
	v := url.Values{}
	v.Set("secret", record.Secret)
	v.Set("issuer", l.cfg.Issuer)
	v.Set("period", strconv.Itoa(l.cfg.PeriodSeconds))
	v.Set("digits", strconv.Itoa(l.cfg.Digits))
	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Verify checks the submitted input against the record: first as a
// time-step code within the configured past/future window, then, when
// allowRecovery is set and codes exist, as a recovery code.
//
// The return values are (accepted, updated record, error). The updated
// record is non-nil only when a recovery code was consumed; the caller
// must persist it so the code stays single-use. A wrong code is
// (false, nil, nil) — not an error.
func (l *Lifecycle) Verify(record *models.OtpRecord, input string, allowRecovery bool) (bool, *models.OtpRecord, error) {
	if record == nil {
		return false, nil, errors.New("no otp record")
	}
	if record.Algorithm == models.HOTP {
		return false, nil, ErrHOTPNotSupported
	}

	ok, err := l.verifyTimeCode(record, input)
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}

	if !allowRecovery || len(record.RecoveryCodes) == 0 {
		return false, nil, nil
	}
	return l.verifyRecoveryCode(record, input)
}

func (l *Lifecycle) verifyTimeCode(record *models.OtpRecord, input string) (bool, error) {
	trimmed := strings.TrimSpace(input)
	if len(trimmed) != l.cfg.Digits || !isDigits(trimmed) {
		return false, nil
	}

	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(
		strings.ToUpper(strings.TrimRight(record.Secret, "=")))
	if err != nil {
		return false, fmt.Errorf("decode stored secret: %w", err)
	}
	if len(secret) == 0 {
		return false, errors.New("empty otp secret")
	}

	base := l.now().Unix() / int64(l.cfg.PeriodSeconds)
	for step := -l.cfg.PastIntervals; step <= l.cfg.FutureIntervals; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		expected := stepCode(secret, counter, l.cfg.Digits)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(trimmed)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

func (l *Lifecycle) verifyRecoveryCode(record *models.OtpRecord, input string) (bool, *models.OtpRecord, error) {
	candidate := canonicalCode(input)
	if candidate == "" {
		return false, nil, nil
	}

	compare := candidate
	if info := record.RecoveryInfo; info != nil {
		hashed, err := IteratedHash(candidate, info.Salt, info.Iterations, info.Algorithm)
		if err != nil {
			return false, nil, fmt.Errorf("hash submitted code: %w", err)
		}
		compare = hashed
	}

	for i, code := range record.RecoveryCodes {
		if subtle.ConstantTimeCompare([]byte(code.Value), []byte(compare)) != 1 {
			continue
		}
		if code.Used {
			return false, nil, ErrRecoveryCodeUsed
		}

		updated := *record
		updated.RecoveryCodes = append([]models.RecoveryCode(nil), record.RecoveryCodes...)
		updated.RecoveryCodes[i].Used = true
		return true, &updated, nil
	}
	return false, nil, nil
}

// stepCode computes the HMAC-SHA1 truncated code for one counter value,
// per RFC 4226 truncation.
func stepCode(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = recoveryCodeCharset[int(b)%len(recoveryCodeCharset)]
	}
	return string(out), nil
}

// canonicalCode strips separators users commonly type into recovery codes.
func canonicalCode(input string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(input)) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
