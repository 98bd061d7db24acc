package otp

import (
	"encoding/base32"
	"testing"
	"time"

	"github.com/credself/credstore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestGenerate_TOTPRecord(t *testing.T) {
	l := NewLifecycle(Config{
		Issuer:               "credstore",
		RecoveryCodesEnabled: true,
		RecoveryCodeCount:    4,
		RecoveryCodeLength:   10,
	})

	record, rawCodes, err := l.Generate("alice")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, models.TOTP, record.Algorithm)
	assert.Equal(t, "alice", record.Identifier)

	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(record.Secret)
	require.NoError(t, err)
	assert.Len(t, secret, 20)

	require.Len(t, rawCodes, 4)
	require.Len(t, record.RecoveryCodes, 4)
	for i, code := range rawCodes {
		assert.Len(t, code, 10)
		// No hashing configured: codes are stored raw.
		assert.Equal(t, code, record.RecoveryCodes[i].Value)
		assert.False(t, record.RecoveryCodes[i].Used)
	}
	assert.Nil(t, record.RecoveryInfo)
}

func TestGenerate_HashedRecoveryCodes(t *testing.T) {
	l := NewLifecycle(Config{
		RecoveryCodesEnabled:   true,
		RecoveryCodeCount:      3,
		RecoveryHashAlgorithm:  "SHA256",
		RecoveryHashIterations: 1000,
	})

	record, rawCodes, err := l.Generate("alice")
	require.NoError(t, err)

	require.NotNil(t, record.RecoveryInfo)
	assert.Equal(t, "SHA256", record.RecoveryInfo.Algorithm)
	assert.Equal(t, 1000, record.RecoveryInfo.Iterations)
	assert.NotEmpty(t, record.RecoveryInfo.Salt)

	for i, raw := range rawCodes {
		assert.NotEqual(t, raw, record.RecoveryCodes[i].Value, "stored value must be hashed")
		expected, err := IteratedHash(raw, record.RecoveryInfo.Salt, 1000, "SHA256")
		require.NoError(t, err)
		assert.Equal(t, expected, record.RecoveryCodes[i].Value)
	}
}

func TestGenerate_HOTPNotSupported(t *testing.T) {
	l := NewLifecycle(Config{Algorithm: models.HOTP})
	_, _, err := l.Generate("alice")
	assert.ErrorIs(t, err, ErrHOTPNotSupported)
}

func TestVerify_TimeStepWindow(t *testing.T) {
	// RFC 6238 test secret "12345678901234567890", frozen clock. The
	// expected codes around the base step are fixed and distinct, so
	// window acceptance is tested without collision flakiness.
	now := time.Unix(1_700_000_000, 0)
	l := NewLifecycle(Config{PastIntervals: 1, FutureIntervals: 1}).WithClock(fixedClock(now))
	record := &models.OtpRecord{
		Identifier: "alice",
		Secret:     "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ",
		Algorithm:  models.TOTP,
	}

	// A code one step in the future is inside the window.
	ok, updated, err := l.Verify(record, "732303", true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, updated)

	// Two steps ahead is outside pastIntervals=1/futureIntervals=1.
	ok, _, err = l.Verify(record, "136087", true)
	require.NoError(t, err)
	assert.False(t, ok)

	// One step back is accepted.
	ok, _, err = l.Verify(record, "276857", true)
	require.NoError(t, err)
	assert.True(t, ok)

	// The current step is accepted.
	ok, _, err = l.Verify(record, "921300", true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_MalformedCodeIsJustWrong(t *testing.T) {
	l := NewLifecycle(Config{})
	record, _, err := l.Generate("alice")
	require.NoError(t, err)

	for _, input := range []string{"", "12345", "1234567", "12a456"} {
		ok, updated, err := l.Verify(record, input, false)
		require.NoError(t, err)
		assert.False(t, ok, "input %q", input)
		assert.Nil(t, updated)
	}
}

func TestVerify_RecoveryCodeSingleUse(t *testing.T) {
	l := NewLifecycle(Config{
		RecoveryCodesEnabled:   true,
		RecoveryCodeCount:      2,
		RecoveryHashAlgorithm:  "SHA1",
		RecoveryHashIterations: 100,
	})

	record, rawCodes, err := l.Generate("alice")
	require.NoError(t, err)

	// First use succeeds and reports an updated record to persist.
	ok, updated, err := l.Verify(record, rawCodes[0], true)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, updated)
	assert.True(t, updated.RecoveryCodes[0].Used)
	assert.False(t, updated.RecoveryCodes[1].Used)
	// Original record is untouched; persistence is the caller's job.
	assert.False(t, record.RecoveryCodes[0].Used)

	// Resubmitting the same code against the updated record fails hard.
	ok, _, err = l.Verify(updated, rawCodes[0], true)
	assert.ErrorIs(t, err, ErrRecoveryCodeUsed)
	assert.False(t, ok)

	// The sibling code still works.
	ok, updated2, err := l.Verify(updated, rawCodes[1], true)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, updated2)
	assert.True(t, updated2.RecoveryCodes[1].Used)
}

func TestVerify_RecoveryCodeSeparatorsIgnored(t *testing.T) {
	l := NewLifecycle(Config{RecoveryCodesEnabled: true, RecoveryCodeCount: 1, RecoveryCodeLength: 8})
	record, rawCodes, err := l.Generate("alice")
	require.NoError(t, err)

	spread := rawCodes[0][:4] + "-" + rawCodes[0][4:]
	ok, updated, err := l.Verify(record, spread, true)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, updated)
}

func TestVerify_RecoveryDisallowed(t *testing.T) {
	l := NewLifecycle(Config{RecoveryCodesEnabled: true, RecoveryCodeCount: 1})
	record, rawCodes, err := l.Generate("alice")
	require.NoError(t, err)

	ok, updated, err := l.Verify(record, rawCodes[0], false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, updated)
}

func TestVerify_HOTPRecordRejected(t *testing.T) {
	l := NewLifecycle(Config{})
	record := &models.OtpRecord{Algorithm: models.HOTP, Secret: "GEZDGNBV"}
	_, _, err := l.Verify(record, "123456", false)
	assert.ErrorIs(t, err, ErrHOTPNotSupported)
}

func TestIteratedHash_Deterministic(t *testing.T) {
	a, err := IteratedHash("value", "salt", 500, "SHA1")
	require.NoError(t, err)
	b, err := IteratedHash("value", "salt", 500, "SHA1")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := IteratedHash("value", "other-salt", 500, "SHA1")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = IteratedHash("value", "salt", 1, "MD5")
	assert.Error(t, err)
}
