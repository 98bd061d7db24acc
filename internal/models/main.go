// Package models defines the core data structures for stored secrets,
// challenge policies and storage backend identity.
package models

import "time"

// BackendKind identifies one of the independent places a secret record
// can be persisted. It keys the operator registry and orders the
// read/write preference lists.
type BackendKind string

const (
	// DirectoryAttribute stores records in a general-purpose directory attribute.
	DirectoryAttribute BackendKind = "directory_attribute"
	// Relational stores records in the relational database.
	Relational BackendKind = "relational"
	// EmbeddedStore stores records in the embedded local key-value store.
	EmbeddedStore BackendKind = "embedded_store"
	// DirectoryNative stores records via the directory vendor's native extension.
	DirectoryNative BackendKind = "directory_native"
)

// KnownBackendKinds lists every valid BackendKind.
var KnownBackendKinds = []BackendKind{
	DirectoryAttribute,
	Relational,
	EmbeddedStore,
	DirectoryNative,
}

// Valid reports whether k is one of the four known backend kinds.
func (k BackendKind) Valid() bool {
	switch k {
	case DirectoryAttribute, Relational, EmbeddedStore, DirectoryNative:
		return true
	}
	return false
}

// SecretType distinguishes the two secret families the orchestrator manages.
type SecretType string

const (
	// SecretResponses denotes challenge/response answer sets.
	SecretResponses SecretType = "responses"
	// SecretOTP denotes one-time-password secrets.
	SecretOTP SecretType = "otp"
)

// AnswerHash holds a stored (hashed or raw) answer for one challenge.
type AnswerHash struct {
	// Hash is the stored comparison value.
	Hash string `json:"hash"`
	// Salt is the per-answer salt, empty when the answer is stored raw.
	Salt string `json:"salt,omitempty"`
	// Iterations is the digest iteration count; 0 means Hash holds the raw answer.
	Iterations int `json:"iterations"`
	// Algorithm names the digest used ("SHA1", "SHA256", "SHA512").
	Algorithm string `json:"algorithm,omitempty"`
}

// ResponseRecord is a user's stored challenge/response answer set.
type ResponseRecord struct {
	// ChallengeSetID identifies the profile the answers were recorded against.
	ChallengeSetID string `json:"challengeSetId"`
	// Answers maps challenge prompt text to the stored answer.
	Answers map[string]AnswerHash `json:"answers"`
	// HelpdeskAnswers optionally holds the separate helpdesk answer set.
	HelpdeskAnswers map[string]AnswerHash `json:"helpdeskAnswers,omitempty"`
	// Source is the backend the record was read from; set on read, ignored on write.
	Source BackendKind `json:"-"`
	// Timestamp records when the answer set was saved.
	Timestamp time.Time `json:"timestamp"`
}

// SetSource records the backend the record was read from.
func (r *ResponseRecord) SetSource(k BackendKind) { r.Source = k }

// OtpAlgorithm selects the one-time-password variant.
type OtpAlgorithm string

const (
	// TOTP is the time-based variant.
	TOTP OtpAlgorithm = "TOTP"
	// HOTP is the counter-based variant. Declared for records that carry it;
	// generation and verification do not implement it.
	HOTP OtpAlgorithm = "HOTP"
)

// RecoveryCode is a single-use fallback credential. Once Used is set the
// code is permanently rejected; there is no un-use operation.
type RecoveryCode struct {
	// Value holds the code, hashed when the owning record carries RecoveryInfo,
	// raw otherwise.
	Value string `json:"value"`
	// Used marks the code as consumed.
	Used bool `json:"used"`
}

// RecoveryInfo describes how the record's recovery codes were hashed.
// Absent (nil) when codes are stored raw.
type RecoveryInfo struct {
	// Salt is the shared salt prepended before hashing.
	Salt string `json:"salt"`
	// Iterations is the digest iteration count.
	Iterations int `json:"iterations"`
	// Algorithm names the digest ("SHA1", "SHA256", "SHA512").
	Algorithm string `json:"algorithm"`
}

// OtpRecord is a user's stored one-time-password secret.
type OtpRecord struct {
	// Identifier labels the secret (shown in authenticator apps).
	Identifier string `json:"identifier"`
	// Secret is the base32-encoded shared secret.
	Secret string `json:"secret"`
	// Algorithm is the OTP variant the secret was provisioned for.
	Algorithm OtpAlgorithm `json:"algorithm"`
	// Counter is the HOTP attempt counter; unused for TOTP.
	Counter int64 `json:"counter,omitempty"`
	// RecoveryCodes holds the single-use fallback codes, if provisioned.
	RecoveryCodes []RecoveryCode `json:"recoveryCodes,omitempty"`
	// RecoveryInfo is present only when the recovery codes are hashed.
	RecoveryInfo *RecoveryInfo `json:"recoveryInfo,omitempty"`
	// Source is the backend the record was read from; set on read, ignored on write.
	Source BackendKind `json:"-"`
	// Timestamp records when the secret was provisioned.
	Timestamp time.Time `json:"timestamp"`
}

// SetSource records the backend the record was read from.
func (r *OtpRecord) SetSource(k BackendKind) { r.Source = k }

// Challenge is one question slot in a challenge profile.
type Challenge struct {
	// Required marks the challenge as mandatory; unset means "random pool".
	Required bool `json:"required"`
	// Prompt is the question text. Empty for user-defined slots until the
	// user supplies their own.
	Prompt string `json:"prompt"`
	// AdminDefined is true when the prompt is fixed by the administrator;
	// false means the user supplies the prompt text.
	AdminDefined bool `json:"adminDefined"`
	// MinLength and MaxLength bound the answer length.
	MinLength int `json:"minLength"`
	MaxLength int `json:"maxLength"`
	// EnforceWordlist rejects answers found in the wordlist service.
	EnforceWordlist bool `json:"enforceWordlist"`
}

// PermissionPredicate gates profile eligibility by directory membership.
// Filter is evaluated against the user's own entry; Base, when set,
// additionally requires the entry to sit under that subtree.
type PermissionPredicate struct {
	Filter string `json:"filter"`
	Base   string `json:"base,omitempty"`
}

// ChallengeProfile is an immutable, permission-gated challenge policy.
// Exactly one profile applies to a user per resolution.
type ChallengeProfile struct {
	// ID names the profile.
	ID string `json:"id"`
	// Locale tags the prompt language.
	Locale string `json:"locale,omitempty"`
	// Challenges is the ordered challenge set.
	Challenges []Challenge `json:"challenges"`
	// MinimumRandomRequired is how many random-pool challenges a submission
	// must answer. Zero means every random challenge must be answered.
	MinimumRandomRequired int `json:"minimumRandomRequired"`
	// Predicates gate eligibility, evaluated in declared order.
	Predicates []PermissionPredicate `json:"predicates"`
}

// RandomChallenges returns the profile's challenges not flagged required.
func (p ChallengeProfile) RandomChallenges() []Challenge {
	var out []Challenge
	for _, c := range p.Challenges {
		if !c.Required {
			out = append(out, c)
		}
	}
	return out
}
