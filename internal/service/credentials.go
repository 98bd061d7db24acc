// Package service exposes the credential storage and verification
// operations consumed by the web and CLI layers, delegating persistence
// to the backend orchestrators.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/credself/credstore/internal/action"
	"github.com/credself/credstore/internal/models"
	"github.com/credself/credstore/internal/otp"
	"github.com/credself/credstore/internal/validate"
	"go.uber.org/zap"
)

// RecordStore is the orchestrator surface the service depends on for
// one record type.
type RecordStore[R any] interface {
	// Read returns the user's record, or (nil, nil) when unset.
	Read(ctx context.Context, user string) (*R, error)
	// Write replaces the user's record in every configured backend.
	Write(ctx context.Context, user string, record R) error
	// Clear removes the user's record from every configured backend.
	Clear(ctx context.Context, user string) error
}

// ProfileResolver selects the applicable challenge profile for a user.
type ProfileResolver interface {
	Resolve(ctx context.Context, user string, candidates []models.ChallengeProfile) (*models.ChallengeProfile, error)
}

// ActionRunner executes configured post-verification side effects.
type ActionRunner interface {
	Execute(ctx context.Context, user string, actions []action.Action) error
}

// AnswerHashConfig controls how accepted answers are stored. Zero
// iterations stores answers raw.
type AnswerHashConfig struct {
	Algorithm  string
	Iterations int
	SaltBytes  int
}

// Service wires the orchestrators, the profile resolver, the response
// validator and the OTP lifecycle into the operations the outer layers
// call.
type Service struct {
	responses RecordStore[models.ResponseRecord]
	otps      RecordStore[models.OtpRecord]
	profiles  ProfileResolver
	validator *validate.Validator
	lifecycle *otp.Lifecycle
	hashCfg   AnswerHashConfig
	log       *zap.Logger

	actionRunner ActionRunner
	actions      []action.Action
}

// WithActions configures post-verification side effects. They run after
// every accepted verification; failures are logged, not surfaced, since
// the verification itself already succeeded.
func (s *Service) WithActions(runner ActionRunner, actions []action.Action) *Service {
	s.actionRunner = runner
	s.actions = actions
	return s
}

// New constructs a Service.
func New(
	responses RecordStore[models.ResponseRecord],
	otps RecordStore[models.OtpRecord],
	profiles ProfileResolver,
	validator *validate.Validator,
	lifecycle *otp.Lifecycle,
	hashCfg AnswerHashConfig,
	log *zap.Logger,
) *Service {
	if hashCfg.SaltBytes == 0 {
		hashCfg.SaltBytes = 16
	}
	return &Service{
		responses: responses,
		otps:      otps,
		profiles:  profiles,
		validator: validator,
		lifecycle: lifecycle,
		hashCfg:   hashCfg,
		log:       log,
	}
}

// ReadResponseRecord returns the user's stored answer set, or
// (nil, nil) when the user has none.
func (s *Service) ReadResponseRecord(ctx context.Context, user string) (*models.ResponseRecord, error) {
	return s.responses.Read(ctx, user)
}

// WriteResponseRecord fans the record out to every configured backend.
func (s *Service) WriteResponseRecord(ctx context.Context, user string, record models.ResponseRecord) error {
	return s.responses.Write(ctx, user, record)
}

// ClearResponseRecord removes the user's answer set from every
// configured backend.
func (s *Service) ClearResponseRecord(ctx context.Context, user string) error {
	return s.responses.Clear(ctx, user)
}

// ValidateSubmission checks a submitted answer map against the profile.
// A nil return means the submission is acceptable.
func (s *Service) ValidateSubmission(profile models.ChallengeProfile, answers map[models.Challenge]string) error {
	return s.validator.Validate(profile, answers)
}

// ResolveProfile picks the applicable profile for the user, first
// predicate match winning.
func (s *Service) ResolveProfile(ctx context.Context, user string, candidates []models.ChallengeProfile) (*models.ChallengeProfile, error) {
	return s.profiles.Resolve(ctx, user, candidates)
}

// PrepareResponseRecord validates the submission and, when acceptable,
// seals it into a storable record with each answer salted and hashed.
// Answers are never stored in the clear unless hashing is configured off.
func (s *Service) PrepareResponseRecord(profile models.ChallengeProfile, answers, helpdeskAnswers map[models.Challenge]string) (*models.ResponseRecord, error) {
	if err := s.validator.Validate(profile, answers); err != nil {
		return nil, err
	}

	sealed, err := s.sealAnswers(answers)
	if err != nil {
		return nil, err
	}
	record := &models.ResponseRecord{
		ChallengeSetID: profile.ID,
		Answers:        sealed,
		Timestamp:      time.Now().UTC(),
	}
	if len(helpdeskAnswers) > 0 {
		record.HelpdeskAnswers, err = s.sealAnswers(helpdeskAnswers)
		if err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (s *Service) sealAnswers(answers map[models.Challenge]string) (map[string]models.AnswerHash, error) {
	out := make(map[string]models.AnswerHash, len(answers))
	for c, a := range answers {
		if c == (models.Challenge{}) || a == "" {
			continue
		}
		if s.hashCfg.Iterations < 1 {
			out[c.Prompt] = models.AnswerHash{Hash: a}
			continue
		}

		saltBytes := make([]byte, s.hashCfg.SaltBytes)
		if _, err := rand.Read(saltBytes); err != nil {
			return nil, fmt.Errorf("generate answer salt: %w", err)
		}
		salt := base64.StdEncoding.EncodeToString(saltBytes)
		hashed, err := otp.IteratedHash(a, salt, s.hashCfg.Iterations, s.hashCfg.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("hash answer: %w", err)
		}
		out[c.Prompt] = models.AnswerHash{
			Hash:       hashed,
			Salt:       salt,
			Iterations: s.hashCfg.Iterations,
			Algorithm:  s.hashCfg.Algorithm,
		}
	}
	return out, nil
}

// ReadOtpRecord returns the user's OTP record, or (nil, nil) when unset.
func (s *Service) ReadOtpRecord(ctx context.Context, user string) (*models.OtpRecord, error) {
	return s.otps.Read(ctx, user)
}

// WriteOtpRecord fans the record out to every configured backend.
func (s *Service) WriteOtpRecord(ctx context.Context, user string, record models.OtpRecord) error {
	return s.otps.Write(ctx, user, record)
}

// ClearOtpRecord removes the user's OTP record from every configured
// backend.
func (s *Service) ClearOtpRecord(ctx context.Context, user string) error {
	return s.otps.Clear(ctx, user)
}

// GenerateOtpSetup produces a fresh OTP record for the user along with
// the raw recovery codes to display once. Nothing is persisted until
// the caller completes setup with WriteOtpRecord.
func (s *Service) GenerateOtpSetup(identifier string) (*models.OtpRecord, []string, error) {
	return s.lifecycle.Generate(identifier)
}

// VerifyOtp checks the submitted input against the user's stored
// record. When a recovery code is consumed the updated record is fanned
// back out so the code stays single-use; a write-back failure fails the
// verification rather than silently leaving the code reusable.
func (s *Service) VerifyOtp(ctx context.Context, user string, record *models.OtpRecord, input string, allowRecovery bool) (bool, error) {
	ok, updated, err := s.lifecycle.Verify(record, input, allowRecovery)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if updated != nil {
		if err := s.otps.Write(ctx, user, *updated); err != nil {
			return false, fmt.Errorf("persist consumed recovery code: %w", err)
		}
		s.log.Info("recovery code consumed",
			zap.String("user", user),
			zap.String("identifier", updated.Identifier))
	}

	if s.actionRunner != nil && len(s.actions) > 0 {
		if err := s.actionRunner.Execute(ctx, user, s.actions); err != nil {
			s.log.Warn("post-verification actions failed",
				zap.String("user", user),
				zap.Error(err))
		}
	}
	return true, nil
}
