// Package validate checks submitted challenge/response answer sets
// against a resolved challenge profile before they are accepted for
// storage. Validation is all-or-nothing: there is no partially accepted
// submission.
package validate

import (
	"fmt"
	"strings"

	"github.com/credself/credstore/internal/models"
	"github.com/credself/credstore/internal/wordlist"
)

// Kind classifies why a submission was rejected.
type Kind string

const (
	// KindMissingChallengeText rejects a user-defined challenge with no prompt.
	KindMissingChallengeText Kind = "missing_challenge_text"
	// KindWordlistHit rejects an answer found in the wordlist.
	KindWordlistHit Kind = "answer_matches_wordlist"
	// KindAnswerLength rejects an answer outside the challenge's length bounds.
	KindAnswerLength Kind = "answer_length"
	// KindDuplicateChallenge rejects duplicated prompt text.
	KindDuplicateChallenge Kind = "duplicate_challenge"
	// KindMissingRandomResponses rejects too few random-pool answers.
	KindMissingRandomResponses Kind = "missing_random_responses"
	// KindMissingParameter rejects an empty submission.
	KindMissingParameter Kind = "missing_parameter"
)

// Error is a validation rejection. It is terminal for the submission
// and never retried.
type Error struct {
	// Kind classifies the rejection.
	Kind Kind
	// Prompt names the offending challenge, where one exists.
	Prompt string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Prompt != "" {
		return fmt.Sprintf("%s: %q", e.Kind, e.Prompt)
	}
	return string(e.Kind)
}

// Validator checks submissions against challenge profiles.
type Validator struct {
	words wordlist.Checker
}

// NewValidator constructs a Validator using the given wordlist.
// words may be nil, disabling wordlist enforcement.
func NewValidator(words wordlist.Checker) *Validator {
	return &Validator{words: words}
}

// Validate checks the submitted answers against the profile. The checks
// run in a fixed order and stop at the first failure. Entries with a
// zero challenge or an empty answer are dropped before any check runs;
// a submission left empty after dropping is rejected last, as a missing
// parameter.
func (v *Validator) Validate(profile models.ChallengeProfile, answers map[models.Challenge]string) error {
	cleaned := make(map[models.Challenge]string, len(answers))
	for c, a := range answers {
		if c == (models.Challenge{}) {
			continue
		}
		if strings.TrimSpace(a) == "" {
			continue
		}
		cleaned[c] = a
	}

	// User-defined challenges must carry their prompt text.
	for c := range cleaned {
		if !c.AdminDefined && strings.TrimSpace(c.Prompt) == "" {
			return &Error{Kind: KindMissingChallengeText}
		}
	}

	// Wordlist enforcement, where the challenge demands it.
	for c, a := range cleaned {
		if c.EnforceWordlist && v.words != nil && v.words.ContainsWord(a) {
			return &Error{Kind: KindWordlistHit, Prompt: c.Prompt}
		}
	}

	// Answer length bounds.
	for c, a := range cleaned {
		if c.MinLength > 0 && len(a) < c.MinLength {
			return &Error{Kind: KindAnswerLength, Prompt: c.Prompt}
		}
		if c.MaxLength > 0 && len(a) > c.MaxLength {
			return &Error{Kind: KindAnswerLength, Prompt: c.Prompt}
		}
	}

	// Duplicate prompt text, compared case-insensitively.
	seen := make(map[string]bool, len(cleaned))
	for c := range cleaned {
		key := strings.ToLower(strings.TrimSpace(c.Prompt))
		if seen[key] {
			return &Error{Kind: KindDuplicateChallenge, Prompt: c.Prompt}
		}
		seen[key] = true
	}

	// Random-pool coverage. A minimum of zero means the profile is a
	// recovery-style setup: every defined random challenge must be answered.
	randomSubmitted := 0
	for c := range cleaned {
		if !c.Required {
			randomSubmitted++
		}
	}
	if profile.MinimumRandomRequired == 0 {
		if randomSubmitted < len(profile.RandomChallenges()) {
			return &Error{Kind: KindMissingRandomResponses}
		}
	} else if randomSubmitted < profile.MinimumRandomRequired {
		return &Error{Kind: KindMissingRandomResponses}
	}

	if len(cleaned) == 0 {
		return &Error{Kind: KindMissingParameter}
	}
	return nil
}
