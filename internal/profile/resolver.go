// Package profile selects the challenge policy profile that applies to
// a user by evaluating directory permission predicates in declared order.
package profile

import (
	"context"
	"errors"

	"github.com/credself/credstore/internal/models"
	"go.uber.org/zap"
)

// ErrNoProfileAssigned is returned when no configured profile's
// predicate matches the user. The calling flow cannot proceed without
// an assigned policy.
var ErrNoProfileAssigned = errors.New("no challenge profile is assigned to the user")

// PredicateEvaluator checks a permission predicate against a user's
// directory entry. Implemented over the directory connection provider.
type PredicateEvaluator interface {
	Matches(ctx context.Context, user string, predicate models.PermissionPredicate) (bool, error)
}

// Resolver picks the first profile whose predicate matches.
type Resolver struct {
	eval PredicateEvaluator
	log  *zap.Logger
}

// NewResolver constructs a Resolver using the provided evaluator.
func NewResolver(eval PredicateEvaluator, log *zap.Logger) *Resolver {
	return &Resolver{eval: eval, log: log}
}

// Resolve evaluates each candidate profile's predicates in declared
// order and returns the first profile with a matching predicate. A
// profile with no predicates matches everyone. Evaluation errors are
// logged and count as a non-match; resolution continues with the next
// profile. An empty candidate list, or no match, yields
// ErrNoProfileAssigned.
func (r *Resolver) Resolve(ctx context.Context, user string, candidates []models.ChallengeProfile) (*models.ChallengeProfile, error) {
	for i := range candidates {
		p := &candidates[i]
		if len(p.Predicates) == 0 {
			return p, nil
		}
		for _, pred := range p.Predicates {
			ok, err := r.eval.Matches(ctx, user, pred)
			if err != nil {
				r.log.Warn("profile predicate evaluation failed, treating as non-match",
					zap.String("profile", p.ID),
					zap.String("user", user),
					zap.String("filter", pred.Filter),
					zap.Error(err))
				continue
			}
			if ok {
				return p, nil
			}
		}
	}
	return nil, ErrNoProfileAssigned
}
