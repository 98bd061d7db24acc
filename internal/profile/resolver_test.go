package profile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/credself/credstore/internal/models"
	"github.com/credself/credstore/internal/profile"
	"go.uber.org/zap"
)

// mockEvaluator answers predicate checks from a script keyed by filter.
type mockEvaluator struct {
	matches map[string]bool
	errs    map[string]error
	calls   []string
}

func (m *mockEvaluator) Matches(ctx context.Context, user string, predicate models.PermissionPredicate) (bool, error) {
	m.calls = append(m.calls, predicate.Filter)
	if err, ok := m.errs[predicate.Filter]; ok {
		return false, err
	}
	return m.matches[predicate.Filter], nil
}

func profileWithFilter(id, filter string) models.ChallengeProfile {
	return models.ChallengeProfile{
		ID:         id,
		Predicates: []models.PermissionPredicate{{Filter: filter}},
	}
}

func TestResolve_FirstMatchWinsDeterministically(t *testing.T) {
	eval := &mockEvaluator{matches: map[string]bool{"(ou=staff)": true, "(ou=everyone)": true}}
	r := profile.NewResolver(eval, zap.NewNop())

	candidates := []models.ChallengeProfile{
		profileWithFilter("P1", "(ou=staff)"),
		profileWithFilter("P2", "(ou=everyone)"),
	}

	for i := 0; i < 10; i++ {
		got, err := r.Resolve(context.Background(), "cn=alice", candidates)
		if err != nil {
			t.Fatalf("Resolve error: %v", err)
		}
		if got.ID != "P1" {
			t.Fatalf("Resolve = %s on iteration %d; want P1 every time", got.ID, i)
		}
	}
}

func TestResolve_EmptyCandidateList(t *testing.T) {
	r := profile.NewResolver(&mockEvaluator{}, zap.NewNop())
	_, err := r.Resolve(context.Background(), "cn=alice", nil)
	if !errors.Is(err, profile.ErrNoProfileAssigned) {
		t.Fatalf("Resolve error = %v; want ErrNoProfileAssigned", err)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	eval := &mockEvaluator{matches: map[string]bool{}}
	r := profile.NewResolver(eval, zap.NewNop())

	_, err := r.Resolve(context.Background(), "cn=alice", []models.ChallengeProfile{
		profileWithFilter("P1", "(ou=staff)"),
	})
	if !errors.Is(err, profile.ErrNoProfileAssigned) {
		t.Fatalf("Resolve error = %v; want ErrNoProfileAssigned", err)
	}
}

func TestResolve_EvaluationErrorIsNonMatch(t *testing.T) {
	eval := &mockEvaluator{
		matches: map[string]bool{"(ou=fallback)": true},
		errs:    map[string]error{"(ou=broken)": errors.New("search timed out")},
	}
	r := profile.NewResolver(eval, zap.NewNop())

	got, err := r.Resolve(context.Background(), "cn=alice", []models.ChallengeProfile{
		profileWithFilter("P1", "(ou=broken)"),
		profileWithFilter("P2", "(ou=fallback)"),
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got.ID != "P2" {
		t.Fatalf("Resolve = %s; want P2 after P1's predicate errored", got.ID)
	}
	if len(eval.calls) != 2 {
		t.Errorf("evaluator called %d times; want 2", len(eval.calls))
	}
}

func TestResolve_ProfileWithoutPredicatesMatchesEveryone(t *testing.T) {
	r := profile.NewResolver(&mockEvaluator{}, zap.NewNop())
	got, err := r.Resolve(context.Background(), "cn=anyone", []models.ChallengeProfile{
		{ID: "open"},
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got.ID != "open" {
		t.Fatalf("Resolve = %s; want open", got.ID)
	}
}
