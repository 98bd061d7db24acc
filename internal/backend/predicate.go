package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/credself/credstore/internal/models"
	"github.com/go-ldap/ldap/v3"
)

// DirectoryPredicateEvaluator checks permission predicates by running
// the predicate's filter as a base-scoped search against the user's own
// entry. A predicate base, when set, requires the entry to sit under
// that subtree.
type DirectoryPredicateEvaluator struct {
	// Conns provides directory connections.
	Conns ConnProvider
}

// NewDirectoryPredicateEvaluator creates an evaluator over conns.
func NewDirectoryPredicateEvaluator(conns ConnProvider) *DirectoryPredicateEvaluator {
	return &DirectoryPredicateEvaluator{Conns: conns}
}

// Matches reports whether the user's entry satisfies the predicate.
// A filter that matches no entry is a clean non-match; connection and
// protocol failures are returned as errors for the caller to log.
func (e *DirectoryPredicateEvaluator) Matches(ctx context.Context, user string, predicate models.PermissionPredicate) (bool, error) {
	if predicate.Base != "" && !dnUnder(user, predicate.Base) {
		return false, nil
	}

	filter := predicate.Filter
	if filter == "" {
		filter = "(objectClass=*)"
	}

	conn, err := e.Conns.ConnFor(ctx, user)
	if err != nil {
		return false, fmt.Errorf("obtain directory connection: %w", err)
	}

	req := ldap.NewSearchRequest(
		user, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
		filter, []string{"1.1"}, nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return false, nil
		}
		return false, fmt.Errorf("evaluate filter %q: %w", filter, err)
	}
	return len(res.Entries) > 0, nil
}

// dnUnder reports whether dn sits at or below base, compared
// case-insensitively the way directories compare distinguished names.
func dnUnder(dn, base string) bool {
	d := strings.ToLower(strings.ReplaceAll(dn, ", ", ","))
	b := strings.ToLower(strings.ReplaceAll(base, ", ", ","))
	return d == b || strings.HasSuffix(d, ","+b)
}
