package backend

import (
	"context"
	"fmt"

	"github.com/credself/credstore/internal/models"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// DirectoryGuidResolver resolves a user's stable surrogate identifier
// from a directory attribute (entryUUID, objectGUID or similar). The
// value is normalized to canonical UUID form so that every backend keys
// records identically regardless of the directory's wire encoding.
type DirectoryGuidResolver struct {
	// Conns provides directory connections.
	Conns ConnProvider
	// Attribute is the directory attribute carrying the identifier.
	Attribute string
}

// NewDirectoryGuidResolver creates a resolver reading the named attribute.
func NewDirectoryGuidResolver(conns ConnProvider, attribute string) *DirectoryGuidResolver {
	return &DirectoryGuidResolver{Conns: conns, Attribute: attribute}
}

// Resolve reads and normalizes the user's surrogate identifier.
// A user entry without the attribute is an operational error: backends
// that need the identifier cannot proceed without it.
func (r *DirectoryGuidResolver) Resolve(ctx context.Context, user string) (string, error) {
	conn, err := r.Conns.ConnFor(ctx, user)
	if err != nil {
		return "", operational(models.DirectoryAttribute, "resolve guid", fmt.Errorf("obtain directory connection: %w", err))
	}

	req := ldap.NewSearchRequest(
		user, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
		"(objectClass=*)", []string{r.Attribute}, nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return "", operational(models.DirectoryAttribute, "resolve guid", fmt.Errorf("search %q: %w", user, err))
	}
	if len(res.Entries) == 0 {
		return "", operational(models.DirectoryAttribute, "resolve guid", fmt.Errorf("no entry for %q", user))
	}

	raw := res.Entries[0].GetRawAttributeValue(r.Attribute)
	if len(raw) == 0 {
		return "", operational(models.DirectoryAttribute, "resolve guid", fmt.Errorf("entry %q has no %s value", user, r.Attribute))
	}
	return NormalizeGUID(raw)
}

// NormalizeGUID converts a directory identifier value to canonical UUID
// string form. Binary values (Active Directory objectGUID) are 16 raw
// bytes; others are already textual UUIDs.
func NormalizeGUID(raw []byte) (string, error) {
	if len(raw) == 16 {
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return "", fmt.Errorf("parse binary guid: %w", err)
		}
		return id.String(), nil
	}
	id, err := uuid.Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("parse guid %q: %w", string(raw), err)
	}
	return id.String(), nil
}
