package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/credself/credstore/internal/models"
	"github.com/go-ldap/ldap/v3"
)

// DirectoryConn is the subset of *ldap.Conn the operators use.
type DirectoryConn interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Modify(req *ldap.ModifyRequest) error
}

// ConnProvider hands out live directory connections for a user handle.
// Provided by the surrounding platform; failures are operational.
type ConnProvider interface {
	ConnFor(ctx context.Context, user string) (DirectoryConn, error)
}

// DirectoryAttr implements Operator against a general-purpose directory
// attribute. The user handle is the entry's distinguished name; the
// whole record is stored JSON-encoded as a single attribute value.
type DirectoryAttr[R any] struct {
	// Conns provides directory connections.
	Conns ConnProvider
	// Attribute is the directory attribute holding the record.
	Attribute string
}

// NewDirectoryAttr creates a DirectoryAttr operator storing records in
// the named attribute.
func NewDirectoryAttr[R any](conns ConnProvider, attribute string) *DirectoryAttr[R] {
	return &DirectoryAttr[R]{Conns: conns, Attribute: attribute}
}

// Kind reports models.DirectoryAttribute.
func (d *DirectoryAttr[R]) Kind() models.BackendKind { return models.DirectoryAttribute }

// NeedsGUID is false: entries are addressed by distinguished name.
func (d *DirectoryAttr[R]) NeedsGUID() bool { return false }

// Read fetches and decodes the attribute value, or (nil, nil) when the
// attribute is unset.
func (d *DirectoryAttr[R]) Read(ctx context.Context, user, guid string) (*R, error) {
	return readEntryAttribute[R](ctx, d.Conns, models.DirectoryAttribute, user, d.Attribute)
}

// Write replaces the attribute with the encoded record.
func (d *DirectoryAttr[R]) Write(ctx context.Context, user, guid string, record R) error {
	return writeEntryAttribute(ctx, d.Conns, models.DirectoryAttribute, user, d.Attribute, record)
}

// Clear removes the attribute. Removing an unset attribute succeeds.
func (d *DirectoryAttr[R]) Clear(ctx context.Context, user, guid string) error {
	return clearEntryAttribute(ctx, d.Conns, models.DirectoryAttribute, user, d.Attribute)
}

func readEntryAttribute[R any](ctx context.Context, conns ConnProvider, kind models.BackendKind, user, attribute string) (*R, error) {
	conn, err := conns.ConnFor(ctx, user)
	if err != nil {
		return nil, operational(kind, "read", fmt.Errorf("obtain directory connection: %w", err))
	}

	req := ldap.NewSearchRequest(
		user, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
		"(objectClass=*)", []string{attribute}, nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, nil
		}
		return nil, operational(kind, "read", fmt.Errorf("search %q: %w", user, err))
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}

	raw := res.Entries[0].GetAttributeValue(attribute)
	if raw == "" {
		return nil, nil
	}

	var record R
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, operational(kind, "read", fmt.Errorf("decode attribute %s: %w", attribute, err))
	}
	return &record, nil
}

func writeEntryAttribute[R any](ctx context.Context, conns ConnProvider, kind models.BackendKind, user, attribute string, record R) error {
	data, err := json.Marshal(record)
	if err != nil {
		return operational(kind, "write", fmt.Errorf("encode record: %w", err))
	}

	conn, err := conns.ConnFor(ctx, user)
	if err != nil {
		return operational(kind, "write", fmt.Errorf("obtain directory connection: %w", err))
	}

	req := ldap.NewModifyRequest(user, nil)
	req.Replace(attribute, []string{string(data)})
	if err := conn.Modify(req); err != nil {
		return operational(kind, "write", fmt.Errorf("replace attribute %s: %w", attribute, err))
	}
	return nil
}

func clearEntryAttribute(ctx context.Context, conns ConnProvider, kind models.BackendKind, user, attribute string) error {
	conn, err := conns.ConnFor(ctx, user)
	if err != nil {
		return operational(kind, "clear", fmt.Errorf("obtain directory connection: %w", err))
	}

	// Replace with no values removes the attribute and is idempotent,
	// unlike a delete of an already-absent attribute.
	req := ldap.NewModifyRequest(user, nil)
	req.Replace(attribute, []string{})
	if err := conn.Modify(req); err != nil {
		return operational(kind, "clear", fmt.Errorf("remove attribute %s: %w", attribute, err))
	}
	return nil
}
