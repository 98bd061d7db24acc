package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/credself/credstore/internal/models"
	"github.com/go-ldap/ldap/v3"
)

// DirectoryNative implements Operator against the directory vendor's
// native credential extension. Mechanically it is still attribute
// storage, but it writes the vendor's extension attribute set: the
// record payload plus a separate last-update timestamp attribute the
// vendor's own tooling reads.
type DirectoryNative[R any] struct {
	// Conns provides directory connections.
	Conns ConnProvider
	// PayloadAttribute is the vendor extension attribute holding the record.
	PayloadAttribute string
	// TimestampAttribute is the vendor's last-update attribute.
	TimestampAttribute string
}

// NewDirectoryNative creates a DirectoryNative operator for the given
// vendor attribute pair.
func NewDirectoryNative[R any](conns ConnProvider, payloadAttr, timestampAttr string) *DirectoryNative[R] {
	return &DirectoryNative[R]{
		Conns:              conns,
		PayloadAttribute:   payloadAttr,
		TimestampAttribute: timestampAttr,
	}
}

// Kind reports models.DirectoryNative.
func (d *DirectoryNative[R]) Kind() models.BackendKind { return models.DirectoryNative }

// NeedsGUID is false: entries are addressed by distinguished name.
func (d *DirectoryNative[R]) NeedsGUID() bool { return false }

// Read fetches the vendor payload attribute, or (nil, nil) when unset.
func (d *DirectoryNative[R]) Read(ctx context.Context, user, guid string) (*R, error) {
	return readEntryAttribute[R](ctx, d.Conns, models.DirectoryNative, user, d.PayloadAttribute)
}

// Write replaces the payload attribute and stamps the vendor timestamp
// attribute in the same modify operation.
func (d *DirectoryNative[R]) Write(ctx context.Context, user, guid string, record R) error {
	if err := writeEntryAttribute(ctx, d.Conns, models.DirectoryNative, user, d.PayloadAttribute, record); err != nil {
		return err
	}
	if d.TimestampAttribute == "" {
		return nil
	}

	conn, err := d.Conns.ConnFor(ctx, user)
	if err != nil {
		return operational(models.DirectoryNative, "write", fmt.Errorf("obtain directory connection: %w", err))
	}
	req := ldap.NewModifyRequest(user, nil)
	req.Replace(d.TimestampAttribute, []string{time.Now().UTC().Format("20060102150405Z")})
	if err := conn.Modify(req); err != nil {
		return operational(models.DirectoryNative, "write", fmt.Errorf("stamp attribute %s: %w", d.TimestampAttribute, err))
	}
	return nil
}

// Clear removes both vendor attributes.
func (d *DirectoryNative[R]) Clear(ctx context.Context, user, guid string) error {
	if err := clearEntryAttribute(ctx, d.Conns, models.DirectoryNative, user, d.PayloadAttribute); err != nil {
		return err
	}
	if d.TimestampAttribute == "" {
		return nil
	}
	return clearEntryAttribute(ctx, d.Conns, models.DirectoryNative, user, d.TimestampAttribute)
}
