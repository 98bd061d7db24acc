package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ldap/ldap/v3"
)

// SharedConnProvider hands out a single service-account directory
// connection, redialing when the previous one has gone away. go-ldap
// connections multiplex concurrent requests, so one bound connection
// serves all request goroutines; pooling belongs to the surrounding
// platform.
type SharedConnProvider struct {
	// URL, BindDN and BindPassword configure the service account bind.
	URL          string
	BindDN       string
	BindPassword string

	mu   sync.Mutex
	conn *ldap.Conn
}

// NewSharedConnProvider creates a provider that dials url on first use.
func NewSharedConnProvider(url, bindDN, bindPassword string) *SharedConnProvider {
	return &SharedConnProvider{URL: url, BindDN: bindDN, BindPassword: bindPassword}
}

// ConnFor returns the shared bound connection, dialing if necessary.
// The user handle does not affect the connection; records are
// addressed per-operation.
func (p *SharedConnProvider) ConnFor(ctx context.Context, user string) (DirectoryConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && !p.conn.IsClosing() {
		return p.conn, nil
	}

	conn, err := ldap.DialURL(p.URL)
	if err != nil {
		return nil, fmt.Errorf("dial directory %s: %w", p.URL, err)
	}
	if p.BindDN != "" {
		if err := conn.Bind(p.BindDN, p.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("bind as %s: %w", p.BindDN, err)
		}
	}
	p.conn = conn
	return conn, nil
}

// Close shuts the shared connection down.
func (p *SharedConnProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
