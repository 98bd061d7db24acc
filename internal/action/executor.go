// Package action executes configured post-verification side effects:
// directory attribute writes and outbound webhook calls.
package action

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/credself/credstore/internal/backend"
	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// Kind selects what an action does.
type Kind string

const (
	// KindAttribute writes or deletes a directory attribute on the user entry.
	KindAttribute Kind = "attribute"
	// KindWebhook posts a JSON body to an outbound URL.
	KindWebhook Kind = "webhook"
)

// Action is one configured side effect. Actions run in declared order;
// each is attempted regardless of earlier failures.
type Action struct {
	// Name labels the action in logs and failure reports.
	Name string `json:"name"`
	// Kind selects the behavior.
	Kind Kind `json:"kind"`
	// Attribute and Value apply to attribute actions. An empty Value
	// removes the attribute.
	Attribute string `json:"attribute,omitempty"`
	Value     string `json:"value,omitempty"`
	// URL, Method and Body apply to webhook actions. Method defaults to POST.
	URL    string `json:"url,omitempty"`
	Method string `json:"method,omitempty"`
	Body   string `json:"body,omitempty"`
}

// PartialExecutionError reports that some but not all actions succeeded.
type PartialExecutionError struct {
	Succeeded []string
	Failed    []string
	Errors    map[string]error
}

// Error implements the error interface.
func (e *PartialExecutionError) Error() string {
	return fmt.Sprintf("partial action execution: %d of %d actions succeeded, failed: %s",
		len(e.Succeeded), len(e.Succeeded)+len(e.Failed), strings.Join(e.Failed, ", "))
}

// Executor runs configured actions after a successful verification.
type Executor struct {
	conns  backend.ConnProvider
	client *http.Client
	log    *zap.Logger
}

// NewExecutor constructs an Executor. client may be nil, selecting
// http.DefaultClient.
func NewExecutor(conns backend.ConnProvider, client *http.Client, log *zap.Logger) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	return &Executor{conns: conns, client: client, log: log}
}

// Execute runs every action in order, substituting the user handle for
// "%USER%" in values, bodies and URLs. All actions are attempted; the
// call fails when any of them did, reporting which.
func (e *Executor) Execute(ctx context.Context, user string, actions []Action) error {
	if len(actions) == 0 {
		return nil
	}

	var succeeded, failed []string
	errs := make(map[string]error)
	for _, a := range actions {
		err := e.run(ctx, user, a)
		if err != nil {
			e.log.Error("post-verification action failed",
				zap.String("action", a.Name),
				zap.String("user", user),
				zap.Error(err))
			failed = append(failed, a.Name)
			errs[a.Name] = err
			continue
		}
		succeeded = append(succeeded, a.Name)
	}

	if len(failed) == 0 {
		return nil
	}
	if len(succeeded) == 0 {
		return fmt.Errorf("all %d actions failed: %w", len(failed), errs[failed[0]])
	}
	return &PartialExecutionError{Succeeded: succeeded, Failed: failed, Errors: errs}
}

func (e *Executor) run(ctx context.Context, user string, a Action) error {
	switch a.Kind {
	case KindAttribute:
		return e.runAttribute(ctx, user, a)
	case KindWebhook:
		return e.runWebhook(ctx, user, a)
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

func (e *Executor) runAttribute(ctx context.Context, user string, a Action) error {
	conn, err := e.conns.ConnFor(ctx, user)
	if err != nil {
		return fmt.Errorf("obtain directory connection: %w", err)
	}

	req := ldap.NewModifyRequest(user, nil)
	value := expand(a.Value, user)
	if value == "" {
		req.Replace(a.Attribute, []string{})
	} else {
		req.Replace(a.Attribute, []string{value})
	}
	if err := conn.Modify(req); err != nil {
		return fmt.Errorf("modify attribute %s: %w", a.Attribute, err)
	}
	return nil
}

func (e *Executor) runWebhook(ctx context.Context, user string, a Action) error {
	method := a.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, expand(a.URL, user),
		bytes.NewReader([]byte(expand(a.Body, user))))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("call webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func expand(template, user string) string {
	return strings.ReplaceAll(template, "%USER%", user)
}
