// Package tool resolves store-supplied tool definitions and renders them
// behind the sandbox trust boundary.
package tool

import "errors"

// Resolution failure kinds. Each maps to a distinct user-facing message; any
// of them aborts before an isolation context is constructed.
var (
	ErrNotFound       = errors.New("tool not found")
	ErrDisabled       = errors.New("tool is disabled")
	ErrTypeMismatch   = errors.New("tool is not a hosted tool")
	ErrPayloadMissing = errors.New("tool has no hosted payload")
)

// Type distinguishes tools rendered from a hosted payload from tools that
// merely link elsewhere.
type Type string

const (
	TypeHosted   Type = "hosted"
	TypeExternal Type = "external"
)

// Definition is the store-owned tool record. Read-only here; authoring is an
// external concern. The hosted payload strings are untrusted input by
// definition.
type Definition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Type        Type   `json:"type"`
	ExternalURL string `json:"externalUrl,omitempty"`
	HostedHTML  string `json:"hostedHtml,omitempty"`
	HostedCSS   string `json:"hostedCss,omitempty"`
	HostedJS    string `json:"hostedJs,omitempty"`
	ShowHeader  bool   `json:"showHeader"`
}

// Validate checks render eligibility, returning the first failing kind.
func (d *Definition) Validate() error {
	if !d.Enabled {
		return ErrDisabled
	}
	if d.Type != TypeHosted {
		return ErrTypeMismatch
	}
	if d.HostedHTML == "" {
		return ErrPayloadMissing
	}
	return nil
}
