package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"toolhost/internal/store"
)

// Resolver reads tool definitions from the aggregate store. This is the one
// read the render path blocks on; everything downstream is fire-and-forget.
type Resolver struct {
	st  store.Store
	log *zap.Logger
}

func NewResolver(st store.Store, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{st: st, log: log}
}

// Resolve loads and validates the definition for id. Failure kinds are
// distinct sentinels so the caller can word the error panel per kind;
// transport failures surface as store.ErrUnavailable.
func (r *Resolver) Resolve(ctx context.Context, id string) (*Definition, error) {
	v, err := r.st.Get(ctx, store.Join("tools", id))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	// Round-trip through JSON to map the tree value onto the record shape.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: malformed record", ErrNotFound, id)
	}
	def := &Definition{ID: id}
	if err := json.Unmarshal(raw, def); err != nil {
		return nil, fmt.Errorf("%w: %q: malformed record", ErrNotFound, id)
	}
	def.ID = id

	if err := def.Validate(); err != nil {
		r.log.Debug("tool failed eligibility", zap.String("tool_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %q", err, id)
	}
	return def, nil
}
