package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	tperrors "github.com/vnykmshr/taskprocessor/pkg/common/errors"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// Schema names the parameters a task type requires and their kinds.
// Extra parameters are allowed.
type Schema map[string]Kind

// Capability processes one task. Implementations convert their own faults
// into FAILURE or TIMEOUT results rather than returning errors.
type Capability interface {
	Process(ctx context.Context, t *task.Task) task.Result
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc func(ctx context.Context, t *task.Task) task.Result

// Process calls f(ctx, t).
func (f CapabilityFunc) Process(ctx context.Context, t *task.Task) task.Result {
	return f(ctx, t)
}

// Factory builds a capability for one resolved task.
type Factory func() Capability

type entry struct {
	schema  Schema
	factory Factory
}

// Registry maps task types to schemas and capability factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[task.Type]entry
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[task.Type]entry),
		logger:  zap.NewNop(),
	}
}

// WithLogger sets the logger used for registration messages.
func (r *Registry) WithLogger(l *zap.Logger) *Registry {
	if l != nil {
		r.logger = l
	}
	return r
}

// Register binds a task type to a schema and factory. Registering a type
// twice is an error.
func (r *Registry) Register(typ task.Type, schema Schema, factory Factory) error {
	if !typ.Valid() {
		return tperrors.NewValidationError("dispatch", "Type", typ, "unknown task type").
			WithHint("use one of compress, decompress, scale, custom")
	}
	if factory == nil {
		return tperrors.NewValidationError("dispatch", "Factory", nil, "cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[typ]; exists {
		return tperrors.NewValidationError("dispatch", "Type", typ, "already registered")
	}
	copied := make(Schema, len(schema))
	for name, kind := range schema {
		copied[name] = kind
	}
	r.entries[typ] = entry{schema: copied, factory: factory}
	r.logger.Debug("registered capability",
		zap.String("type", typ.String()),
		zap.Int("parameters", len(copied)))
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(typ task.Type, schema Schema, factory Factory) {
	if err := r.Register(typ, schema, factory); err != nil {
		panic(err)
	}
}

// Resolve validates t against its type's schema and returns a capability
// for it. Unknown types yield an *OperationError wrapping ErrUnknownType;
// a missing or mismatched parameter yields a *ValidationError wrapping
// ErrInvalidParameter. Parameters are checked in name order.
func (r *Registry) Resolve(t *task.Task) (Capability, error) {
	r.mu.RLock()
	e, ok := r.entries[t.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, tperrors.NewOperationError("dispatch", "Resolve", tperrors.ErrUnknownType).
			WithContext(fmt.Sprintf("no capability for type %q", t.Type))
	}

	if err := e.schema.Check(t.Parameters); err != nil {
		return nil, err
	}
	return e.factory(), nil
}

// Check validates params against the schema.
func (s Schema) Check(params map[string]any) error {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		kind := s[name]
		v, ok := params[name]
		if !ok || v == nil {
			return tperrors.NewParameterError("dispatch", name, nil, "missing required parameter").
				WithHint("expected " + kind.String())
		}
		if !kind.Matches(v) {
			return tperrors.NewParameterError("dispatch", name, describe(v), "wrong kind").
				WithHint(fmt.Sprintf("expected %s, got %T", kind, v))
		}
	}
	return nil
}

// Schema returns a copy of the schema registered for typ.
func (r *Registry) Schema(typ task.Type) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[typ]
	if !ok {
		return nil, false
	}
	out := make(Schema, len(e.schema))
	for name, kind := range e.schema {
		out[name] = kind
	}
	return out, true
}

// Types lists the registered task types in sorted order.
func (r *Registry) Types() []task.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]task.Type, 0, len(r.entries))
	for typ := range r.entries {
		out = append(out, typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// describe keeps large values such as image payloads out of error messages.
func describe(v any) any {
	switch b := v.(type) {
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(b))
	case string:
		if len(b) > 64 {
			return b[:64] + "..."
		}
	}
	return v
}
