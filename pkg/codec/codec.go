// Package codec provides the wire encodings used to publish tasks and
// results outside the process.
//
// Three codecs are built in: JSON, deterministic CBOR and a Protocol
// Buffers codec that carries arbitrary values as google.protobuf.Struct.
// A Registry resolves them by content type or short name.
package codec

import (
	"fmt"
	"sort"
	"strings"
)

// Codec marshals values to and from a wire format.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Short names accepted by Registry.Lookup in addition to content types.
var aliases = map[string]string{
	"json":     "application/json",
	"cbor":     "application/cbor",
	"proto":    "application/x-protobuf",
	"protobuf": "application/x-protobuf",
}

// Registry maps content types to codecs.
type Registry struct {
	byType map[string]Codec
}

// NewRegistry constructs a registry preloaded with the JSON, CBOR and
// Protobuf codecs.
func NewRegistry() (*Registry, error) {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(Proto())
	c, err := CBOR()
	if err != nil {
		return nil, err
	}
	r.Register(c)
	return r, nil
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) {
	r.byType[c.ContentType()] = c
}

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec {
	return r.byType[contentType]
}

// Lookup resolves a content type or short name such as "cbor".
func (r *Registry) Lookup(name string) (Codec, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if ct, ok := aliases[key]; ok {
		key = ct
	}
	if c := r.byType[key]; c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("codec: no codec registered for %q (have %s)", name, strings.Join(r.ContentTypes(), ", "))
}

// ContentTypes lists the registered content types in sorted order.
func (r *Registry) ContentTypes() []string {
	out := make([]string, 0, len(r.byType))
	for ct := range r.byType {
		out = append(out, ct)
	}
	sort.Strings(out)
	return out
}
