package resilientcache

import "strings"

// KeyBuilder composes namespaced cache keys. It is a value type: every
// scoping call returns a new independent builder, so a builder handed to a
// collaborator can never be mutated under them.
type KeyBuilder struct {
	parts     []string
	separator string
}

// NewKeyBuilder creates a builder with the given root segments, joined by
// ":".
func NewKeyBuilder(parts ...string) KeyBuilder {
	return KeyBuilder{
		parts:     append([]string(nil), parts...),
		separator: ":",
	}
}

// WithSeparator returns a copy using the given separator.
func (b KeyBuilder) WithSeparator(sep string) KeyBuilder {
	c := b.copy()
	c.separator = sep
	return c
}

// Scope returns a copy extended with additional segments.
func (b KeyBuilder) Scope(parts ...string) KeyBuilder {
	c := b.copy()
	c.parts = append(c.parts, parts...)
	return c
}

// Key joins the builder's segments and the given leaf into a full cache key.
func (b KeyBuilder) Key(leaf string) string {
	if len(b.parts) == 0 {
		return leaf
	}
	return b.Prefix() + leaf
}

// Prefix returns the builder's segments joined with a trailing separator,
// suitable for DeleteByPrefix.
func (b KeyBuilder) Prefix() string {
	if len(b.parts) == 0 {
		return ""
	}
	return strings.Join(b.parts, b.sep()) + b.sep()
}

func (b KeyBuilder) sep() string {
	if b.separator == "" {
		return ":"
	}
	return b.separator
}

func (b KeyBuilder) copy() KeyBuilder {
	return KeyBuilder{
		parts:     append([]string(nil), b.parts...),
		separator: b.separator,
	}
}
