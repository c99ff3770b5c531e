package resilientcache

import "testing"

func TestKeyBuilderComposition(t *testing.T) {
	b := NewKeyBuilder("app", "prod")

	if got := b.Key("user"); got != "app:prod:user" {
		t.Errorf("Expected app:prod:user, got %q", got)
	}
	if got := b.Prefix(); got != "app:prod:" {
		t.Errorf("Expected app:prod:, got %q", got)
	}
}

func TestKeyBuilderScopeReturnsIndependentCopy(t *testing.T) {
	base := NewKeyBuilder("app")
	sessions := base.Scope("sessions")
	users := base.Scope("users")

	if got := sessions.Key("s1"); got != "app:sessions:s1" {
		t.Errorf("Expected app:sessions:s1, got %q", got)
	}
	if got := users.Key("u1"); got != "app:users:u1" {
		t.Errorf("Expected app:users:u1, got %q", got)
	}
	// The base must be untouched by either extension.
	if got := base.Key("x"); got != "app:x" {
		t.Errorf("Expected base unchanged, got %q", got)
	}
}

func TestKeyBuilderScopeDoesNotAliasBackingArray(t *testing.T) {
	base := NewKeyBuilder("app").Scope("a")
	first := base.Scope("b")
	second := base.Scope("c")

	if got := first.Key("k"); got != "app:a:b:k" {
		t.Errorf("Expected app:a:b:k, got %q", got)
	}
	if got := second.Key("k"); got != "app:a:c:k" {
		t.Errorf("Expected app:a:c:k, got %q", got)
	}
}

func TestKeyBuilderSeparator(t *testing.T) {
	b := NewKeyBuilder("a", "b").WithSeparator("/")
	if got := b.Key("c"); got != "a/b/c" {
		t.Errorf("Expected a/b/c, got %q", got)
	}
}

func TestKeyBuilderEmpty(t *testing.T) {
	var b KeyBuilder
	if got := b.Key("solo"); got != "solo" {
		t.Errorf("Expected solo, got %q", got)
	}
	if got := b.Prefix(); got != "" {
		t.Errorf("Expected empty prefix, got %q", got)
	}
}
