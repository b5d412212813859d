package instance

import "testing"

func TestGetIDPrefersDyno(t *testing.T) {
	t.Setenv("DYNO", "web.1")
	t.Setenv("STOREFRONT_INSTANCE_ID", "pod-7")
	if got := GetID(); got != "web.1" {
		t.Fatalf("expected dyno id, got %q", got)
	}
}

func TestGetIDFallsBackToInstanceEnv(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("STOREFRONT_INSTANCE_ID", " pod-7 ")
	if got := GetID(); got != "pod-7" {
		t.Fatalf("expected trimmed instance id, got %q", got)
	}
}

func TestGetIDNeverEmpty(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("STOREFRONT_INSTANCE_ID", "")
	if GetID() == "" {
		t.Fatalf("expected a non-empty id")
	}
}
