package trace

import (
	"context"
	"strings"
	"testing"
)

func TestGenerateID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := GenerateID()
		if !strings.HasPrefix(id, "t_") {
			t.Fatalf("missing prefix: %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate trace ID %q", id)
		}
		seen[id] = true
	}
}

func TestEnsure(t *testing.T) {
	ctx := Ensure(context.Background())
	id := FromContext(ctx)
	if id == "" {
		t.Fatal("Ensure should attach a trace ID")
	}
	if got := FromContext(Ensure(ctx)); got != id {
		t.Errorf("Ensure replaced existing ID: %q -> %q", id, got)
	}
	if FromContext(context.Background()) != "" {
		t.Error("empty context should have no trace ID")
	}
}
