package providers

import "testing"

// TestNewByKind verifies the factory resolves provider names.
func TestNewByKind(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		wantName  string
		wantError bool
	}{
		{name: "anthropic", kind: "anthropic", wantName: "anthropic"},
		{name: "openai", kind: "openai", wantName: "openai"},
		{name: "unknown kind", kind: "parrot", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.kind, "sk-test-key", "")
			if tt.wantError {
				if err == nil {
					t.Fatal("expected error for unknown provider")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("expected name %s, got %s", tt.wantName, p.Name())
			}
			if !p.SupportsTools() {
				t.Error("expected tool support")
			}
		})
	}
}

// TestDefaultModels verifies empty model falls back to a provider default.
func TestDefaultModels(t *testing.T) {
	a := NewAnthropicProvider("sk-test", "")
	if a.model != defaultAnthropicModel {
		t.Errorf("expected default model %s, got %s", defaultAnthropicModel, a.model)
	}

	o := NewOpenAIProvider("sk-test", "custom-model")
	if o.model != "custom-model" {
		t.Errorf("expected custom model to be kept, got %s", o.model)
	}
}
