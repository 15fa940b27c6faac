package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaProvider_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.Stream {
			t.Error("Expected stream=false")
		}
		if req.Model != "llama3.1:8b" {
			t.Errorf("Expected model llama3.1:8b, got %s", req.Model)
		}

		resp := ollamaResponse{
			Model:           "llama3.1:8b",
			Response:        `{"units": []}`,
			Done:            true,
			PromptEvalCount: 40,
			EvalCount:       20,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{
		BaseURL: server.URL,
		Model:   "llama3.1:8b",
		Timeout: 5,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.Generate(context.Background(), GenerateRequest{Prompt: "Decompose this item."})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Text != `{"units": []}` {
		t.Errorf("Unexpected text: %s", resp.Text)
	}
	if resp.TokensUsed != 60 {
		t.Errorf("Expected 60 tokens used, got %d", resp.TokensUsed)
	}
}

func TestOllamaProvider_Generate_RequiresModel(t *testing.T) {
	provider, err := NewOllamaProvider(Config{BaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if _, err := provider.Generate(context.Background(), GenerateRequest{Prompt: "x"}); err == nil {
		t.Error("Expected error when model not specified")
	}
}

func TestNewProvider_Factory(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantNil  bool
		wantErr  bool
	}{
		{"disabled", "", true, false},
		{"openai", "openai", false, false},
		{"anthropic alias", "claude", false, false},
		{"ollama", "ollama", false, false},
		{"unknown", "palm", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Provider: tt.provider, APIKey: "test-key"}
			p, err := NewProvider(cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider failed: %v", err)
			}
			if tt.wantNil && p != nil {
				t.Error("Expected nil provider when disabled")
			}
			if !tt.wantNil && p == nil {
				t.Error("Expected provider, got nil")
			}
		})
	}
}
