package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "openai", body: `{"choices":[{"message":{"role":"assistant","content":"SELECT 1;"}}]}`, want: "SELECT 1;"},
		{name: "ollama", body: `{"model":"llama3","message":{"role":"assistant","content":"SELECT 2;"},"done":true}`, want: "SELECT 2;"},
		{name: "anthropic", body: `{"content":[{"type":"text","text":"SELECT "},{"type":"text","text":"3;"}]}`, want: "SELECT 3;"},
		{name: "legacy completion", body: `{"choices":[{"text":"SELECT 4;"}]}`, want: "SELECT 4;"},
		{name: "generate endpoint", body: `{"response":"SELECT 5;"}`, want: "SELECT 5;"},
		{name: "flat content", body: `{"content":"SELECT 6;"}`, want: "SELECT 6;"},
		{name: "json string", body: `"SELECT 7;"`, want: "SELECT 7;"},
		{name: "plain text", body: "SELECT 8;\n", want: "SELECT 8;"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Extract([]byte(tc.body))
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("Extract() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractEmpty(t *testing.T) {
	for _, body := range []string{"", "   ", `{"choices":[]}`, `{"message":{"content":""}}`, `""`, `42`} {
		if _, err := Extract([]byte(body)); !errors.Is(err, ErrEmptyCompletion) {
			t.Fatalf("Extract(%q) error = %v, want ErrEmptyCompletion", body, err)
		}
	}
}

func TestStripReasoning(t *testing.T) {
	in := "<THINK>plan\nthe query</THINK><thinking>more</thinking>[thinking]x[/THINKING]<thoughts>y</thoughts><reasoning>z</reasoning>\nSELECT 1;"
	if got := StripReasoning(in); got != "SELECT 1;" {
		t.Fatalf("StripReasoning() = %q", got)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Provider: "openai", Model: "gpt-4o-mini"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("New(openai without key) error = %v", err)
	}
	if _, err := New(Config{Provider: "anthropic", Model: "claude"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("New(anthropic without key) error = %v", err)
	}
	if _, err := New(Config{Provider: "palm", Model: "x"}); err == nil {
		t.Fatal("expected unsupported provider error")
	}
	if _, err := New(Config{Provider: "ollama", BaseURL: "http://localhost:11434"}); err == nil {
		t.Fatal("expected missing model error")
	}
}

func TestOllamaProviderSendsChatRequest(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected Authorization header")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"<think>hmm</think>SELECT 1;"},"done":true}`))
	}))
	defer srv.Close()

	provider, err := New(Config{Provider: "ollama", BaseURL: srv.URL + "/", Model: "llama3"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got, err := provider.Complete(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "user"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "SELECT 1;" {
		t.Fatalf("Complete() = %q", got)
	}
	if captured["stream"] != false || captured["model"] != "llama3" {
		t.Fatalf("payload = %#v", captured)
	}
	options, _ := captured["options"].(map[string]any)
	if options["temperature"] != 0.1 || options["num_predict"] != float64(1000) {
		t.Fatalf("options = %#v", options)
	}
	messages, _ := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %#v", messages)
	}
}

func TestOllamaProviderReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	provider, err := New(Config{Provider: "ollama", BaseURL: srv.URL, Model: "missing"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := provider.Complete(context.Background(), Request{UserPrompt: "x"}); err == nil || !strings.Contains(err.Error(), "status=404") {
		t.Fatalf("Complete() error = %v", err)
	}
}

func TestOpenAIProviderUsesChatCompletions(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"SELECT id FROM users;"}}]}`))
	}))
	defer srv.Close()

	provider, err := New(Config{Provider: "openai", BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got, err := provider.Complete(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "list users"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "SELECT id FROM users;" {
		t.Fatalf("Complete() = %q", got)
	}
	if captured["model"] != "gpt-4o-mini" || captured["temperature"] != 0.1 || captured["max_tokens"] != float64(1000) {
		t.Fatalf("payload = %#v", captured)
	}
}

func TestAnthropicProviderUsesMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "ak-test" {
			t.Errorf("X-Api-Key = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1","type":"message","role":"assistant","model":"claude","content":[{"type":"text","text":"SELECT 1;"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer srv.Close()

	provider, err := New(Config{Provider: "anthropic", BaseURL: srv.URL, APIKey: "ak-test", Model: "claude"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got, err := provider.Complete(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "one"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "SELECT 1;" {
		t.Fatalf("Complete() = %q", got)
	}
}

func TestCompleteOnlyReasoningIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"<think>no answer</think>"}}`))
	}))
	defer srv.Close()

	provider, err := New(Config{Provider: "ollama", BaseURL: srv.URL, Model: "llama3"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := provider.Complete(context.Background(), Request{UserPrompt: "x"}); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("Complete() error = %v, want ErrEmptyCompletion", err)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":" OK \n"}}`))
	}))
	defer srv.Close()

	provider, err := New(Config{Provider: "ollama", BaseURL: srv.URL, Model: "llama3"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	reply, err := Ping(context.Background(), provider)
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if reply != "OK" {
		t.Fatalf("Ping() = %q", reply)
	}
}
