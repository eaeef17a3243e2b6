package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/speakeasy/pkg/provider/text"
)

func objectSchema() *text.Schema {
	return &text.Schema{
		Type:       text.TypeObject,
		Properties: map[string]*text.Schema{"ok": {Type: text.TypeBoolean}},
		Required:   []string{"ok"},
	}
}

// completionServer answers chat completions with content and captures the
// decoded request body.
func completionServer(t *testing.T, content string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if got != nil {
			_ = json.Unmarshal(body, got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateJSON_SendsJSONSchema(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := completionServer(t, `{"ok":true}`, &body)

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := p.GenerateJSON(context.Background(), text.Request{
		Prompt:     "Say ok.",
		Schema:     objectSchema(),
		SchemaName: "answer",
	})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if raw != `{"ok":true}` {
		t.Errorf("raw = %q", raw)
	}

	if body["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", body["model"])
	}
	rf, _ := body["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Fatalf("response_format = %v", body["response_format"])
	}
	js, _ := rf["json_schema"].(map[string]any)
	if js["name"] != "answer" || js["strict"] != true {
		t.Errorf("json_schema = %v", js)
	}
	schema, _ := js["schema"].(map[string]any)
	if schema["additionalProperties"] != false {
		t.Errorf("schema = %v", schema)
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v", msgs)
	}
	if m := msgs[0].(map[string]any); m["role"] != "user" || m["content"] != "Say ok." {
		t.Errorf("message = %v", m)
	}
}

func TestGenerateJSON_StripsFence(t *testing.T) {
	t.Parallel()

	srv := completionServer(t, "```json\n{\"ok\":false}\n```", nil)
	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := p.GenerateJSON(context.Background(), text.Request{Prompt: "x", Schema: objectSchema()})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if raw != `{"ok":false}` {
		t.Errorf("raw = %q", raw)
	}
}

func TestGenerateJSON_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad schema","type":"invalid_request_error"}}`)
	}))
	t.Cleanup(srv.Close)

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.GenerateJSON(context.Background(), text.Request{Prompt: "x", Schema: objectSchema()}); err == nil {
		t.Fatal("expected error from 400 response")
	}
}

func TestBuildParams_Rejects(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	if _, err := p.buildParams(text.Request{Schema: objectSchema()}); err == nil {
		t.Error("expected error for empty prompt")
	}
	if _, err := p.buildParams(text.Request{Prompt: "x"}); err == nil {
		t.Error("expected error for nil schema")
	}
	if _, err := p.buildParams(text.Request{Prompt: "x", Schema: &text.Schema{Type: text.TypeArray}}); err == nil {
		t.Error("expected error for non-object schema")
	}
}

// TestNew_MissingAPIKey ensures constructor rejects an empty API key.
func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New("", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// TestNew_MissingModel ensures constructor rejects an empty model.
func TestNew_MissingModel(t *testing.T) {
	_, err := New("sk-test", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_Options checks that optional settings are accepted without error.
func TestNew_Options(t *testing.T) {
	_, err := New("sk-test", "gpt-4o",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
	)
	if err != nil {
		t.Fatalf("unexpected error with valid options: %v", err)
	}
}
