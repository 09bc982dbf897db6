package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Tools) != 1 {
			t.Errorf("tools len = %d, want 1", len(req.Tools))
		}

		w.Header().Set("Content-Type", "application/json")
		resp := `{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{
						"id": "call_abc",
						"type": "function",
						"function": {"name": "run_python_code", "arguments": "{\"code\": \"print(1)\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
		}`
		if _, err := w.Write([]byte(resp)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "test-key", nil)
	resp, err := client.Chat(context.Background(), "gpt-4o-mini",
		[]Message{{Role: "user", Content: "compute 1"}},
		[]map[string]any{{"type": "function"}},
	)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Message.Content != "" {
		t.Errorf("content = %q, want empty for null", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool_calls len = %d, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "call_abc" || tc.Function.Name != "run_python_code" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Function.Arguments != `{"code": "print(1)"}` {
		t.Errorf("arguments = %q", tc.Function.Arguments)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 7 {
		t.Errorf("usage = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limit exceeded"}}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "", nil)
	_, err := client.Chat(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", apiErr.StatusCode)
	}
}

func TestChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "x", "model": "m", "choices": []}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "", nil)
	_, err := client.Chat(context.Background(), "m", []Message{{Role: "user", Content: "hi"}}, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
}

func TestToWireNullContent(t *testing.T) {
	wire := toWire([]Message{
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "call_1", Function: FunctionCall{Name: "f", Arguments: "{}"}}}},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: ""},
	})

	if wire[0].Content != nil {
		t.Error("tool-call-only assistant turn should send null content")
	}
	if wire[1].Content == nil || *wire[1].Content != "hello" {
		t.Error("user content should pass through")
	}
	if wire[2].Content == nil {
		t.Error("assistant turn without tool calls should send empty string, not null")
	}
}
