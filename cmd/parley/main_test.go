package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/parleyhq/parley/internal/api"
)

func TestRunVersionText(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), strings.NewReader(""), &out, &out, []string{"version"}); err != nil {
		t.Fatalf("run version: %v", err)
	}
	if !strings.Contains(out.String(), "Parley") {
		t.Errorf("version output missing banner: %q", out.String())
	}
	if !strings.Contains(out.String(), "go_version:") {
		t.Errorf("version output missing go_version: %q", out.String())
	}
}

func TestRunVersionJSON(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), strings.NewReader(""), &out, &out, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run version: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, out.String())
	}
	if info["version"] == "" {
		t.Errorf("version field missing: %v", info)
	}
}

func TestRunArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"bogus"}},
		{"unknown flag", []string{"-bogus"}},
		{"bad output format", []string{"-o", "xml", "version"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(context.Background(), strings.NewReader(""), &out, &out, tt.args); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), strings.NewReader(""), &out, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("usage output = %q", out.String())
	}
}

// stubServer serves canned /v1/list and /v1/text responses.
func stubServer(t *testing.T, names []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/list", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.ListResponse{ConversationNames: names})
	})
	mux.HandleFunc("POST /v1/text", func(w http.ResponseWriter, r *http.Request) {
		var req api.TextRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		name := req.ConversationName
		if name == "" {
			name = "Fresh Chat"
		}
		json.NewEncoder(w).Encode(api.TextResponse{
			ConversationName: name,
			Content:          "reply to " + req.Content,
		})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestRunList(t *testing.T) {
	ts := stubServer(t, []string{"Alpha", "Beta"})

	var out bytes.Buffer
	err := run(context.Background(), strings.NewReader(""), &out, &out,
		[]string{"-server", ts.URL, "list"})
	if err != nil {
		t.Fatalf("run list: %v", err)
	}
	if got := out.String(); got != "Alpha\nBeta\n" {
		t.Errorf("list output = %q", got)
	}
}

func TestRunListJSON(t *testing.T) {
	ts := stubServer(t, nil)

	var out bytes.Buffer
	err := run(context.Background(), strings.NewReader(""), &out, &out,
		[]string{"-server", ts.URL, "-o", "json", "list"})
	if err != nil {
		t.Fatalf("run list: %v", err)
	}
	var names []string
	if err := json.Unmarshal(out.Bytes(), &names); err != nil {
		t.Fatalf("list output is not JSON: %v\n%s", err, out.String())
	}
	if names == nil {
		t.Error("json list is null, want []")
	}
}

func TestRunChatSession(t *testing.T) {
	ts := stubServer(t, nil)

	stdin := strings.NewReader("hello\nexit\n")
	var out bytes.Buffer
	err := run(context.Background(), stdin, &out, &out,
		[]string{"-server", ts.URL, "chat"})
	if err != nil {
		t.Fatalf("run chat: %v", err)
	}
	if !strings.Contains(out.String(), "reply to hello") {
		t.Errorf("chat output missing reply: %q", out.String())
	}
	if !strings.Contains(out.String(), "[conversation: Fresh Chat]") {
		t.Errorf("chat output missing conversation banner: %q", out.String())
	}
}

func TestRunChatSelectsExisting(t *testing.T) {
	ts := stubServer(t, []string{"Alpha", "Beta"})

	// Pick conversation 2, send one message, quit.
	stdin := strings.NewReader("2\nhi\nquit\n")
	var out bytes.Buffer
	err := run(context.Background(), stdin, &out, &out,
		[]string{"-server", ts.URL, "chat"})
	if err != nil {
		t.Fatalf("run chat: %v", err)
	}
	if !strings.Contains(out.String(), `Continuing "Beta"`) {
		t.Errorf("chat output missing selection: %q", out.String())
	}
}

func TestSelectConversation(t *testing.T) {
	names := []string{"Alpha", "Beta"}
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"empty starts new", "\n", "", false},
		{"new keyword", "new\n", "", false},
		{"by number", "1\n", "Alpha", false},
		{"by name", "Beta\n", "Beta", false},
		{"out of range", "9\n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			scanner := bufio.NewScanner(strings.NewReader(tt.input))
			got, err := selectConversation(&out, scanner, names)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("selectConversation: %v", err)
			}
			if got != tt.want {
				t.Errorf("selectConversation = %q, want %q", got, tt.want)
			}
		})
	}
}
