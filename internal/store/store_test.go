package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewWithDB(db)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return s
}

func TestMigrateIdempotent(t *testing.T) {
	s := testStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestCreateAndFindConversation(t *testing.T) {
	s := testStore(t)

	conv, err := s.CreateConversation("Trip Planning")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.ID == "" {
		t.Error("expected non-empty id")
	}
	if conv.Name != "Trip Planning" {
		t.Errorf("name = %q", conv.Name)
	}

	found, err := s.FindConversation("Trip Planning")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil || found.ID != conv.ID {
		t.Errorf("found = %+v, want id %s", found, conv.ID)
	}
}

func TestFindConversationMissing(t *testing.T) {
	s := testStore(t)

	found, err := s.FindConversation("doesnotexist")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found != nil {
		t.Errorf("expected nil, got %+v", found)
	}
}

func TestCreateConversationDuplicate(t *testing.T) {
	s := testStore(t)

	if _, err := s.CreateConversation("Foo"); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := s.CreateConversation("Foo")
	if err == nil {
		t.Fatal("expected duplicate error")
	}

	var dup *DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("error type = %T, want *DuplicateNameError", err)
	}
	if dup.Name != "Foo" {
		t.Errorf("dup name = %q", dup.Name)
	}
}

func TestCreateConversationEmptyName(t *testing.T) {
	s := testStore(t)
	if _, err := s.CreateConversation(""); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestAppendAndLoadMessages(t *testing.T) {
	s := testStore(t)
	if _, err := s.CreateConversation("Chat"); err != nil {
		t.Fatalf("create: %v", err)
	}

	msgs := []Message{
		{Role: RoleSystem, Content: "You are a helpful assistant."},
		{Role: RoleUser, Content: "What is 2+2?"},
		{Role: RoleAssistant, ToolCalls: `[{"id":"call_1","function":{"name":"run_python_code","arguments":"{}"}}]`},
		{Role: RoleTool, ToolCallID: "call_1", ToolName: "run_python_code", Content: "4"},
		{Role: RoleAssistant, Content: "2+2 is 4."},
	}
	for i, m := range msgs {
		if err := s.AppendMessage("Chat", m); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	loaded, err := s.LoadMessages("Chat")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != len(msgs) {
		t.Fatalf("loaded %d messages, want %d", len(loaded), len(msgs))
	}

	for i, got := range loaded {
		want := msgs[i]
		if got.Role != want.Role || got.Content != want.Content ||
			got.ToolCallID != want.ToolCallID || got.ToolName != want.ToolName ||
			got.ToolCalls != want.ToolCalls {
			t.Errorf("message %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestAppendOrderingSameTimestamp(t *testing.T) {
	s := testStore(t)

	// Force identical timestamps; the autoincrement id must break ties
	// in insertion order.
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, content := range []string{"first", "second", "third"} {
		err := s.AppendMessage("Chat", Message{Role: RoleUser, Content: content, Timestamp: ts})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	loaded, err := s.LoadMessages("Chat")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, m := range loaded {
		if m.Content != want[i] {
			t.Errorf("position %d = %q, want %q", i, m.Content, want[i])
		}
	}
}

func TestAppendRejectsEmptyAssistant(t *testing.T) {
	s := testStore(t)
	err := s.AppendMessage("Chat", Message{Role: RoleAssistant})
	if err == nil {
		t.Fatal("expected error for assistant message with no content and no tool calls")
	}
}

func TestListConversationNames(t *testing.T) {
	s := testStore(t)

	if names, err := s.ListConversationNames(); err != nil || len(names) != 0 {
		t.Fatalf("empty store: names=%v err=%v", names, err)
	}

	for _, name := range []string{"Alpha", "Beta"} {
		if _, err := s.CreateConversation(name); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	names, err := s.ListConversationNames()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 || names[0] != "Alpha" || names[1] != "Beta" {
		t.Errorf("names = %v", names)
	}
}

func TestNullFieldsRoundTrip(t *testing.T) {
	s := testStore(t)

	if err := s.AppendMessage("Chat", Message{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	loaded, err := s.LoadMessages("Chat")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	m := loaded[0]
	if m.ToolCallID != "" || m.ToolName != "" || m.ToolCalls != "" {
		t.Errorf("NULL tool fields should read back empty: %+v", m)
	}
}
