package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/api"
	"github.com/parleyhq/parley/internal/httpkit"
)

// chatClient talks to a running parley server over its HTTP API.
type chatClient struct {
	baseURL string
	client  *http.Client
}

func newChatClient(serverURL string) *chatClient {
	// A turn with tool rounds can take a while: no overall timeout, and
	// a generous window for the server to produce response headers.
	transport := httpkit.NewTransport()
	transport.ResponseHeaderTimeout = 120 * time.Second
	return &chatClient{
		baseURL: strings.TrimRight(serverURL, "/"),
		client: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(transport),
		),
	}
}

func (c *chatClient) listConversations(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list conversations: status %d: %s",
			resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	var listed api.ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return listed.ConversationNames, nil
}

// sendText submits one turn and returns the settled response along with
// the conversation name, which matters when the server just created it.
func (c *chatClient) sendText(ctx context.Context, conversationName, content string) (*api.TextResponse, error) {
	body, err := json.Marshal(api.TextRequest{
		ConversationName: conversationName,
		Content:          content,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/text", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("send message: status %d: %s",
			resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	var text api.TextResponse
	if err := json.NewDecoder(resp.Body).Decode(&text); err != nil {
		return nil, fmt.Errorf("decode text response: %w", err)
	}
	return &text, nil
}

// runList handles the "parley list" subcommand.
func runList(ctx context.Context, stdout io.Writer, serverURL, outputFmt string) error {
	client := newChatClient(serverURL)
	names, err := client.listConversations(ctx)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		if names == nil {
			names = []string{}
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(names)
	}

	if len(names) == 0 {
		fmt.Fprintln(stdout, "No conversations.")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(stdout, name)
	}
	return nil
}

// runChat handles the "parley chat" subcommand: an interactive terminal
// session against a running server. The user picks an existing
// conversation by number or starts a new one, then exchanges turns
// until typing "exit" or "quit" (or closing stdin).
func runChat(ctx context.Context, stdin io.Reader, stdout io.Writer, serverURL string) error {
	client := newChatClient(serverURL)
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	names, err := client.listConversations(ctx)
	if err != nil {
		return err
	}

	conversation, err := selectConversation(stdout, scanner, names)
	if err != nil {
		return err
	}
	if conversation == "" {
		fmt.Fprintln(stdout, "Starting a new conversation.")
	} else {
		fmt.Fprintf(stdout, "Continuing %q.\n", conversation)
	}
	fmt.Fprintln(stdout, `Type "exit" or "quit" to leave.`)

	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		resp, err := client.sendText(ctx, conversation, line)
		if err != nil {
			fmt.Fprintf(stdout, "error: %v\n", err)
			continue
		}

		if conversation == "" {
			conversation = resp.ConversationName
			fmt.Fprintf(stdout, "[conversation: %s]\n", conversation)
		}
		fmt.Fprintln(stdout, resp.Content)
	}
}

// selectConversation shows the existing conversations and reads the
// user's pick. Empty input or "new" starts a fresh conversation; a
// number selects from the list; anything else is taken as a name.
func selectConversation(stdout io.Writer, scanner *bufio.Scanner, names []string) (string, error) {
	if len(names) == 0 {
		return "", nil
	}

	fmt.Fprintln(stdout, "Conversations:")
	for i, name := range names {
		fmt.Fprintf(stdout, "  %d. %s\n", i+1, name)
	}
	fmt.Fprint(stdout, "Select a conversation by number, or press enter for a new one: ")

	if !scanner.Scan() {
		return "", scanner.Err()
	}
	choice := strings.TrimSpace(scanner.Text())
	if choice == "" || choice == "new" {
		return "", nil
	}

	if n, err := strconv.Atoi(choice); err == nil {
		if n < 1 || n > len(names) {
			return "", fmt.Errorf("no conversation numbered %d", n)
		}
		return names[n-1], nil
	}

	return choice, nil
}
