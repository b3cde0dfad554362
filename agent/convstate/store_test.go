package convstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

func TestRedisKey(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{}
	got, err := store.redisKey("conv-1")
	if err != nil {
		t.Fatalf("redisKey() error = %v", err)
	}
	if got != "agent:conv:conv-1:turns" {
		t.Fatalf("redisKey() = %q", got)
	}

	if _, err := store.redisKey("   "); !errors.Is(err, ErrInvalidConversation) {
		t.Fatalf("blank id: error = %v, want ErrInvalidConversation", err)
	}
}

func TestRecentMissingConversationIsEmpty(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":null}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	turns, err := store.Recent(context.Background(), "conv-1", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("turns = %v, want empty", turns)
	}
}

func TestAppendSetsWindowWithTTL(t *testing.T) {
	t.Parallel()

	var commands [][]any
	stored := `null`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var cmd []any
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			t.Errorf("decode command: %v", err)
			return
		}
		commands = append(commands, cmd)
		switch cmd[0] {
		case "GET":
			fmt.Fprintf(w, `{"result":%s}`, stored)
		case "SET":
			payload, _ := json.Marshal(cmd[2])
			stored = string(payload)
			fmt.Fprint(w, `{"result":"OK"}`)
		}
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	err = store.Append(context.Background(), "conv-9",
		contractx.Turn{Role: "user", Content: "hello"},
		contractx.Turn{Role: "assistant", Content: "hi there"},
	)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if len(commands) != 2 {
		t.Fatalf("commands = %d, want GET then SET", len(commands))
	}
	set := commands[1]
	if set[0] != "SET" || set[1] != "agent:conv:conv-9:turns" {
		t.Fatalf("unexpected SET command: %#v", set)
	}
	if len(set) < 5 || set[3] != "EX" {
		t.Fatalf("SET must carry a TTL: %#v", set)
	}

	turns, err := store.Recent(context.Background(), "conv-9", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(turns) != 2 || turns[1].Content != "hi there" {
		t.Fatalf("turns = %+v", turns)
	}
}

func TestMemoryStoreWindowAndLimit(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < maxStoredTurns+10; i++ {
		if err := store.Append(ctx, "conv-1", contractx.Turn{Role: "user", Content: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	all, err := store.Recent(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(all) != maxStoredTurns {
		t.Fatalf("stored turns = %d, want %d", len(all), maxStoredTurns)
	}

	last, err := store.Recent(ctx, "conv-1", 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(last) != 3 || last[2].Content != fmt.Sprintf("m%d", maxStoredTurns+9) {
		t.Fatalf("last = %+v", last)
	}
}
