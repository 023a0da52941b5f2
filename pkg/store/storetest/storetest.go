// Package storetest holds behavior tests shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/store"
)

// RunBoards exercises a store.Boards implementation. The store must start empty for the
// users "alice" and "bob".
func RunBoards(t *testing.T, s store.Boards) {
	t.Helper()
	ctx := context.Background()

	first, err := s.Create(ctx, "alice", types.BoardInput{
		Title:       "Baking",
		Description: "cookie content",
		Links:       []string{"https://youtu.be/a"},
		Docs:        []types.ContentDoc{{Name: "notes.txt", Text: "butter"}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.ID == "" || first.Title != "Baking" || len(first.Docs) != 1 || first.Docs[0].ID == "" {
		t.Fatalf("created = %+v", first)
	}
	second, err := s.Create(ctx, "alice", types.BoardInput{Title: "Travel"})
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}
	if _, err := s.Create(ctx, "bob", types.BoardInput{Title: "Bob's"}); err != nil {
		t.Fatalf("Create bob: %v", err)
	}

	list, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("list = %+v, want newest first", list)
	}

	title := "Baking 2"
	links := []string{"https://example.com"}
	updated, err := s.Update(ctx, "alice", first.ID, types.BoardPatch{Title: &title, Links: &links})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "Baking 2" || updated.Description != "cookie content" || len(updated.Links) != 1 || updated.Links[0] != "https://example.com" || len(updated.Docs) != 1 {
		t.Fatalf("updated = %+v", updated)
	}

	got, err := s.Get(ctx, "alice", first.ID)
	if err != nil || got.Title != "Baking 2" {
		t.Fatalf("Get = %+v, %v", got, err)
	}

	if _, err := s.Get(ctx, "bob", first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("foreign Get err = %v", err)
	}
	if _, err := s.Update(ctx, "bob", first.ID, types.BoardPatch{Title: &title}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("foreign Update err = %v", err)
	}
	if err := s.Delete(ctx, "bob", first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("foreign Delete err = %v", err)
	}

	if err := s.Delete(ctx, "alice", first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "alice", first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get after delete err = %v", err)
	}
	if err := s.Delete(ctx, "alice", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Delete missing err = %v", err)
	}
}

// RunChats exercises a store.Chats implementation. The store must start empty for the users
// "alice" and "bob".
func RunChats(t *testing.T, s store.Chats) {
	t.Helper()
	ctx := context.Background()

	msgs := []types.Message{
		{Role: types.RoleAssistant, Content: "Hi! I'm Poppy", Provider: types.ProviderOpenAI},
		{Role: types.RoleUser, Content: "hooks please"},
		{Role: types.RoleAssistant, Content: "Hook 1: ...", Provider: types.ProviderClaude},
	}
	first, err := s.Save(ctx, "alice", "hooks please", msgs)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if first.ID == "" || first.Title != "hooks please" || first.SavedAt.IsZero() {
		t.Fatalf("saved = %+v", first)
	}
	second, err := s.Save(ctx, "alice", "Chat notes", nil)
	if err != nil {
		t.Fatalf("Save empty: %v", err)
	}
	if _, err := s.Save(ctx, "bob", "bob", msgs[:1]); err != nil {
		t.Fatalf("Save bob: %v", err)
	}

	list, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("list = %+v, want newest first", list)
	}
	if len(list[0].Messages) != 0 {
		t.Fatalf("empty chat messages = %+v", list[0].Messages)
	}
	got := list[1].Messages
	if len(got) != 3 {
		t.Fatalf("messages = %+v", got)
	}
	for i := range msgs {
		if got[i] != msgs[i] {
			t.Fatalf("messages[%d] = %+v, want %+v", i, got[i], msgs[i])
		}
	}

	if err := s.Rename(ctx, "alice", first.ID, "renamed"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	chat, err := s.Get(ctx, "alice", first.ID)
	if err != nil || chat.Title != "renamed" || len(chat.Messages) != 3 {
		t.Fatalf("Get = %+v, %v", chat, err)
	}

	if err := s.Rename(ctx, "bob", first.ID, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("foreign Rename err = %v", err)
	}
	if _, err := s.Get(ctx, "bob", first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("foreign Get err = %v", err)
	}
	if err := s.Delete(ctx, "bob", first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("foreign Delete err = %v", err)
	}
	if err := s.Delete(ctx, "alice", first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "alice", first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get after delete err = %v", err)
	}
}
