// Package store defines persistence for boards and saved chats. Every operation is scoped to
// the owning user; records owned by someone else behave exactly like missing ones.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/vango-go/poppy/pkg/core/types"
)

// ErrNotFound is returned for missing records and for records owned by another user.
var ErrNotFound = errors.New("not found")

// ErrInvalidUser is returned when an operation is attempted without a user id.
var ErrInvalidUser = errors.New("user id is required")

// Boards persists reference boards.
type Boards interface {
	// List returns the user's boards, newest first.
	List(ctx context.Context, userID string) ([]types.Board, error)
	Get(ctx context.Context, userID, id string) (types.Board, error)
	Create(ctx context.Context, userID string, in types.BoardInput) (types.Board, error)
	Update(ctx context.Context, userID, id string, patch types.BoardPatch) (types.Board, error)
	Delete(ctx context.Context, userID, id string) error
}

// Chats persists saved conversations.
type Chats interface {
	// List returns the user's chats with their messages, newest first.
	List(ctx context.Context, userID string) ([]types.SavedChat, error)
	Get(ctx context.Context, userID, id string) (types.SavedChat, error)
	Save(ctx context.Context, userID, title string, messages []types.Message) (types.SavedChat, error)
	Rename(ctx context.Context, userID, id, title string) error
	Delete(ctx context.Context, userID, id string) error
}

// ValidateUser rejects empty user ids before they reach a backend.
func ValidateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}
	return nil
}

// ApplyPatch returns b with the non-nil fields of patch applied.
func ApplyPatch(b types.Board, patch types.BoardPatch) types.Board {
	if patch.Title != nil {
		b.Title = *patch.Title
	}
	if patch.Description != nil {
		b.Description = *patch.Description
	}
	if patch.Links != nil {
		b.Links = append([]string(nil), (*patch.Links)...)
	}
	if patch.Docs != nil {
		b.Docs = append([]types.BoardDoc(nil), (*patch.Docs)...)
	}
	return b
}

// NewBoardDocs assigns ids to client-supplied documents.
func NewBoardDocs(docs []types.ContentDoc, newID func() string) []types.BoardDoc {
	out := make([]types.BoardDoc, 0, len(docs))
	for _, d := range docs {
		out = append(out, types.BoardDoc{ID: newID(), Name: d.Name, Text: d.Text})
	}
	return out
}
