package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/store"
)

type chatRecord struct {
	userID string
	chat   types.SavedChat
}

// Chats is an in-memory store.Chats.
type Chats struct {
	mu    sync.RWMutex
	chats map[string]chatRecord
	now   func() time.Time
	last  time.Time
}

var _ store.Chats = (*Chats)(nil)

func NewChats() *Chats {
	return &Chats{chats: make(map[string]chatRecord), now: time.Now}
}

func (s *Chats) List(_ context.Context, userID string) ([]types.SavedChat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.SavedChat
	for _, r := range s.chats {
		if r.userID == userID {
			out = append(out, cloneChat(r.chat))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SavedAt.After(out[j].SavedAt)
	})
	return out, nil
}

func (s *Chats) Get(_ context.Context, userID, id string) (types.SavedChat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.chats[id]
	if !ok || r.userID != userID {
		return types.SavedChat{}, store.ErrNotFound
	}
	return cloneChat(r.chat), nil
}

func (s *Chats) Save(_ context.Context, userID, title string, messages []types.Message) (types.SavedChat, error) {
	if err := store.ValidateUser(userID); err != nil {
		return types.SavedChat{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	savedAt := s.now()
	if !savedAt.After(s.last) {
		savedAt = s.last.Add(time.Nanosecond)
	}
	s.last = savedAt

	c := types.SavedChat{
		ID:       uuid.NewString(),
		Title:    title,
		SavedAt:  savedAt,
		Messages: types.CloneMessages(messages),
	}
	if c.Messages == nil {
		c.Messages = []types.Message{}
	}
	s.chats[c.ID] = chatRecord{userID: userID, chat: c}
	return cloneChat(c), nil
}

func (s *Chats) Rename(_ context.Context, userID, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.chats[id]
	if !ok || r.userID != userID {
		return store.ErrNotFound
	}
	r.chat.Title = title
	s.chats[id] = r
	return nil
}

func (s *Chats) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.chats[id]
	if !ok || r.userID != userID {
		return store.ErrNotFound
	}
	delete(s.chats, id)
	return nil
}

func cloneChat(c types.SavedChat) types.SavedChat {
	c.Messages = types.CloneMessages(c.Messages)
	return c
}
