// Package memory provides in-process stores used when no database is configured and in tests.
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

type boardRecord struct {
	userID string
	board  types.Board
}

// Boards is an in-memory store.Boards.
type Boards struct {
	mu     sync.RWMutex
	boards map[string]boardRecord
	now    func() time.Time
	last   time.Time
}

var _ store.Boards = (*Boards)(nil)

func NewBoards() *Boards {
	return &Boards{boards: make(map[string]boardRecord), now: time.Now}
}

func (s *Boards) List(_ context.Context, userID string) ([]types.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Board
	for _, r := range s.boards {
		if r.userID == userID {
			out = append(out, cloneBoard(r.board))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Boards) Get(_ context.Context, userID, id string) (types.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.boards[id]
	if !ok || r.userID != userID {
		return types.Board{}, store.ErrNotFound
	}
	return cloneBoard(r.board), nil
}

func (s *Boards) Create(_ context.Context, userID string, in types.BoardInput) (types.Board, error) {
	if err := store.ValidateUser(userID); err != nil {
		return types.Board{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := types.Board{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Links:       append([]string{}, in.Links...),
		Docs:        store.NewBoardDocs(in.Docs, uuid.NewString),
		CreatedAt:   s.tick(),
	}
	s.boards[b.ID] = boardRecord{userID: userID, board: b}
	return cloneBoard(b), nil
}

func (s *Boards) Update(_ context.Context, userID, id string, patch types.BoardPatch) (types.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.boards[id]
	if !ok || r.userID != userID {
		return types.Board{}, store.ErrNotFound
	}
	r.board = store.ApplyPatch(r.board, patch)
	s.boards[id] = r
	return cloneBoard(r.board), nil
}

func (s *Boards) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.boards[id]
	if !ok || r.userID != userID {
		return store.ErrNotFound
	}
	delete(s.boards, id)
	return nil
}

// tick returns a strictly increasing timestamp so newest-first ordering is stable.
func (s *Boards) tick() time.Time {
	t := s.now()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

func cloneBoard(b types.Board) types.Board {
	b.Links = append([]string(nil), b.Links...)
	b.Docs = append([]types.BoardDoc(nil), b.Docs...)
	return b
}
