// Package firestore stores boards in Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/store"
)

// DefaultCollection holds one document per board.
const DefaultCollection = "boards"

// Boards is a store.Boards backed by Firestore.
type Boards struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

var _ store.Boards = (*Boards)(nil)

// NewClient opens a Firestore client for projectID.
func NewClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, errors.New("projectID is required for Firestore store")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return client, nil
}

// NewBoards wraps client. An empty collection means DefaultCollection.
func NewBoards(client *firestore.Client, collection string) *Boards {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Boards{client: client, collection: collection, now: time.Now}
}

func (s *Boards) col() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

type boardDocEntry struct {
	ID   string `firestore:"id"`
	Name string `firestore:"name"`
	Text string `firestore:"text"`
}

type boardDoc struct {
	UserID      string          `firestore:"userId"`
	Title       string          `firestore:"title"`
	Description string          `firestore:"description"`
	Links       []string        `firestore:"links"`
	Docs        []boardDocEntry `firestore:"docs"`
	CreatedAt   time.Time       `firestore:"createdAt"`
	UpdatedAt   time.Time       `firestore:"updatedAt,omitempty"`
}

func (d boardDoc) board(id string) types.Board {
	b := types.Board{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		Links:       d.Links,
		Docs:        make([]types.BoardDoc, 0, len(d.Docs)),
		CreatedAt:   d.CreatedAt,
	}
	if b.Links == nil {
		b.Links = []string{}
	}
	for _, e := range d.Docs {
		b.Docs = append(b.Docs, types.BoardDoc{ID: e.ID, Name: e.Name, Text: e.Text})
	}
	return b
}

func docEntries(docs []types.BoardDoc) []boardDocEntry {
	out := make([]boardDocEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, boardDocEntry{ID: d.ID, Name: d.Name, Text: d.Text})
	}
	return out
}

func (s *Boards) List(ctx context.Context, userID string) ([]types.Board, error) {
	iter := s.col().Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	out := []types.Board{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore list boards: %w", err)
		}
		var doc boardDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode board %s: %w", snap.Ref.ID, err)
		}
		out = append(out, doc.board(snap.Ref.ID))
	}
	return out, nil
}

func (s *Boards) Get(ctx context.Context, userID, id string) (types.Board, error) {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return types.Board{}, err
	}
	return doc.board(id), nil
}

func (s *Boards) Create(ctx context.Context, userID string, in types.BoardInput) (types.Board, error) {
	if err := store.ValidateUser(userID); err != nil {
		return types.Board{}, err
	}

	links := in.Links
	if links == nil {
		links = []string{}
	}
	doc := boardDoc{
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Links:       links,
		Docs:        docEntries(store.NewBoardDocs(in.Docs, uuid.NewString)),
		CreatedAt:   s.now().UTC(),
	}
	ref, _, err := s.col().Add(ctx, doc)
	if err != nil {
		return types.Board{}, fmt.Errorf("firestore create board: %w", err)
	}
	return doc.board(ref.ID), nil
}

func (s *Boards) Update(ctx context.Context, userID, id string, patch types.BoardPatch) (types.Board, error) {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return types.Board{}, err
	}

	updates := []firestore.Update{{Path: "updatedAt", Value: s.now().UTC()}}
	if patch.Title != nil {
		updates = append(updates, firestore.Update{Path: "title", Value: *patch.Title})
	}
	if patch.Description != nil {
		updates = append(updates, firestore.Update{Path: "description", Value: *patch.Description})
	}
	if patch.Links != nil {
		updates = append(updates, firestore.Update{Path: "links", Value: *patch.Links})
	}
	if patch.Docs != nil {
		updates = append(updates, firestore.Update{Path: "docs", Value: docEntries(*patch.Docs)})
	}
	if _, err := s.col().Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Board{}, store.ErrNotFound
		}
		return types.Board{}, fmt.Errorf("firestore update board: %w", err)
	}

	return store.ApplyPatch(doc.board(id), patch), nil
}

func (s *Boards) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	if _, err := s.col().Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete board: %w", err)
	}
	return nil
}

// owned loads a board and hides it from everyone but its owner.
func (s *Boards) owned(ctx context.Context, userID, id string) (boardDoc, error) {
	if id == "" {
		return boardDoc{}, store.ErrNotFound
	}
	snap, err := s.col().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return boardDoc{}, store.ErrNotFound
		}
		return boardDoc{}, fmt.Errorf("firestore get board: %w", err)
	}
	var doc boardDoc
	if err := snap.DataTo(&doc); err != nil {
		return boardDoc{}, fmt.Errorf("decode board %s: %w", id, err)
	}
	if doc.UserID != userID {
		return boardDoc{}, store.ErrNotFound
	}
	return doc, nil
}
