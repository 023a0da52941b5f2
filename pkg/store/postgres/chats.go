// Package postgres stores saved chats in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/store"
)

// Chats is a store.Chats backed by the chats and messages tables.
type Chats struct {
	pool *pgxpool.Pool
}

var _ store.Chats = (*Chats)(nil)

// Open connects a pool to dsn and checks it with a ping.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func NewChats(pool *pgxpool.Pool) *Chats {
	return &Chats{pool: pool}
}

func (s *Chats) List(ctx context.Context, userID string) ([]types.SavedChat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, created_at
		FROM chats
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	chats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.SavedChat, error) {
		var c types.SavedChat
		err := row.Scan(&c.ID, &c.Title, &c.SavedAt)
		c.Messages = []types.Message{}
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan chats: %w", err)
	}
	if len(chats) == 0 {
		return []types.SavedChat{}, nil
	}

	ids := make([]string, len(chats))
	byID := make(map[string]int, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
		byID[c.ID] = i
	}

	rows, err = s.pool.Query(ctx, `
		SELECT chat_id, role, content, COALESCE(provider, '')
		FROM messages
		WHERE chat_id = ANY($1)
		ORDER BY chat_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var chatID string
		var m types.Message
		if err := rows.Scan(&chatID, &m.Role, &m.Content, &m.Provider); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if i, ok := byID[chatID]; ok {
			chats[i].Messages = append(chats[i].Messages, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return chats, nil
}

func (s *Chats) Get(ctx context.Context, userID, id string) (types.SavedChat, error) {
	c := types.SavedChat{ID: id, Messages: []types.Message{}}
	err := s.pool.QueryRow(ctx, `
		SELECT title, created_at FROM chats WHERE id = $1 AND user_id = $2`,
		id, userID).Scan(&c.Title, &c.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.SavedChat{}, store.ErrNotFound
	}
	if err != nil {
		return types.SavedChat{}, fmt.Errorf("query chat: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT role, content, COALESCE(provider, '')
		FROM messages
		WHERE chat_id = $1
		ORDER BY position`, id)
	if err != nil {
		return types.SavedChat{}, fmt.Errorf("query messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Message, error) {
		var m types.Message
		err := row.Scan(&m.Role, &m.Content, &m.Provider)
		return m, err
	})
	if err != nil {
		return types.SavedChat{}, fmt.Errorf("scan messages: %w", err)
	}
	c.Messages = append(c.Messages, msgs...)
	return c, nil
}

func (s *Chats) Save(ctx context.Context, userID, title string, messages []types.Message) (types.SavedChat, error) {
	if err := store.ValidateUser(userID); err != nil {
		return types.SavedChat{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.SavedChat{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	c := types.SavedChat{ID: uuid.NewString(), Title: title, Messages: types.CloneMessages(messages)}
	if c.Messages == nil {
		c.Messages = []types.Message{}
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO chats (id, user_id, title, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		c.ID, userID, title, time.Now().UTC()).Scan(&c.SavedAt); err != nil {
		return types.SavedChat{}, fmt.Errorf("insert chat: %w", err)
	}

	if len(messages) > 0 {
		batch := &pgx.Batch{}
		for i, m := range messages {
			var provider *string
			if m.Provider != "" {
				p := string(m.Provider)
				provider = &p
			}
			batch.Queue(`
				INSERT INTO messages (chat_id, position, role, content, provider)
				VALUES ($1, $2, $3, $4, $5)`,
				c.ID, i, string(m.Role), m.Content, provider)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return types.SavedChat{}, fmt.Errorf("insert messages: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return types.SavedChat{}, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

func (s *Chats) Rename(ctx context.Context, userID, id, title string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE chats SET title = $3 WHERE id = $1 AND user_id = $2`, id, userID, title)
	if err != nil {
		return fmt.Errorf("rename chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Chats) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
