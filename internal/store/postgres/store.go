package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
	"github.com/BE-Provider-Connect/inbox/internal/failure"
)

// AssistantName is the name of the single assistant service row.
const AssistantName = "Citadel AI"

// Store implements failure.MessageStore and loads the assistant record.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindMessage returns failure.ErrMessageNotFound if no row matches.
func (s *Store) FindMessage(ctx context.Context, id int64) (domain.Message, error) {
	var msg domain.Message
	var status string
	err := s.db.QueryRowContext(ctx, queryFindMessage, id).Scan(&msg.ID, &status, &msg.ExternalError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Message{}, failure.ErrMessageNotFound
		}
		return domain.Message{}, err
	}
	msg.Status = domain.MessageStatus(status)
	return msg, nil
}

// UpdateMessageStatus writes status and external error in one statement.
// Concurrent writers race; the last one wins.
func (s *Store) UpdateMessageStatus(ctx context.Context, id int64, status domain.MessageStatus, externalError string) error {
	result, err := s.db.ExecContext(ctx, queryUpdateMessageStatus, string(status), externalError, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return failure.ErrMessageNotFound
	}
	return nil
}

// LoadAssistant returns the assistant row, creating it on first use.
// The stored outgoing_url setting wins over fallbackURL.
func (s *Store) LoadAssistant(ctx context.Context, fallbackURL string) (domain.Assistant, error) {
	if _, err := s.db.ExecContext(ctx, queryInsertAssistant, AssistantName); err != nil && !isDuplicateKeyError(err) {
		return domain.Assistant{}, fmt.Errorf("create assistant: %w", err)
	}

	var a domain.Assistant
	var outgoing sql.NullString
	err := s.db.QueryRowContext(ctx, querySelectAssistant, AssistantName).Scan(&a.ID, &a.Name, &a.Enabled, &outgoing)
	if err != nil {
		return domain.Assistant{}, fmt.Errorf("load assistant: %w", err)
	}

	a.OutgoingURL = resolveOutgoingURL(outgoing, fallbackURL)
	return a, nil
}

// resolveOutgoingURL ignores the enabled flag; a disabled assistant keeps
// its target.
func resolveOutgoingURL(stored sql.NullString, fallback string) string {
	if stored.Valid && strings.TrimSpace(stored.String) != "" {
		return strings.TrimSpace(stored.String)
	}
	return strings.TrimSpace(fallback)
}

// isDuplicateKeyError reports a unique_violation (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
