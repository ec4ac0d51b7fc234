package store

import (
	"context"
	"database/sql"

	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/models"
)

// InAppMessageStore persists inbox messages for the in-app channel.
type InAppMessageStore struct {
	DB *sql.DB
}

func NewInAppMessageStore(db *sql.DB) *InAppMessageStore {
	return &InAppMessageStore{DB: db}
}

func (s *InAppMessageStore) InsertMessage(ctx context.Context, msg models.InAppMessage) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO in_app_messages (id, user_id, subject, body, read, created_at)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.UserID, msg.Subject, msg.Body, msg.Read, msg.CreatedAt,
	)
	if err != nil {
		return errs.NewStorageError("insert in-app message", err)
	}
	return nil
}

func (s *InAppMessageStore) ListForUser(ctx context.Context, userID string, limit int) ([]models.InAppMessage, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, subject, body, read, created_at
         FROM in_app_messages
         WHERE user_id = $1
         ORDER BY created_at DESC
         LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, errs.NewStorageError("list in-app messages", err)
	}
	defer rows.Close()

	var msgs []models.InAppMessage
	for rows.Next() {
		var m models.InAppMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Subject, &m.Body, &m.Read, &m.CreatedAt); err != nil {
			return nil, errs.NewStorageError("scan in-app message", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStorageError("list in-app messages", err)
	}
	return msgs, nil
}

func (s *InAppMessageStore) MarkRead(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE in_app_messages SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return errs.NewStorageError("mark in-app message read", err)
	}
	return nil
}
