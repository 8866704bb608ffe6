package store

import (
	"context"
	"fmt"

	"payments/internal/model"
)

// ProcessOutbox locks up to limit unprocessed messages, hands them to handle
// in creation order and stamps every accepted message as processed. The
// batch stops at the first handle error; messages accepted before it are
// still committed and the rest are retried by the next call.
func (s *Store) ProcessOutbox(ctx context.Context, limit int, handle func(context.Context, model.OutboxMessage) error) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(
		ctx,
		"SELECT id, entity_id, event_type, payload::text, created_at FROM outbox_messages WHERE processed_at IS NULL ORDER BY created_at LIMIT $1 FOR UPDATE SKIP LOCKED",
		limit,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to query outbox messages: %w", err)
	}

	var messages []model.OutboxMessage
	for rows.Next() {
		var (
			message model.OutboxMessage
			payload string
		)
		if err := rows.Scan(&message.ID, &message.EntityID, &message.EventType, &payload, &message.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		message.Payload = []byte(payload)
		messages = append(messages, message)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read outbox messages: %w", err)
	}

	processed := 0
	var handleErr error
	for _, message := range messages {
		if handleErr = handle(ctx, message); handleErr != nil {
			break
		}

		_, err := tx.Exec(ctx, "UPDATE outbox_messages SET processed_at=$1 WHERE id=$2", s.now(), message.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to update outbox message: %w", err)
		}
		processed++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit outbox batch: %w", err)
	}
	if handleErr != nil {
		return processed, fmt.Errorf("outbox message not delivered: %w", handleErr)
	}
	return processed, nil
}
