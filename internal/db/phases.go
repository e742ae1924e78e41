package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/velora-hq/salesflow/internal/phase"
)

// AdvanceChatPhase applies a candidate phase transition as a single
// transactional read-modify-write. The row lock makes the monotonic-rank
// compare-and-write safe under concurrent callbacks; this is the one place
// the design requires true atomicity. Returns whether the candidate was
// applied.
func (r *Repository) AdvanceChatPhase(ctx context.Context, chatID string, cand phase.Candidate) (bool, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current *phase.Current
	var value, messageID string

	err = tx.QueryRow(ctx,
		`SELECT value, message_id FROM chat_phases WHERE chat_id = $1 FOR UPDATE`,
		chatID,
	).Scan(&value, &messageID)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// base case: no phase recorded yet
	case err != nil:
		return false, fmt.Errorf("query chat phase: %w", err)
	default:
		current = &phase.Current{Value: phase.Value(value), MessageID: messageID}
	}

	if !phase.ShouldAdvance(current, cand) {
		r.logger.Debug("chat phase unchanged",
			zap.String("chat_id", chatID),
			zap.String("candidate", string(cand.Value)),
		)
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_phases (chat_id, value, ts, message_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id) DO UPDATE
		SET value = EXCLUDED.value, ts = EXCLUDED.ts,
		    message_id = EXCLUDED.message_id, updated_at = NOW()
	`, chatID, cand.Value, cand.TS, cand.MessageID)
	if err != nil {
		return false, fmt.Errorf("write chat phase: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info("chat phase advanced",
		zap.String("chat_id", chatID),
		zap.String("value", string(cand.Value)),
		zap.String("message_id", cand.MessageID),
	)

	return true, nil
}

// GetChatPhase retrieves the current phase for a conversation, or
// ErrPhaseNotFound when none has been recorded.
func (r *Repository) GetChatPhase(ctx context.Context, chatID string) (*ChatPhase, error) {
	var p ChatPhase
	err := r.db.Pool().QueryRow(ctx, `
		SELECT chat_id, value, ts, message_id, updated_at
		FROM chat_phases WHERE chat_id = $1
	`, chatID).Scan(&p.ChatID, &p.Value, &p.TS, &p.MessageID, &p.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPhaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query chat phase: %w", err)
	}

	return &p, nil
}

// ErrPhaseNotFound indicates a conversation has no recorded phase yet.
var ErrPhaseNotFound = errors.New("chat phase not found")
