// Package directory resolves delivery targets for follow-up notifications
// from the identity directory.
package directory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/velora-hq/salesflow/internal/db"
)

// BindingStore is the directory collaborator: query-by-identity returning
// zero or more target bindings.
type BindingStore interface {
	BindingsByUser(ctx context.Context, userID string) ([]db.DirectoryBinding, error)
}

// Resolver selects delivery targets for a sender, or fans out to the ops
// broadcast list for the bot-join check.
type Resolver struct {
	store          BindingStore
	broadcastUsers []string
	logger         *zap.Logger
}

// NewResolver creates a resolver. broadcastUsers is the injected ops
// sub-team allow-list used by the bot-join broadcast exception.
func NewResolver(store BindingStore, broadcastUsers []string, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:          store,
		broadcastUsers: broadcastUsers,
		logger:         logger,
	}
}

// Resolve returns the delivery targets for a planned job.
// bot_join_call_check bypasses sender lookup and broadcasts to the ops
// sub-team; every other type resolves the sender's own bindings.
func (r *Resolver) Resolve(ctx context.Context, jobType db.JobType, senderID, workspaceID string) ([]string, error) {
	if jobType == db.TypeBotJoinCallCheck {
		return r.ResolveBroadcast(ctx)
	}
	return r.ResolveSender(ctx, senderID, workspaceID)
}

// ResolveSender picks the sender's delivery target with the priority:
// a binding explicitly bound to the current workspace, else a binding whose
// preferences mark it enabled, else the first binding. Zero bindings is a
// legitimate empty result.
func (r *Resolver) ResolveSender(ctx context.Context, senderID, workspaceID string) ([]string, error) {
	bindings, err := r.store.BindingsByUser(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("lookup sender bindings: %w", err)
	}
	if len(bindings) == 0 {
		r.logger.Info("sender has no directory bindings",
			zap.String("sender_id", senderID),
		)
		return nil, nil
	}

	if workspaceID != "" {
		for _, b := range bindings {
			if b.WorkspaceID != nil && *b.WorkspaceID == workspaceID && b.TargetID != "" {
				return []string{b.TargetID}, nil
			}
		}
	}

	for _, b := range bindings {
		if b.Enabled != nil && *b.Enabled && b.TargetID != "" {
			return []string{b.TargetID}, nil
		}
	}

	if bindings[0].TargetID == "" {
		return nil, nil
	}
	return []string{bindings[0].TargetID}, nil
}

// ResolveBroadcast flattens the bindings of the ops allow-list, dropping
// any binding that is missing its target identifier.
func (r *Resolver) ResolveBroadcast(ctx context.Context) ([]string, error) {
	var targets []string
	for _, userID := range r.broadcastUsers {
		bindings, err := r.store.BindingsByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("lookup broadcast bindings for %s: %w", userID, err)
		}
		for _, b := range bindings {
			if b.TargetID == "" {
				continue
			}
			targets = append(targets, b.TargetID)
		}
	}

	if len(targets) == 0 {
		r.logger.Warn("broadcast allow-list resolved to zero targets")
	}

	return targets, nil
}
