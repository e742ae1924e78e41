package db

import (
	"context"
	"fmt"
)

// BindingsByUser looks up the delivery targets bound to a platform identity.
// Zero rows is a legitimate result, not an error.
func (r *Repository) BindingsByUser(ctx context.Context, userID string) ([]DirectoryBinding, error) {
	query := `
		SELECT user_id, workspace_id, target_id, enabled
		FROM directory_bindings
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query directory bindings: %w", err)
	}
	defer rows.Close()

	var bindings []DirectoryBinding
	for rows.Next() {
		var b DirectoryBinding
		if err := rows.Scan(&b.UserID, &b.WorkspaceID, &b.TargetID, &b.Enabled); err != nil {
			return nil, fmt.Errorf("scan directory binding: %w", err)
		}
		bindings = append(bindings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return bindings, nil
}
