package orgmode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/harrisonrobin/agendify/pkg/model"
)

// importNamespace scopes derived task IDs so re-imports land on the same rows.
var importNamespace = uuid.MustParse("5b0f4a8e-3c1d-4f7e-9a2b-6d8c1e0f7a93")

type TaskStore interface {
	Exists(ctx context.Context, userID, id string) (bool, error)
	Create(ctx context.Context, t model.Task) (model.Task, error)
}

type ImportResult struct {
	Created int
	Skipped int
}

// Import creates a task for every entry not imported before. Task IDs are
// derived from the user and the headline's :ID: (or its title when absent).
func Import(ctx context.Context, store TaskStore, userID string, entries []Entry) (ImportResult, error) {
	var res ImportResult
	for _, e := range entries {
		key := e.OrgID
		if key == "" {
			key = "title:" + e.Task.Title
		}
		t := e.Task
		t.UserID = userID
		t.ID = uuid.NewSHA1(importNamespace, []byte(userID+"\x00"+key)).String()

		exists, err := store.Exists(ctx, userID, t.ID)
		if err != nil {
			return res, fmt.Errorf("check %q: %w", t.Title, err)
		}
		if exists {
			res.Skipped++
			continue
		}
		if _, err := store.Create(ctx, t); err != nil {
			return res, fmt.Errorf("import %q: %w", t.Title, err)
		}
		res.Created++
	}
	slog.Info("org import finished", "user_id", userID, "created", res.Created, "skipped", res.Skipped)
	return res, nil
}
