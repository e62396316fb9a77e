package poster

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Noop logs announcements instead of publishing them. It backs DRY_RUN.
type Noop struct {
	Name string
}

// Post logs text and returns a random id.
func (n Noop) Post(ctx context.Context, text string) (string, error) {
	id := uuid.NewString()
	slog.InfoContext(ctx, "dry run: announcement not published",
		slog.String("component", "poster"),
		slog.String("destination", n.Name),
		slog.String("post_id", id),
		slog.String("text", text))
	return id, nil
}
