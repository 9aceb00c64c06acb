package files

import (
	"context"

	filerepo "github.com/kailas-cloud/dataforge/internal/repository/file"
)

// Records reads and removes file records.
type Records interface {
	ByGUIDs(ctx context.Context, user string, guids []string) ([]filerepo.File, error)
	DeleteByGUIDs(ctx context.Context, user string, guids []string) (int64, error)
}

// ObjectRemover deletes stored objects.
type ObjectRemover interface {
	Remove(ctx context.Context, key string) error
}
