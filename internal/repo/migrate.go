package repo

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"github.com/google/uuid"
)

// Migration directories inside the embedded filesystem.
const (
	postgresMigrationsDir = "postgres"
	sqliteMigrationsDir   = "sqlite"
)

type execFunc func(ctx context.Context, sql string) error

// applyMigrations executes the SQL files of dir in lexicographical order.
// Every file must be idempotent since all of them run on each start.
func applyMigrations(ctx context.Context, filesystem fs.FS, dir string, exec execFunc) error {
	sub, err := fs.Sub(filesystem, dir)
	if err != nil {
		return fmt.Errorf("open migrations dir %s: %w", dir, err)
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		sqlBytes, err := fs.ReadFile(sub, entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if len(sqlBytes) == 0 {
			continue
		}

		if err := exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func randomUUID() string {
	return uuid.NewString()
}
