package repository

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sessiond/internal/logger"
)

// Migrate применяет все .sql из files в лексическом порядке (001, 002, ...).
// Миграции идемпотентны (IF NOT EXISTS), поэтому повторный запуск безопасен.
func Migrate(ctx context.Context, pool *pgxpool.Pool, files fs.FS) error {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return fmt.Errorf("migrate: list: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := fs.ReadFile(files, name)
		if err != nil {
			return fmt.Errorf("migrate: read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("migrate: run %s: %w", name, err)
		}
		logger.Infof("migration applied: %s", name)
	}
	return nil
}
