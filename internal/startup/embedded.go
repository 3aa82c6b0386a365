package startup

import (
	"fmt"
	"os"
	"path/filepath"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"

	"github.com/sessiond/internal/logger"
)

const (
	embeddedPort     = 5432
	embeddedUser     = "sessiond"
	embeddedPassword = "sessiond_secret"
	embeddedDatabase = "sessiond"
)

// StartEmbeddedPostgres поднимает локальный PostgreSQL (-dev) в ./.pgdata и возвращает его DSN.
func StartEmbeddedPostgres() (*embeddedpostgres.EmbeddedPostgres, string, error) {
	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(embeddedPort).
			Username(embeddedUser).
			Password(embeddedPassword).
			Database(embeddedDatabase).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "sessiond-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, "", fmt.Errorf("start: %w", err)
	}
	dsn := fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		embeddedUser, embeddedPassword, embeddedPort, embeddedDatabase)
	logger.Infof("embedded PostgreSQL running on port %d", embeddedPort)
	return db, dsn, nil
}
