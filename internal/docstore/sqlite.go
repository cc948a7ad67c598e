package docstore

import (
	"fmt"

	"github.com/xxxsen/mcollab/internal/db"
	"github.com/xxxsen/mcollab/internal/pkg/dbutil"
)

type sqliteConfig struct {
	Path string `json:"path"`
}

func init() {
	Register("sqlite", createSQLiteStore)
}

func createSQLiteStore(args interface{}) (Store, error) {
	config := &sqliteConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Path == "" {
		return nil, fmt.Errorf("sqlite store path is required")
	}
	conn, err := db.Open(db.DriverSQLite, config.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return newSQLStore(conn, dbutil.Passthrough), nil
}
