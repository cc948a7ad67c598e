package docstore

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mcollab/internal/model"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
)

const upsertDocumentSQL = `INSERT INTO documents (id, content, version, last_writer_id, last_write_ts, mtime)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	content = excluded.content,
	version = excluded.version,
	last_writer_id = excluded.last_writer_id,
	last_write_ts = excluded.last_write_ts,
	mtime = excluded.mtime`

var documentColumns = []string{"id", "content", "version", "last_writer_id", "last_write_ts", "mtime"}

type finalizeFunc func(query string, args []interface{}) (string, []interface{})

// sqlStore is shared by the sqlite and postgres backends; only the placeholder
// style differs between them.
type sqlStore struct {
	db       *sql.DB
	finalize finalizeFunc
}

func newSQLStore(db *sql.DB, finalize finalizeFunc) *sqlStore {
	return &sqlStore{db: db, finalize: finalize}
}

func (s *sqlStore) Load(ctx context.Context, docID string) (*model.Snapshot, error) {
	if err := validateKey(docID); err != nil {
		return nil, err
	}
	where := map[string]interface{}{
		"id":     docID,
		"_limit": []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = s.finalize(sqlStr, args)
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	var snap model.Snapshot
	if err := rows.Scan(&snap.DocumentID, &snap.Content, &snap.Version, &snap.LastWriterID, &snap.LastWriteTimestamp, &snap.Mtime); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *sqlStore) Save(ctx context.Context, snap *model.Snapshot) error {
	if err := validateKey(snap.DocumentID); err != nil {
		return err
	}
	args := []interface{}{snap.DocumentID, snap.Content, snap.Version, snap.LastWriterID, snap.LastWriteTimestamp, snap.Mtime}
	sqlStr, args := s.finalize(upsertDocumentSQL, args)
	_, err := s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
