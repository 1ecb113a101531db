package table

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/viant/vecindex/index"
	"github.com/viant/vecindex/index/bruteforce"
	"github.com/viant/vecindex/index/cover"
)

const (
	lockRetryDelay = 50 * time.Millisecond
	lockStaleAfter = 2 * time.Minute
)

// lockOwnerID identifies this process in vector_storage_locks.
var lockOwnerID = "vecindex:" + uuid.NewString()

var (
	blobEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	blobDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil)
	})
)

// storedIndex is a vector_storage row.
type storedIndex struct {
	spec       indexSpec
	generation int64
	blob       []byte
}

// ensureVectorStorage creates the shared index tables.
func ensureVectorStorage(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS vector_storage (
    table_name  TEXT NOT NULL,
    column_name TEXT NOT NULL,
    options     TEXT NOT NULL,
    generation  INTEGER NOT NULL DEFAULT 0,
    "index"     BLOB,
    PRIMARY KEY (table_name, column_name)
)`); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS vector_storage_locks (
    table_name  TEXT NOT NULL,
    column_name TEXT NOT NULL,
    owner       TEXT NOT NULL,
    locked_at   INTEGER NOT NULL,
    PRIMARY KEY (table_name, column_name)
)`)
	return err
}

// ensureTriggers installs write triggers that bump the generation and clear
// persisted indexes of the table, so the next approximate query rebuilds.
func (t *Table) ensureTriggers(ctx context.Context) error {
	base := sanitizeName("trg_vecindex_" + t.name)
	invalidate := `UPDATE vector_storage SET generation = generation + 1, "index" = NULL WHERE table_name = ` + quoteLiteral(t.name) + `;`
	for _, event := range []string{"INSERT", "UPDATE", "DELETE"} {
		stmt := fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s AFTER %s ON %s BEGIN %s END;`,
			QuoteIdent(base+"_"+strings.ToLower(event)), event, QuoteIdent(t.name), invalidate)
		if _, err := t.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) dropTriggers(ctx context.Context) error {
	base := sanitizeName("trg_vecindex_" + t.name)
	for _, event := range []string{"insert", "update", "delete"} {
		if _, err := t.db.ExecContext(ctx, `DROP TRIGGER IF EXISTS `+QuoteIdent(base+"_"+event)); err != nil {
			return err
		}
	}
	return nil
}

// loadStored reads the vector_storage row of column; ok is false without one.
func (t *Table) loadStored(ctx context.Context, column string) (*storedIndex, bool, error) {
	var options string
	ret := &storedIndex{}
	err := t.db.QueryRowContext(ctx, `SELECT options, generation, "index" FROM vector_storage WHERE table_name = ? AND column_name = ?`,
		t.name, column).Scan(&options, &ret.generation, &ret.blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if ret.spec, err = parseIndexSpec(options); err != nil {
		return nil, false, err
	}
	return ret, true, nil
}

// persist stores blob unless the table changed since generation was read.
func (t *Table) persist(ctx context.Context, column string, generation int64, idx index.Index) (bool, error) {
	data, err := idx.MarshalBinary()
	if err != nil {
		return false, err
	}
	blob, err := compressIndex(data)
	if err != nil {
		return false, err
	}
	res, err := t.db.ExecContext(ctx, `UPDATE vector_storage SET "index" = ? WHERE table_name = ? AND column_name = ? AND generation = ?`,
		blob, t.name, column, generation)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// acquireBuildLock serializes index builds of one column across processes.
// Locks older than lockStaleAfter are taken over.
func (t *Table) acquireBuildLock(ctx context.Context, column string) (func(), error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		owner, err := t.tryLock(ctx, column)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if owner == lockOwnerID {
			return func() {
				_, _ = t.db.ExecContext(context.Background(), `DELETE FROM vector_storage_locks WHERE table_name = ? AND column_name = ? AND owner = ?`,
					t.name, column, lockOwnerID)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

func (t *Table) tryLock(ctx context.Context, column string) (string, error) {
	now := time.Now().Unix()
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO vector_storage_locks(table_name, column_name, owner, locked_at) VALUES(?, ?, ?, ?)`,
		t.name, column, lockOwnerID, now); err != nil {
		return "", err
	}
	var owner string
	var lockedAt int64
	if err := tx.QueryRowContext(ctx, `SELECT owner, locked_at FROM vector_storage_locks WHERE table_name = ? AND column_name = ?`,
		t.name, column).Scan(&owner, &lockedAt); err != nil {
		return "", err
	}
	if owner != lockOwnerID && lockedAt <= time.Now().Add(-lockStaleAfter).Unix() {
		res, err := tx.ExecContext(ctx, `UPDATE vector_storage_locks SET owner = ?, locked_at = ? WHERE table_name = ? AND column_name = ? AND locked_at = ?`,
			lockOwnerID, now, t.name, column, lockedAt)
		if err != nil {
			return "", err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			owner = lockOwnerID
		}
	}
	return owner, tx.Commit()
}

func compressIndex(data []byte) ([]byte, error) {
	enc, err := blobEncoder()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// decodeIndex decompresses a persisted blob and restores the index its
// format tag names.
func decodeIndex(blob []byte) (index.Index, error) {
	dec, err := blobDecoder()
	if err != nil {
		return nil, err
	}
	data, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if len(data) < index.MagicLen {
		return nil, fmt.Errorf("index blob too short: %d bytes", len(data))
	}
	var ret index.Index
	switch magic := string(data[:index.MagicLen]); magic {
	case bruteforce.Magic:
		ret = &bruteforce.Index{}
	case cover.Magic:
		ret = &cover.Index{}
	default:
		return nil, fmt.Errorf("unknown index format %q", magic)
	}
	if err := ret.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return ret, nil
}

func isMissingTable(err error) bool {
	return strings.Contains(err.Error(), "no such table")
}

// isReadOnly reports whether err comes from writing through a read-only
// connection or database file.
func isReadOnly(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_READONLY
	}
	return strings.Contains(err.Error(), "readonly database")
}
