// Package disk provides a SQLite-backed checkpoint store for a solve's
// basis (one dense matrix per iteration number), so a long-running solve can resume after
// interruption instead of restarting from scratch. Adapted from the
// teacher's DiskMatrix (mat/disk.go), retargeted from a full sparse-matrix
// backing store to a dense checkpoint blob keyed by iteration number.
package disk

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const tableCheckpoint = "checkpoint"

// Store is a checkpoint database for one solve.
type Store struct {
	Path string
	db   *sql.DB
}

// Open creates (or reopens) the checkpoint database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepare(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return &Store{Path: path, db: db}, nil
}

func prepare(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		iter INTEGER,
		row INTEGER,
		col INTEGER,
		v REAL,
		PRIMARY KEY (iter, row, col)
	) STRICT`, tableCheckpoint)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Close closes the underlying database connection without removing the
// file, so a later Open can resume from the last saved checkpoint.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "")
}

// Remove closes the connection and deletes the checkpoint file; call this
// once a solve has converged and the checkpoint is no longer needed.
func (s *Store) Remove() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	return errors.Wrap(os.Remove(s.Path), "")
}

// Save writes m under the given iteration number, replacing any prior save
// at that iteration.
func (s *Store) Save(iter int, m *mat.Dense) error {
	ctx, cancel := context.WithTimeout(context.Background(), 48*time.Hour)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE iter=?`, tableCheckpoint), iter); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "")
	}

	rows, cols := m.Dims()
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (iter, row, col, v) VALUES (?, ?, ?, ?)`, tableCheckpoint))
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "")
	}
	defer stmt.Close()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if v == 0 {
				continue
			}
			if _, err := stmt.ExecContext(ctx, iter, i, j, v); err != nil {
				tx.Rollback()
				return errors.Wrap(err, "")
			}
		}
	}
	return errors.Wrap(tx.Commit(), "")
}

// Load reads back the rows x cols matrix saved under iter.
func (s *Store) Load(iter, rows, cols int) (*mat.Dense, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 48*time.Hour)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT row, col, v FROM %s WHERE iter=?`, tableCheckpoint)
	queryRows, err := s.db.QueryContext(ctx, sqlStr, iter)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer queryRows.Close()

	m := mat.NewDense(rows, cols, nil)
	for queryRows.Next() {
		var r, c int
		var v float64
		if err := queryRows.Scan(&r, &c, &v); err != nil {
			return nil, errors.Wrap(err, "")
		}
		m.Set(r, c, v)
	}
	if err := queryRows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return m, nil
}

// LatestIter returns the highest iteration number saved, or -1 if the
// store is empty.
func (s *Store) LatestIter() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var iter sql.NullInt64
	sqlStr := fmt.Sprintf(`SELECT MAX(iter) FROM %s`, tableCheckpoint)
	if err := s.db.QueryRowContext(ctx, sqlStr).Scan(&iter); err != nil {
		return -1, errors.Wrap(err, "")
	}
	if !iter.Valid {
		return -1, nil
	}
	return int(iter.Int64), nil
}
