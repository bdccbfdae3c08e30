// Package db keeps the transfer history ledger: one row per attempted
// transfer, success or not. The ledger is for operators; sync decisions
// never read it (all sync state is re-derived from the destinations).
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"monks.co/syncd/model"
)

type DB struct {
	db *sql.DB
}

//go:embed db_schema.sql
var ddl string

func Open(filename string) (*DB, error) {
	ctx := context.Background()

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Transfer is one history row. Log carries the pair's captured run log, so
// a failure can be investigated from the ledger alone.
type Transfer struct {
	StartedAt   time.Time
	FinishedAt  time.Time
	Dataset     model.DatasetName
	Destination string
	Kind        string
	Base        string
	Target      string
	Bytes       int64
	Outcome     string
	Log         string
}

func (db *DB) RecordTransfer(ctx context.Context, t *Transfer) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO transfers
			(started_at, finished_at, dataset, destination, kind, base, target, bytes, outcome, log)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.StartedAt.Unix(), t.FinishedAt.Unix(),
		t.Dataset.Path(), t.Destination,
		t.Kind, t.Base, t.Target, t.Bytes, t.Outcome, t.Log,
	)
	if err != nil {
		return fmt.Errorf("recording transfer of '%s': %w", t.Dataset, err)
	}
	return nil
}

// History returns the most recent transfers of one dataset, newest first.
func (db *DB) History(ctx context.Context, dataset model.DatasetName, limit int) ([]*Transfer, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT started_at, finished_at, dataset, destination, kind, base, target, bytes, outcome, log
		FROM transfers
		WHERE dataset = ?
		ORDER BY started_at DESC
		LIMIT ?`,
		dataset.Path(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history of '%s': %w", dataset, err)
	}
	defer rows.Close()

	var out []*Transfer
	for rows.Next() {
		var t Transfer
		var startedAt, finishedAt int64
		var dataset string
		if err := rows.Scan(&startedAt, &finishedAt, &dataset, &t.Destination,
			&t.Kind, &t.Base, &t.Target, &t.Bytes, &t.Outcome, &t.Log); err != nil {
			return nil, err
		}
		t.StartedAt = time.Unix(startedAt, 0)
		t.FinishedAt = time.Unix(finishedAt, 0)
		t.Dataset = model.DatasetName(dataset)
		out = append(out, &t)
	}
	return out, rows.Err()
}
