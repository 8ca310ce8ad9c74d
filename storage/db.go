// Package storage ist die minimale Data-Access-Schicht über MySQL.
// Jeder Aufruf holt sich seine Verbindung aus dem Pool und gibt sie auf
// jedem Rückweg wieder frei; nur Transaction bündelt mehrere Statements
// auf einer Verbindung.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"scholarlink/config"
)

// DB kapselt den Verbindungspool und bietet Statement-orientierte Helfer.
type DB struct {
	sql    *sql.DB
	logger *zap.Logger
}

// ExecResult fasst das Ergebnis eines DML-Statements zusammen.
// LastInsertID ist nur nach einem INSERT aussagekräftig.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// Open stellt die Verbindung zur konfigurierten Datenbank her.
func Open(cfg *config.Config, logger *zap.Logger) (*DB, error) {
	sqldb, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("mysql öffnen: %w", err)
	}
	sqldb.SetMaxOpenConns(10)
	sqldb.SetMaxIdleConns(5)
	sqldb.SetConnMaxLifetime(30 * time.Minute)
	return &DB{sql: sqldb, logger: logger}, nil
}

// NewDB wickelt einen bestehenden Pool ein (Tests, initdb).
func NewDB(sqldb *sql.DB, logger *zap.Logger) *DB {
	return &DB{sql: sqldb, logger: logger}
}

// Close schließt den Verbindungspool.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Ping meldet die Erreichbarkeit der Datenbank und liefert nie einen Fehler.
func (db *DB) Ping(ctx context.Context) bool {
	if err := db.sql.PingContext(ctx); err != nil {
		db.logger.Warn("Datenbank-Ping fehlgeschlagen", zap.Error(err))
		return false
	}
	return true
}

// QueryOne liefert höchstens eine Zeile als Spaltenname→Wert-Map.
// Keine Treffer sind kein Fehler: dann ist die Map nil.
func (db *DB) QueryOne(ctx context.Context, query string, args ...any) (map[string]any, error) {
	return queryOne(ctx, db.sql, query, args...)
}

// QueryAll liefert alle Zeilen in Reihenfolge des Statements.
func (db *DB) QueryAll(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return queryAll(ctx, db.sql, query, args...)
}

// Exec führt ein DML-Statement aus.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (ExecResult, error) {
	return execStatement(ctx, db.sql, query, args...)
}

// ExecMany führt dasselbe Statement für jede Parameterliste aus und liefert
// die Summe der betroffenen Zeilen. Atomarität ist NICHT garantiert; dafür
// muss der Aufrufer Transaction verwenden.
func (db *DB) ExecMany(ctx context.Context, query string, paramSets [][]any) (int64, error) {
	stmt, err := db.sql.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var total int64
	for _, params := range paramSets {
		res, err := stmt.ExecContext(ctx, params...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Tx ist der Transaktionsscope: alle Statements laufen auf einer Verbindung
// mit ausgesetztem Autocommit.
type Tx struct {
	tx *sql.Tx
}

// QueryOne entspricht DB.QueryOne innerhalb der Transaktion.
func (t *Tx) QueryOne(ctx context.Context, query string, args ...any) (map[string]any, error) {
	return queryOne(ctx, t.tx, query, args...)
}

// QueryAll entspricht DB.QueryAll innerhalb der Transaktion.
func (t *Tx) QueryAll(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return queryAll(ctx, t.tx, query, args...)
}

// Exec entspricht DB.Exec innerhalb der Transaktion.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (ExecResult, error) {
	return execStatement(ctx, t.tx, query, args...)
}

// Transaction führt fn in einem Transaktionsscope aus: Commit bei nil,
// Rollback bei Fehler oder Panic. Die Verbindung wird in jedem Fall
// freigegeben.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err = fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			db.logger.Error("Rollback fehlgeschlagen", zap.Error(rbErr))
		}
		return err
	}
	return sqlTx.Commit()
}

// querier abstrahiert *sql.DB und *sql.Tx für die gemeinsamen Helfer.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func queryOne(ctx context.Context, q querier, query string, args ...any) (map[string]any, error) {
	rows, err := queryAll(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func queryAll(ctx context.Context, q querier, query string, args ...any) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		for i := range values {
			values[i] = new(any)
		}
		if err := rows.Scan(values...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(*(values[i].(*any)))
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func execStatement(ctx context.Context, q querier, query string, args ...any) (ExecResult, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return ExecResult{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ExecResult{}, err
	}
	// Nicht jedes Statement liefert eine Insert-ID; Fehler hier ignorieren.
	lastID, _ := res.LastInsertId()
	return ExecResult{RowsAffected: affected, LastInsertID: lastID}, nil
}

// normalizeValue macht Treiberwerte handhabbar: Der MySQL-Treiber liefert
// Textspalten als []byte.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
