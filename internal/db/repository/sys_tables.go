package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lakehouse/internal/domain"
)

const (
	selectTableIDByName = `SELECT table_id FROM sys_tables WHERE table_name = ?`

	insertSysSchema = `INSERT INTO sys_schemas (schema_bin, versions, table_name) VALUES (?, ?, ?)`

	insertSysTable = `
INSERT INTO sys_tables (table_name, table_url_string, schema_id, partition_string, created_at)
VALUES (?, ?, ?, ?, ?)`

	selectSchemaIDForTable = `SELECT schema_id FROM sys_tables WHERE table_id = ?`

	deleteSysTable  = `DELETE FROM sys_tables WHERE table_id = ?`
	deleteSysSchema = `DELETE FROM sys_schemas WHERE schema_id = ?`

	selectSysTable = `
SELECT t.table_id, t.table_name, t.schema_id, s.schema_bin, t.table_url_string,
       t.partition_string, s.versions, t.created_at
FROM sys_tables t
JOIN sys_schemas s ON s.schema_id = t.schema_id
WHERE t.table_id = ?`

	selectSchemaBinForTable = `
SELECT s.schema_bin
FROM sys_tables t
JOIN sys_schemas s ON s.schema_id = t.schema_id
WHERE t.table_id = ?`

	selectAllSchemaBins = `SELECT schema_bin FROM sys_schemas ORDER BY schema_id`

	selectTableEntries = `SELECT table_id, table_name FROM sys_tables ORDER BY table_id`
)

// SysTableRepo stores catalogue tables and their schema blobs in SQLite.
// Writes go through the single-connection write pool; reads use the bounded
// read pool.
type SysTableRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewSysTableRepo creates a SysTableRepo. readDB may equal writeDB.
func NewSysTableRepo(writeDB, readDB *sql.DB) *SysTableRepo {
	if readDB == nil {
		readDB = writeDB
	}
	return &SysTableRepo{writeDB: writeDB, readDB: readDB}
}

var _ domain.CatalogueRepository = (*SysTableRepo)(nil)

// Insert writes the schema row and the table row in one transaction.
// A name that is already registered yields *domain.DuplicateTableError and
// leaves the store unchanged. A zero rec.CreatedAt is set to the current
// time at second precision before the row is written.
func (r *SysTableRepo) Insert(ctx context.Context, rec *domain.TableRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	var tableID int64
	err := withTx(ctx, r.writeDB, "create table", func(tx *sql.Tx) error {
		var existing int64
		err := tx.QueryRowContext(ctx, selectTableIDByName, rec.Name).Scan(&existing)
		if err == nil {
			return &domain.DuplicateTableError{Name: rec.Name}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return &domain.TransactionError{Op: "create table", Err: err}
		}

		res, err := tx.ExecContext(ctx, insertSysSchema, rec.SchemaBytes, nullString(rec.Version), rec.Name)
		if err != nil {
			return insertError(rec.Name, fmt.Errorf("insert schema: %w", err))
		}
		schemaID, err := res.LastInsertId()
		if err != nil {
			return &domain.TransactionError{Op: "create table", Err: err}
		}

		res, err = tx.ExecContext(ctx, insertSysTable,
			rec.Name, nullString(rec.Location), schemaID, nullString(domain.JoinPartitionSpec(rec.PartitionBy)),
			rec.CreatedAt.UTC().Format(sqliteTimeLayout))
		if err != nil {
			return insertError(rec.Name, fmt.Errorf("insert table: %w", err))
		}
		tableID, err = res.LastInsertId()
		if err != nil {
			return &domain.TransactionError{Op: "create table", Err: err}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return tableID, nil
}

// Delete removes the table row and then its schema row in one transaction.
func (r *SysTableRepo) Delete(ctx context.Context, id int64) error {
	return withTx(ctx, r.writeDB, "delete table", func(tx *sql.Tx) error {
		var schemaID int64
		err := tx.QueryRowContext(ctx, selectSchemaIDForTable, id).Scan(&schemaID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound("table %d not found", id)
		}
		if err != nil {
			return &domain.TransactionError{Op: "delete table", Err: err}
		}

		if _, err := tx.ExecContext(ctx, deleteSysTable, id); err != nil {
			return &domain.TransactionError{Op: "delete table", Err: err}
		}
		if _, err := tx.ExecContext(ctx, deleteSysSchema, schemaID); err != nil {
			return &domain.TransactionError{Op: "delete schema", Err: err}
		}
		return nil
	})
}

// Get returns the full record for a table.
func (r *SysTableRepo) Get(ctx context.Context, id int64) (*domain.TableRecord, error) {
	var rec domain.TableRecord
	err := withConn(ctx, r.readDB, "get table", func(conn *sql.Conn) error {
		var location, partitions, version, createdAt sql.NullString
		err := conn.QueryRowContext(ctx, selectSysTable, id).Scan(
			&rec.ID, &rec.Name, &rec.SchemaID, &rec.SchemaBytes,
			&location, &partitions, &version, &createdAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound("table %d not found", id)
		}
		if err != nil {
			return mapDBError("get table", err)
		}
		rec.Location = location.String
		rec.PartitionBy = domain.SplitPartitionSpec(partitions.String)
		rec.Version = version.String
		rec.CreatedAt = parseTimestamp(createdAt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetSchemaBytes returns the encoded schema of a table.
func (r *SysTableRepo) GetSchemaBytes(ctx context.Context, id int64) ([]byte, error) {
	var bin []byte
	err := withConn(ctx, r.readDB, "get schema", func(conn *sql.Conn) error {
		err := conn.QueryRowContext(ctx, selectSchemaBinForTable, id).Scan(&bin)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound("table %d not found", id)
		}
		return mapDBError("get schema", err)
	})
	if err != nil {
		return nil, err
	}
	return bin, nil
}

// ListSchemaBytes returns every stored schema blob ordered by schema id.
func (r *SysTableRepo) ListSchemaBytes(ctx context.Context) ([][]byte, error) {
	var out [][]byte
	err := withConn(ctx, r.readDB, "list schemas", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, selectAllSchemaBins)
		if err != nil {
			return mapDBError("list schemas", err)
		}
		defer rows.Close() //nolint:errcheck

		for rows.Next() {
			var bin []byte
			if err := rows.Scan(&bin); err != nil {
				return mapDBError("list schemas", err)
			}
			out = append(out, bin)
		}
		return mapDBError("list schemas", rows.Err())
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListEntries returns the id and name of every table ordered by id.
func (r *SysTableRepo) ListEntries(ctx context.Context) ([]domain.TableEntry, error) {
	var out []domain.TableEntry
	err := withConn(ctx, r.readDB, "list tables", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, selectTableEntries)
		if err != nil {
			return mapDBError("list tables", err)
		}
		defer rows.Close() //nolint:errcheck

		for rows.Next() {
			var e domain.TableEntry
			if err := rows.Scan(&e.ID, &e.Name); err != nil {
				return mapDBError("list tables", err)
			}
			out = append(out, e)
		}
		return mapDBError("list tables", rows.Err())
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes both pools.
func (r *SysTableRepo) Close() error {
	var readErr error
	if r.readDB != r.writeDB {
		readErr = r.readDB.Close()
	}
	return errors.Join(readErr, r.writeDB.Close())
}

func insertError(name string, err error) error {
	if isUniqueViolation(err) {
		return &domain.DuplicateTableError{Name: name}
	}
	return &domain.TransactionError{Op: "create table", Err: err}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
