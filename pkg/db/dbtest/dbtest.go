// Package dbtest opens throwaway in-memory SQLite databases carrying the
// production schema.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// Open returns a fresh in-memory database with every up migration applied.
// Row-locking clauses are stripped because SQLite serializes writers anyway.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	stripRowLocks := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if !strings.Contains(sql, "FOR UPDATE") {
			return
		}
		sql = strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
		sql = strings.ReplaceAll(sql, "FOR UPDATE", "")
		d.Statement.SQL.Reset()
		d.Statement.SQL.WriteString(sql)
	}
	if err := conn.Callback().Query().Before("gorm:query").Register("dbtest:strip_row_locks", stripRowLocks); err != nil {
		t.Fatalf("register query callback: %v", err)
	}
	if err := conn.Callback().Row().Before("gorm:row").Register("dbtest:strip_row_locks_row", stripRowLocks); err != nil {
		t.Fatalf("register row callback: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	statements, err := migration.UpStatements()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	for _, stmt := range statements {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply migration statement: %v\n%s", err, stmt)
		}
	}
	return conn
}

// Count returns the number of rows in table matching where.
func Count(t *testing.T, conn *gorm.DB, table, where string, args ...any) int64 {
	t.Helper()
	var count int64
	query := "SELECT COUNT(1) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	if err := conn.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}
