package vortexstats

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/xerrors"
	_ "modernc.org/sqlite"
)

// SQLiteSink stores reports in a SQLite table.
type SQLiteSink struct {
	DB        *sql.DB
	TableName string
	Separator string
}

// NewSQLiteSink creates a SQLite sink.
func NewSQLiteSink(db *sql.DB, tableName string) *SQLiteSink {
	if tableName == "" {
		tableName = "vortex_usage"
	}
	return &SQLiteSink{
		DB:        db,
		TableName: tableName,
		Separator: DefaultSeparator,
	}
}

// Setup applies pragmas and creates the report table.
func (d *SQLiteSink) Setup() error {
	if d.DB == nil {
		return xerrors.New("sqlite sink requires DB")
	}
	if err := d.applyPragmas(); err != nil {
		return err
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (report_key TEXT NOT NULL, category TEXT NOT NULL, owner TEXT NOT NULL, count INTEGER NOT NULL DEFAULT 0, PRIMARY KEY (report_key, category, owner));`, d.TableName)
	_, err := d.DB.Exec(query)
	return err
}

func (d *SQLiteSink) Description() string {
	return "SQLiteSink"
}

// Write replaces the rows filed under key.
func (d *SQLiteSink) Write(ctx context.Context, key ReportKey, s Snapshot) error {
	return d.table().write(ctx, key, s)
}

// Read loads the rows filed under key.
func (d *SQLiteSink) Read(ctx context.Context, key ReportKey) (map[Category]map[string]int64, error) {
	return d.table().read(ctx, key)
}

func (d *SQLiteSink) table() sqlReportTable {
	separator := d.Separator
	if separator == "" {
		separator = DefaultSeparator
	}
	return sqlReportTable{
		db:        d.DB,
		table:     d.TableName,
		separator: separator,
		dialect: sqlDialect{
			name:        "sqlite",
			quote:       noQuote,
			placeholder: questionPlaceholder,
		},
	}
}

func (d *SQLiteSink) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := d.DB.Exec(p); err != nil {
			return err
		}
	}
	return nil
}
