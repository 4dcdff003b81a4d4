package vortexstats

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/xerrors"
)

// PostgresSink stores reports in a PostgreSQL table.
type PostgresSink struct {
	DB        *sql.DB
	TableName string
	Separator string
}

// NewPostgresSink creates a PostgreSQL sink. Open DB with the "pgx" driver.
func NewPostgresSink(db *sql.DB, tableName string) *PostgresSink {
	if tableName == "" {
		tableName = "vortex_usage"
	}
	return &PostgresSink{
		DB:        db,
		TableName: tableName,
		Separator: DefaultSeparator,
	}
}

// Setup creates the report table.
func (d *PostgresSink) Setup() error {
	if d.DB == nil {
		return xerrors.New("postgres sink requires DB")
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (report_key VARCHAR(255) NOT NULL, category VARCHAR(64) NOT NULL, owner VARCHAR(255) NOT NULL, count BIGINT NOT NULL DEFAULT 0, PRIMARY KEY (report_key, category, owner));`, d.TableName)
	_, err := d.DB.Exec(query)
	return err
}

func (d *PostgresSink) Description() string {
	return "PostgresSink"
}

// Write replaces the rows filed under key.
func (d *PostgresSink) Write(ctx context.Context, key ReportKey, s Snapshot) error {
	return d.table().write(ctx, key, s)
}

// Read loads the rows filed under key.
func (d *PostgresSink) Read(ctx context.Context, key ReportKey) (map[Category]map[string]int64, error) {
	return d.table().read(ctx, key)
}

func (d *PostgresSink) table() sqlReportTable {
	separator := d.Separator
	if separator == "" {
		separator = DefaultSeparator
	}
	return sqlReportTable{
		db:        d.DB,
		table:     d.TableName,
		separator: separator,
		dialect: sqlDialect{
			name:  "postgres",
			quote: noQuote,
			placeholder: func(n int) string {
				return fmt.Sprintf("$%d", n)
			},
		},
	}
}
