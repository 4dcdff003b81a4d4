package vortexstats

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"golang.org/x/xerrors"
)

// MySQLSink stores reports in a MySQL table.
type MySQLSink struct {
	DB        *sql.DB
	TableName string
	Separator string
}

// NewMySQLSink creates a MySQL sink.
func NewMySQLSink(db *sql.DB, tableName string) *MySQLSink {
	if tableName == "" {
		tableName = "vortex_usage"
	}
	return &MySQLSink{
		DB:        db,
		TableName: tableName,
		Separator: DefaultSeparator,
	}
}

// Setup creates the report table.
func (d *MySQLSink) Setup() error {
	if d.DB == nil {
		return xerrors.New("mysql sink requires DB")
	}
	table := quoteMySQLIdentifier(d.TableName)
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (`report_key` VARCHAR(255) NOT NULL, `category` VARCHAR(64) NOT NULL, `owner` VARCHAR(255) NOT NULL, `count` BIGINT NOT NULL DEFAULT 0, PRIMARY KEY (`report_key`, `category`, `owner`));", table)
	_, err := d.DB.Exec(query)
	return err
}

func (d *MySQLSink) Description() string {
	return "MySQLSink"
}

// Write replaces the rows filed under key.
func (d *MySQLSink) Write(ctx context.Context, key ReportKey, s Snapshot) error {
	return d.table().write(ctx, key, s)
}

// Read loads the rows filed under key.
func (d *MySQLSink) Read(ctx context.Context, key ReportKey) (map[Category]map[string]int64, error) {
	return d.table().read(ctx, key)
}

func (d *MySQLSink) table() sqlReportTable {
	separator := d.Separator
	if separator == "" {
		separator = DefaultSeparator
	}
	return sqlReportTable{
		db:        d.DB,
		table:     d.TableName,
		separator: separator,
		dialect: sqlDialect{
			name:        "mysql",
			quote:       quoteMySQLIdentifier,
			placeholder: questionPlaceholder,
		},
	}
}

func quoteMySQLIdentifier(identifier string) string {
	escaped := strings.ReplaceAll(identifier, "`", "``")
	return "`" + escaped + "`"
}
