package vortexstats

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/xerrors"
)

// sqlDialect captures the differences between the SQL backends.
type sqlDialect struct {
	name        string
	quote       func(string) string
	placeholder func(n int) string
}

// sqlReportTable stores one row per (report_key, category, owner).
type sqlReportTable struct {
	db        *sql.DB
	table     string
	separator string
	dialect   sqlDialect
}

func (t sqlReportTable) write(ctx context.Context, key ReportKey, s Snapshot) (err error) {
	if t.db == nil {
		return xerrors.Errorf("%s sink requires DB", t.dialect.name)
	}
	joined := key.Join(t.separator)

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, t.deleteQuery(), joined); err != nil {
		return xerrors.Errorf("delete report %q: %w", joined, err)
	}

	insert := t.insertQuery()
	for _, c := range Categories() {
		mapping := s.counts[c]
		owners := make([]string, 0, len(mapping))
		for owner := range mapping {
			owners = append(owners, owner)
		}
		sort.Strings(owners)
		for _, owner := range owners {
			if _, err = tx.ExecContext(ctx, insert, joined, c.String(), owner, mapping[owner]); err != nil {
				return xerrors.Errorf("insert %s/%s: %w", c, owner, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return xerrors.Errorf("commit: %w", err)
	}
	return nil
}

func (t sqlReportTable) read(ctx context.Context, key ReportKey) (map[Category]map[string]int64, error) {
	if t.db == nil {
		return nil, xerrors.Errorf("%s sink requires DB", t.dialect.name)
	}

	rows, err := t.db.QueryContext(ctx, t.selectQuery(), key.Join(t.separator))
	if err != nil {
		return nil, xerrors.Errorf("select report: %w", err)
	}
	defer rows.Close()

	out := emptyCounts()
	for rows.Next() {
		var (
			categoryName string
			owner        string
			count        int64
		)
		if err := rows.Scan(&categoryName, &owner, &count); err != nil {
			return nil, xerrors.Errorf("scan row: %w", err)
		}
		c, ok := ParseCategory(categoryName)
		if !ok {
			continue
		}
		out[c][owner] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (t sqlReportTable) deleteQuery() string {
	q := t.dialect.quote
	return fmt.Sprintf(`DELETE FROM %s WHERE %s = %s;`, q(t.table), q("report_key"), t.dialect.placeholder(1))
}

func (t sqlReportTable) insertQuery() string {
	q := t.dialect.quote
	columns := []string{q("report_key"), q("category"), q("owner"), q("count")}
	placeholders := make([]string, 0, len(columns))
	for i := range columns {
		placeholders = append(placeholders, t.dialect.placeholder(i+1))
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s);`, q(t.table), strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}

func (t sqlReportTable) selectQuery() string {
	q := t.dialect.quote
	return fmt.Sprintf(`SELECT %s, %s, %s FROM %s WHERE %s = %s;`,
		q("category"), q("owner"), q("count"), q(t.table), q("report_key"), t.dialect.placeholder(1))
}

func questionPlaceholder(int) string { return "?" }

func noQuote(identifier string) string { return identifier }
