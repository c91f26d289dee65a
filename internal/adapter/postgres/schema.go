package postgres

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/lib/pq"
)

// foreignKeys lists the dimension each fact column references.
var foreignKeys = map[string]string{
	"city_id":      domain.TableCity,
	"source_id":    domain.TableSource,
	"condition_id": domain.TableWeatherCondition,
}

func columnType(column string) string {
	switch {
	case column == domain.ColTimestamp:
		return "TIMESTAMP"
	case strings.HasSuffix(column, "_id"):
		return "INTEGER"
	case column == domain.ColLatitude || column == domain.ColLongitude:
		return "DOUBLE PRECISION"
	}
	if _, ok := domain.MeasurementByColumn(column); ok {
		return "DOUBLE PRECISION"
	}
	return "TEXT"
}

// createTableSQL renders the DDL for a table. The first column of a star-schema
// table is its primary key; fact columns reference their dimensions.
func createTableSQL(t domain.Table) string {
	cols := t.Columns()
	star := t.Name() != domain.TableCleaned

	defs := make([]string, len(cols))
	for i, c := range cols {
		def := pq.QuoteIdentifier(c) + " " + columnType(c)
		switch {
		case star && i == 0:
			def += " PRIMARY KEY"
		case t.Name() == domain.TableAirQualityRecord && foreignKeys[c] != "":
			def += " NOT NULL REFERENCES " + pq.QuoteIdentifier(foreignKeys[c]) + " (" + pq.QuoteIdentifier(c) + ")"
		}
		defs[i] = def
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", pq.QuoteIdentifier(t.Name()), strings.Join(defs, ",\n\t"))
}

func dropTableSQL(name string) string {
	return "DROP TABLE IF EXISTS " + pq.QuoteIdentifier(name) + " CASCADE"
}

// insertSQL renders a multi-row INSERT with $n placeholders for rows rows.
func insertSQL(t domain.Table, rows int) string {
	cols := t.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", pq.QuoteIdentifier(t.Name()), strings.Join(quoted, ", "))
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range cols {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}
