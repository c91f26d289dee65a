package postgres

import (
	"strconv"
	"strings"
	"testing"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestColumnType(t *testing.T) {
	tests := []struct {
		column   string
		expected string
	}{
		{"record_id", "INTEGER"},
		{"city_id", "INTEGER"},
		{"timestamp", "TIMESTAMP"},
		{"aqi", "DOUBLE PRECISION"},
		{"wind_direction", "DOUBLE PRECISION"},
		{"latitude", "DOUBLE PRECISION"},
		{"city_name", "TEXT"},
		{"status", "TEXT"},
		{"city_source", "TEXT"},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			assert.Equal(t, tt.expected, columnType(tt.column))
		})
	}
}

func TestCreateTableSQL(t *testing.T) {
	t.Run("dimension", func(t *testing.T) {
		ddl := createTableSQL(domain.Sources{})
		assert.Equal(t, "CREATE TABLE \"Source\" (\n\t\"source_id\" INTEGER PRIMARY KEY,\n\t\"source_name\" TEXT\n)", ddl)
	})

	t.Run("fact references dimensions", func(t *testing.T) {
		ddl := createTableSQL(domain.AirQualityRecords{})
		assert.Contains(t, ddl, `"record_id" INTEGER PRIMARY KEY`)
		assert.Contains(t, ddl, `"city_id" INTEGER NOT NULL REFERENCES "City" ("city_id")`)
		assert.Contains(t, ddl, `"source_id" INTEGER NOT NULL REFERENCES "Source" ("source_id")`)
		assert.Contains(t, ddl, `"condition_id" INTEGER NOT NULL REFERENCES "WeatherCondition" ("condition_id")`)
		assert.Contains(t, ddl, `"timestamp" TIMESTAMP`)
		assert.Contains(t, ddl, `"pm25" DOUBLE PRECISION`)
	})

	t.Run("cleaned batch has no keys", func(t *testing.T) {
		ddl := createTableSQL(domain.CleanedRecords{})
		assert.NotContains(t, ddl, "PRIMARY KEY")
		assert.NotContains(t, ddl, "REFERENCES")
	})
}

func TestDropTableSQL(t *testing.T) {
	assert.Equal(t, `DROP TABLE IF EXISTS "AirQualityRecord" CASCADE`, dropTableSQL(domain.TableAirQualityRecord))
}

func TestInsertSQL(t *testing.T) {
	sql := insertSQL(domain.Sources{}, 3)
	assert.Equal(t, `INSERT INTO "Source" ("source_id", "source_name") VALUES ($1, $2), ($3, $4), ($5, $6)`, sql)

	facts := insertSQL(domain.AirQualityRecords{}, 2)
	width := len(domain.AirQualityRecords{}.Columns())
	assert.True(t, strings.HasSuffix(facts, "$"+strconv.Itoa(2*width)+")"))
}
