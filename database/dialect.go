package database

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between the engines the stores run on.
// Queries are written with ? placeholders and passed through Rebind.
type Dialect struct {
	Name string

	numberedParams bool

	// Greatest is the two-argument maximum function.
	Greatest string

	// LockContent, when set, takes a transaction scoped lock keyed by a
	// content id so dedup checks for the same content serialize.
	LockContent string

	TimestampType string
	FloatType     string
	IntType       string
	AutoIDType    string
	BlobType      string

	buckets map[string]string
}

var Postgres = Dialect{
	Name:           "postgres",
	numberedParams: true,
	Greatest:       "GREATEST",
	LockContent:    "SELECT pg_advisory_xact_lock(hashtext(?))",
	TimestampType:  "TIMESTAMPTZ",
	FloatType:      "DOUBLE PRECISION",
	IntType:        "BIGINT",
	AutoIDType:     "SERIAL PRIMARY KEY",
	BlobType:       "BYTEA",
	buckets: map[string]string{
		"daily":   "to_char(date_trunc('day', %[1]s AT TIME ZONE 'UTC'), 'YYYY-MM-DD')",
		"monthly": "to_char(date_trunc('month', %[1]s AT TIME ZONE 'UTC'), 'YYYY-MM-DD')",
		"yearly":  "to_char(date_trunc('year', %[1]s AT TIME ZONE 'UTC'), 'YYYY-MM-DD')",
	},
}

// SQLite stores timestamps as UTC text, so strftime groups in UTC as well.
var SQLite = Dialect{
	Name:          "sqlite3",
	Greatest:      "MAX",
	TimestampType: "TIMESTAMP",
	FloatType:     "REAL",
	IntType:       "INTEGER",
	AutoIDType:    "INTEGER PRIMARY KEY AUTOINCREMENT",
	BlobType:      "BLOB",
	buckets: map[string]string{
		"daily":   "strftime('%%Y-%%m-%%d', %[1]s)",
		"monthly": "strftime('%%Y-%%m-01', %[1]s)",
		"yearly":  "strftime('%%Y-01-01', %[1]s)",
	},
}

// Rebind rewrites ? placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	if !d.numberedParams {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Bucket returns the expression labelling column with the first day of its
// daily, monthly or yearly period as YYYY-MM-DD.
func (d Dialect) Bucket(granularity, column string) (string, error) {
	tmpl, ok := d.buckets[granularity]
	if !ok {
		return "", fmt.Errorf("no bucket expression for granularity %q in %s", granularity, d.Name)
	}
	return fmt.Sprintf(tmpl, column), nil
}
