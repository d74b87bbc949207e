package database

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// maxIdentifierLen stays under Postgres's 63-byte NAMEDATALEN limit with room
// for the data table prefix and id suffix.
const maxIdentifierLen = 40

// NormalizeIdentifier converts an arbitrary sheet or column name into a
// storage-safe lowercase identifier. Runs of characters outside [a-z0-9] fold
// into single underscores, a leading digit gets a "c_" prefix, and the result
// is truncated. Empty input normalizes to "col".
func NormalizeIdentifier(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "col"
	}
	if unicode.IsDigit(rune(s[0])) {
		s = "c_" + s
	}
	if len(s) > maxIdentifierLen {
		s = strings.Trim(s[:maxIdentifierLen], "_")
	}
	return s
}

// DataTableName derives the backing table name for a sheet from its display
// name and id. The short id suffix keeps same-named sheets from colliding.
// Pure function so tests can exercise it without a live store.
func DataTableName(sheetName string, sheetID uuid.UUID) string {
	suffix := strings.ReplaceAll(sheetID.String(), "-", "")[:8]
	return "data_" + NormalizeIdentifier(sheetName) + "_" + suffix
}

// RowIDColumn is the synthetic auto-incrementing row identifier present on
// every data table. Its values are the stable row keys referenced by
// validation errors.
const RowIDColumn = "_row_id"

// QuoteIdentifier double-quotes an identifier for safe use in dynamic DDL.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
