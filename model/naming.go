package model

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Naming derives table and column names for types and fields without explicit names.
type Naming interface {
	TableName(typeName string) string
	ColumnName(fieldName string) string
}

// SnakeNaming maps UserAccount to user_accounts and CreatedAt to created_at.
type SnakeNaming struct {
	// Singular keeps table names unpluralized.
	Singular bool
}

// TableName implements Naming.
func (n SnakeNaming) TableName(typeName string) string {
	name := SnakeCase(typeName)
	if n.Singular {
		return name
	}
	return inflection.Plural(name)
}

// ColumnName implements Naming.
func (SnakeNaming) ColumnName(fieldName string) string {
	return SnakeCase(fieldName)
}

// SnakeCase converts a Go identifier to snake_case, keeping acronyms together
// (UserID -> user_id, HTTPServer -> http_server).
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
