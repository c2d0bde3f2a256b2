package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// CamelToSnake converts a CamelCase string to snake_case.
// Consecutive uppercase letters (acronyms) are kept together:
// "ID" → "id", "UserID" → "user_id", "CreatedAt" → "created_at".
func CamelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				next := rune(0)
				if i+1 < len(runes) {
					next = runes[i+1]
				}
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && unicode.IsLower(next)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SnakeToCamel converts a snake_case string to CamelCase.
// "account_user" → "AccountUser".
func SnakeToCamel(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tableize returns the default collection name for a model name.
// "AccountUser" → "account_users".
func Tableize(model string) string {
	return inflection.Plural(CamelToSnake(model))
}

// Classify returns the model name implied by a plural association name.
// "account_memberships" → "AccountMembership".
func Classify(assoc string) string {
	return SnakeToCamel(inflection.Singular(assoc))
}

// ForeignKey returns the default foreign key field that points at a model.
// "AccountUser" → "account_user_id".
func ForeignKey(model string) string {
	return CamelToSnake(model) + "_id"
}
