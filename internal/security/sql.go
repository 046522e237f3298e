// Package security provides field encryption, masking and SQL helpers
package security

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidIdentifierRegex matches valid SQL identifiers
// Only allows lowercase letters, digits, and underscores, starting with a letter or underscore
var ValidIdentifierRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// likeEscape is portable across postgres, mysql and sqlite, unlike a backslash
const likeEscape = "!"

// ValidateIdentifier checks if a string is a valid SQL identifier
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("identifier too long (max 63 characters)")
	}
	if !ValidIdentifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier: must contain only lowercase letters, numbers, and underscores, starting with a letter or underscore")
	}
	return nil
}

// EscapeLikePattern escapes special characters in LIKE patterns
func EscapeLikePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, likeEscape, likeEscape+likeEscape)
	pattern = strings.ReplaceAll(pattern, `%`, likeEscape+`%`)
	pattern = strings.ReplaceAll(pattern, `_`, likeEscape+`_`)
	return pattern
}

// ContainsCondition builds a case-insensitive substring match on one column.
// Returns the condition with a single placeholder and its parameter.
func ContainsCondition(column, term string) (string, interface{}, error) {
	if err := ValidateIdentifier(column); err != nil {
		return "", nil, err
	}
	condition := fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '%s'", column, likeEscape)
	return condition, "%" + EscapeLikePattern(strings.ToLower(term)) + "%", nil
}
