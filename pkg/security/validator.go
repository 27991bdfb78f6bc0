package security

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxSearchQueryLength defines the maximum allowed length for search queries
	MaxSearchQueryLength = 100

	// LikeEscape is the escape character used by LikePattern.
	LikeEscape = `\`
)

var (
	ErrQueryTooLong     = errors.New("search query too long")
	ErrQueryInvalidChar = errors.New("search query contains invalid characters")
)

// suspiciousPatterns catches statement terminators and comment openers that
// never occur in a username.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`--`),
	regexp.MustCompile(`(?i)(<script|javascript:|vbscript:|onload=|onerror=)`),
	regexp.MustCompile(`(?i)\b(or|and)\s+\d+\s*=\s*\d+`),
}

// ValidateSearchQuery trims a username search query and rejects anything
// that could not be part of a username.
func ValidateSearchQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}

	if utf8.RuneCountInString(query) > MaxSearchQueryLength {
		return "", ErrQueryTooLong
	}

	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(query) {
			return "", ErrQueryInvalidChar
		}
	}

	for _, char := range query {
		if !isValidSearchChar(char) {
			return "", ErrQueryInvalidChar
		}
	}

	return query, nil
}

// isValidSearchChar checks if a character may appear in a search query
func isValidSearchChar(char rune) bool {
	return unicode.IsLetter(char) || unicode.IsNumber(char) ||
		char == ' ' || char == '-' || char == '_' || char == '.' ||
		char == '@' || char == '+' || char == '%'
}

// SanitizeSearchString escapes LIKE wildcards so they match literally.
func SanitizeSearchString(query string) string {
	if query == "" {
		return ""
	}

	query = strings.ReplaceAll(query, LikeEscape, LikeEscape+LikeEscape)
	query = strings.ReplaceAll(query, "%", LikeEscape+"%")
	query = strings.ReplaceAll(query, "_", LikeEscape+"_")

	return query
}

// LikePattern builds a case-insensitive substring pattern for
// `LOWER(col) LIKE ? ESCAPE '\'`.
func LikePattern(query string) string {
	return "%" + SanitizeSearchString(strings.ToLower(query)) + "%"
}
