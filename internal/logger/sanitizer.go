package logger

import (
	"fmt"
	"regexp"
	"sync"
)

// Sanitizer masks user-identifying fragments of file system paths and
// credentials embedded in URLs before they reach the log.
//
// Only string and error values are rewritten; other value types pass through.
type Sanitizer struct {
	mu       sync.RWMutex
	patterns []SanitizeRule
}

// SanitizeRule is a single rewrite
type SanitizeRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// NewSanitizer creates a sanitizer with the default rules
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: defaultSanitizeRules(),
	}
}

func defaultSanitizeRules() []SanitizeRule {
	return []SanitizeRule{
		// user:password@ in share or URL roots
		{regexp.MustCompile(`://[^/@\s]+@`), "://***@"},

		// Windows profile directories, drive letters and UNC
		{regexp.MustCompile(`(?i)[A-Z]:\\Users\\[^\\]+`), "***:\\Users\\***"},
		{regexp.MustCompile(`(?i)\\\\[^\\]+\\[^\\]+\\Users\\[^\\]+`), "\\\\***\\***\\Users\\***"},

		// Unix home directories
		{regexp.MustCompile(`/home/[^/]+`), "/home/***"},
		{regexp.MustCompile(`/Users/[^/]+`), "/Users/***"},
	}
}

// Sanitize applies every rule to input
func (s *Sanitizer) Sanitize(input string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := input
	for _, rule := range s.patterns {
		result = rule.Pattern.ReplaceAllString(result, rule.Replacement)
	}
	return result
}

// SanitizeArgs sanitizes the values of key-value logging arguments
func (s *Sanitizer) SanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	result := make([]any, len(args))
	copy(result, args)

	for i := 1; i < len(result); i += 2 {
		switch v := result[i].(type) {
		case string:
			result[i] = s.Sanitize(v)
		case error:
			result[i] = s.Sanitize(v.Error())
		}
	}

	return result
}

// AddRule adds a custom rewrite rule
func (s *Sanitizer) AddRule(pattern string, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.patterns = append(s.patterns, SanitizeRule{
		Pattern:     re,
		Replacement: replacement,
	})
	return nil
}

// apply is a nil-safe helper for the logger types
func (s *Sanitizer) apply(msg string, args []any) (string, []any) {
	if s == nil {
		return msg, args
	}
	return s.Sanitize(msg), s.SanitizeArgs(args)
}
