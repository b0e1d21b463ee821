// Package hashtags extracts and normalizes hashtag tokens from snap text.
package hashtags

import (
	"regexp"
	"strings"
)

const prefix = "#"

var hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

// Extract returns the lower-cased hashtags in message in order of appearance.
// Duplicates are kept. The result is never nil.
func Extract(message string) []string {
	matches := hashtagPattern.FindAllString(message, -1)
	tags := make([]string, 0, len(matches))
	for _, match := range matches {
		tags = append(tags, strings.ToLower(match))
	}
	return tags
}

// Normalize turns a raw interest or search term into its stored hashtag form.
// It returns "" when nothing usable remains.
func Normalize(raw string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(raw), prefix)
	if trimmed == "" {
		return ""
	}
	return prefix + strings.ToLower(trimmed)
}

// NormalizeAll normalizes each term, dropping empty results and duplicates.
func NormalizeAll(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, value := range raw {
		tag := Normalize(value)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// Distinct returns tags with later duplicates removed, preserving order.
func Distinct(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	unique := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		unique = append(unique, tag)
	}
	return unique
}
