package routing

import (
	"strings"
	"unicode"

	"chat-router/internal/normalize"
)

// ResolveRoute matches a normalized message against the keyword mappings.
// Candidates are tried in order; the first candidate that exactly equals a
// mapping keyword wins. A miss is a normal terminal outcome, not an error.
func ResolveRoute(msg normalize.NormalizedMessage, mappings []KeywordMapping) (Resolution, bool) {
	if len(mappings) == 0 {
		return Resolution{}, false
	}

	byKeyword := make(map[string]string, len(mappings))
	for _, mapping := range mappings {
		byKeyword[strings.ToLower(mapping.Keyword)] = mapping.RouteKey
	}

	for _, candidate := range CollectCandidates(msg) {
		if routeKey, ok := byKeyword[candidate]; ok {
			return Resolution{RouteKey: routeKey, MatchedKeyword: candidate}, true
		}
	}

	return Resolution{}, false
}

// CollectCandidates builds the ordered, deduplicated candidate list for a
// message: keyword candidate, text, interactive id and title, media caption,
// then every token of those strings split on runs of non-alphanumeric
// characters, preserving first-seen order.
func CollectCandidates(msg normalize.NormalizedMessage) []string {
	var raw []string
	if msg.KeywordCandidate != "" {
		raw = append(raw, msg.KeywordCandidate)
	}
	if msg.Text != "" {
		raw = append(raw, msg.Text)
	}
	if msg.Interactive != nil {
		if msg.Interactive.ID != "" {
			raw = append(raw, msg.Interactive.ID)
		}
		if msg.Interactive.Title != "" {
			raw = append(raw, msg.Interactive.Title)
		}
	}
	if msg.Media != nil && msg.Media.Caption != "" {
		raw = append(raw, msg.Media.Caption)
	}

	seen := make(map[string]struct{})
	var candidates []string
	add := func(candidate string) {
		if candidate == "" {
			return
		}
		if _, dup := seen[candidate]; dup {
			return
		}
		seen[candidate] = struct{}{}
		candidates = append(candidates, candidate)
	}

	for _, value := range raw {
		add(strings.TrimSpace(strings.ToLower(value)))
	}

	for _, value := range raw {
		for _, token := range tokenize(strings.ToLower(value)) {
			add(token)
		}
	}

	return candidates
}

// tokenize splits on runs of non-alphanumeric characters
func tokenize(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// PrimaryCandidate returns the message's leading candidate for telemetry
// sampling, or the empty string when the message carries none.
func PrimaryCandidate(msg normalize.NormalizedMessage) string {
	candidates := CollectCandidates(msg)
	if len(candidates) == 0 {
		return ""
	}
	return candidates[0]
}
