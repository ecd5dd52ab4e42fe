package content

import "regexp"

var mentionRe = regexp.MustCompile(`@(\w+)`)

// ExtractMentions returns the usernames mentioned in text without the leading '@'.
// Repeated mentions are reported once, in first-seen order.
func ExtractMentions(text string) []string {
	matches := mentionRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
