package swahili

import (
	"regexp"
	"strings"
)

// hashtagPattern matches hash-prefixed words. The Latin Extended range keeps
// accented characters used in borrowed words and place names intact.
var hashtagPattern = regexp.MustCompile(`#([0-9A-Za-z_\x{00C0}-\x{024F}]+)`)

// ExtractHashtags returns the unique, lowercased hashtags in text without
// the leading '#'. Order is not significant.
func ExtractHashtags(text string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
