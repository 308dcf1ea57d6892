package conversions

import (
	"fmt"
	"regexp"
	"strings"
)

var numberPattern = regexp.MustCompile(`\d+(?:['.,]\d+)*`)

// FabricationWarnings flags years and numbers in the rewritten text
// that do not appear anywhere in the consolidated source. Advisory
// only: the warnings are surfaced on the conversion and the text is
// never mutated. Formatting differences (1'200 vs 1200) are tolerated
// by comparing digit-normalized tokens.
func FabricationWarnings(consolidated, rewritten string) []string {
	source := make(map[string]bool)
	for _, tok := range numberPattern.FindAllString(consolidated, -1) {
		source[normalizeNumber(tok)] = true
	}

	var warnings []string
	seen := make(map[string]bool)
	for _, tok := range numberPattern.FindAllString(rewritten, -1) {
		normalized := normalizeNumber(tok)
		if source[normalized] || seen[normalized] {
			continue
		}
		seen[normalized] = true
		warnings = append(warnings, fmt.Sprintf("number %q does not appear in the source material", tok))
	}
	return warnings
}

func normalizeNumber(tok string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, tok)
}
