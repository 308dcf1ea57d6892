package conversions

import (
	"strings"

	"swisscv-backend/internal/documents"
)

// Provenance tags prefixing each block of the consolidated text, so the
// rewrite prompt can tell source material apart from user wishes.
const (
	TagOriginalCV     = "[ORIGINAL_CV]"
	TagCoverLetter    = "[COVER_LETTER]"
	TagJobDescription = "[JOB_DESCRIPTION]"
	TagUserNotes      = "[USER_NOTES]"
)

// Block is one tagged input to the prompt builder.
type Block struct {
	Kind documents.Kind
	Text string
}

func tagForKind(kind documents.Kind) string {
	switch kind {
	case documents.KindCoverLetter:
		return TagCoverLetter
	case documents.KindJobDescription:
		return TagJobDescription
	case documents.KindNote:
		return TagUserNotes
	default:
		return TagOriginalCV
	}
}

// Consolidate builds the rewrite-stage input. Blocks keep their input
// order and appear verbatim under their provenance tag; free-text notes
// come last under [USER_NOTES]. Returns ErrEmptyInput when nothing
// non-blank was supplied.
func Consolidate(blocks []Block, notes string) (string, error) {
	var b strings.Builder
	for _, block := range blocks {
		text := strings.TrimSpace(block.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(tagForKind(block.Kind))
		b.WriteString("\n")
		b.WriteString(text)
	}

	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(TagUserNotes)
		b.WriteString("\n")
		b.WriteString(trimmed)
	}

	if b.Len() == 0 {
		return "", ErrEmptyInput
	}
	return b.String(), nil
}
