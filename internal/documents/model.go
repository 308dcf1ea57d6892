package documents

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies an uploaded document. The kind decides the provenance
// tag the document's text gets during consolidation.
type Kind string

const (
	KindCV             Kind = "cv"
	KindCoverLetter    Kind = "cover_letter"
	KindJobDescription Kind = "job_description"
	KindNote           Kind = "note"
)

// ParseKind normalizes a client-supplied kind. An empty kind defaults
// to cv, which is what most single-file uploads are.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "cv", "resume":
		return KindCV, nil
	case "cover_letter", "cover-letter":
		return KindCoverLetter, nil
	case "job_description", "job-description":
		return KindJobDescription, nil
	case "note", "notes":
		return KindNote, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, raw)
	}
}

// Document is an uploaded source file owned by a session. Text is
// extracted once at upload time and stored next to the original; both
// objects are removed at session teardown.
type Document struct {
	ID               string
	UserID           string
	Kind             Kind
	FileName         string
	MimeType         string
	SizeBytes        int64
	StorageKey       string
	ExtractedTextKey string
	CreatedAt        time.Time
}
