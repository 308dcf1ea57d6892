package llm

import (
	_ "embed"
	"fmt"
	"strings"
)

// Language selects the prompt pair and the DOCX template of a
// conversion.
type Language string

const (
	LanguageEnglish Language = "english"
	LanguageGerman  Language = "german"
)

// ParseLanguage maps a request value to a supported language. An
// empty value defaults to English; anything unrecognized is rejected.
func ParseLanguage(raw string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "english", "en":
		return LanguageEnglish, nil
	case "german", "de":
		return LanguageGerman, nil
	default:
		return "", fmt.Errorf("unsupported language %q", raw)
	}
}

// Tone selects the vocabulary and emphasis of the rewrite stage.
type Tone string

const (
	ToneExecutive         Tone = "executive"
	ToneTechnical         Tone = "technical"
	ToneSales             Tone = "sales"
	ToneProjectManagement Tone = "project_management"
	ToneGeneral           Tone = "general"
)

// ParseTone maps a request value to a supported tone. An empty value
// defaults to the general professional tone.
func ParseTone(raw string) (Tone, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ToneGeneral, nil
	case "executive":
		return ToneExecutive, nil
	case "technical":
		return ToneTechnical, nil
	case "sales":
		return ToneSales, nil
	case "project_management":
		return ToneProjectManagement, nil
	case "general":
		return ToneGeneral, nil
	default:
		return "", fmt.Errorf("unsupported tone %q", raw)
	}
}

var (
	//go:embed prompts/rewrite_en.txt
	rewritePromptEN string
	//go:embed prompts/rewrite_de.txt
	rewritePromptDE string
	//go:embed prompts/extract_en.txt
	extractPromptEN string
	//go:embed prompts/extract_de.txt
	extractPromptDE string
)

var toneGuidanceEN = map[Tone]string{
	ToneExecutive:         "Core focus on strategy, vision, P&L responsibility, and team leadership. Emphasize financial metrics, team size, and C-level stakeholder management.",
	ToneTechnical:         "Core focus on deep domain knowledge and technical proficiency. Emphasize specific technologies, methodologies, and certifications.",
	ToneSales:             "Core focus on revenue generation, market growth, and client acquisition. Emphasize quantifiable sales results (CHF, %) and quota attainment.",
	ToneProjectManagement: "Core focus on on-time and on-budget delivery and process efficiency. Emphasize project scope and methodologies.",
	ToneGeneral:           "Core focus on competence, reliability, and effective collaboration. Emphasize key responsibilities, teamwork, and process improvements.",
}

var toneGuidanceDE = map[Tone]string{
	ToneExecutive:         "Fokus auf Strategie, Vision, GuV-Verantwortung und Teamführung. Verben wie \"leitete\", \"steuerte\", \"orchestrierte\". Betonen Sie Finanzkennzahlen, Teamgrösse und Stakeholder-Management.",
	ToneTechnical:         "Fokus auf Fachexpertise, technische Kompetenz und Problemlösung. Verben wie \"entwickelte\", \"konzipierte\", \"analysierte\". Betonen Sie Technologien, Methoden und Zertifizierungen.",
	ToneSales:             "Fokus auf Umsatzgenerierung, Marktwachstum und Kundenakquise. Verben wie \"akquirierte\", \"erzielte\", \"übertraf\". Betonen Sie quantifizierbare Vertriebserfolge (CHF, %) und Quotenerreichung.",
	ToneProjectManagement: "Fokus auf termingerechte und budgetkonforme Lieferung sowie Prozesseffizienz. Verben wie \"lieferte\", \"managte\", \"koordinierte\". Betonen Sie Projektumfang und Methoden.",
	ToneGeneral:           "Fokus auf Kompetenz, Zuverlässigkeit und Zusammenarbeit. Verben wie \"unterstützte\", \"verbesserte\", \"organisierte\".",
}

// ToneGuidance returns the tone instruction block for a language.
func ToneGuidance(language Language, tone Tone) string {
	guidance := toneGuidanceEN
	if language == LanguageGerman {
		guidance = toneGuidanceDE
	}
	if text, ok := guidance[tone]; ok {
		return text
	}
	return guidance[ToneGeneral]
}

// BuildRewritePrompt fills the rewrite template for the language with
// the tone guidance and the consolidated source text.
func BuildRewritePrompt(language Language, tone Tone, consolidatedText string) string {
	template := rewritePromptEN
	if language == LanguageGerman {
		template = rewritePromptDE
	}
	replacer := strings.NewReplacer(
		"{{TONE_GUIDANCE}}", ToneGuidance(language, tone),
		"{{CONSOLIDATED_TEXT}}", consolidatedText,
	)
	return replacer.Replace(template)
}

// BuildExtractionPrompt fills the extraction template for the language
// with the rewritten CV text.
func BuildExtractionPrompt(language Language, rewrittenText string) string {
	template := extractPromptEN
	if language == LanguageGerman {
		template = extractPromptDE
	}
	return strings.NewReplacer("{{REWRITTEN_TEXT}}", rewrittenText).Replace(template)
}

// BuildCorrectivePrompt builds the one-shot repair prompt sent after a
// failed extraction. It restates the full extraction instructions,
// then shows the model its previous output and why it was rejected.
func BuildCorrectivePrompt(language Language, rewrittenText, validationErr, priorRaw string) string {
	var b strings.Builder
	b.WriteString(BuildExtractionPrompt(language, rewrittenText))
	if language == LanguageGerman {
		b.WriteString("\n\nIhre vorherige Antwort wurde abgelehnt. Grund: ")
		b.WriteString(validationErr)
		b.WriteString("\nVORHERIGE ANTWORT:\n---\n")
		b.WriteString(priorRaw)
		b.WriteString("\n---\nKorrigieren Sie die Antwort. Geben Sie NUR das valide JSON-Objekt aus.")
		return b.String()
	}
	b.WriteString("\n\nYour previous response was rejected. Reason: ")
	b.WriteString(validationErr)
	b.WriteString("\nPREVIOUS RESPONSE:\n---\n")
	b.WriteString(priorRaw)
	b.WriteString("\n---\nFix the response. Output ONLY the valid JSON object.")
	return b.String()
}
