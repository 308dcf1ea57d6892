// Package contract defines the token vocabulary shared by the DOCX
// templates and the renderer. Templates carry {{TOKEN}} markers and
// {{#SECTION}}...{{/SECTION}} loop blocks; the renderer replaces them
// with values from a structured CV.
package contract

import (
	"errors"
	"strings"

	"swisscv-backend/cv/model"
)

// ErrTemplateMismatch reports a CV and template that do not agree:
// either the CV lacks fields the template requires, or the template
// carries tokens the renderer does not know.
var ErrTemplateMismatch = errors.New("template mismatch")

// Top-level tokens replaced once per document.
const (
	TokenName       = "{{NAME}}"
	TokenJobTitle   = "{{JOB_TITLE}}"
	TokenPhone      = "{{PHONE}}"
	TokenEmail      = "{{EMAIL}}"
	TokenCity       = "{{CITY}}"
	TokenPostalCode = "{{POSTAL_CODE}}"
	TokenCountry    = "{{COUNTRY}}"
	TokenLinkedIn   = "{{LINKEDIN}}"
	TokenSummary1   = "{{SUMMARY_1}}"
	TokenSummary2   = "{{SUMMARY_2}}"
)

// Loop sections. A template block {{#WORK_EXPERIENCE}}...{{/WORK_EXPERIENCE}}
// repeats once per entry.
const (
	SectionWorkExperience = "WORK_EXPERIENCE"
	SectionAchievements   = "ACHIEVEMENTS"
	SectionEducation      = "EDUCATION"
	SectionSkills         = "SKILLS"
	SectionLanguages      = "LANGUAGES"
	SectionHobbies        = "HOBBIES"
)

// Per-entry tokens inside loop sections.
const (
	TokenWorkTitle          = "{{WE_TITLE}}"
	TokenWorkEmployer       = "{{WE_EMPLOYER}}"
	TokenWorkFrom           = "{{WE_FROM}}"
	TokenWorkTo             = "{{WE_TO}}"
	TokenWorkResponsibility = "{{WE_RESPONSIBILITY}}"
	TokenAchievementItem    = "{{ACHIEVEMENT_ITEM}}"
	TokenEduDegree          = "{{EDU_DEGREE}}"
	TokenEduGraduation      = "{{EDU_GRADUATION}}"
	TokenEduInstitution     = "{{EDU_INSTITUTION}}"
	TokenEduLocation        = "{{EDU_LOCATION}}"
	TokenEduCountry         = "{{EDU_COUNTRY}}"
	TokenSkillItem          = "{{SKILL_ITEM}}"
	TokenLanguageName       = "{{LANGUAGE_NAME}}"
	TokenLanguageLevel      = "{{LANGUAGE_LEVEL}}"
	TokenHobbyItem          = "{{HOBBY_ITEM}}"
)

// MissingFieldsError lists CV fields a template requires but the CV
// does not provide.
type MissingFieldsError struct {
	Fields []string
}

func (e MissingFieldsError) Error() string {
	return "cv is missing fields the template requires: " + strings.Join(e.Fields, ", ")
}

func (e MissingFieldsError) Unwrap() error { return ErrTemplateMismatch }

// Enforce checks that the CV carries the fields a template cannot
// render without. Optional values the CV leaves empty render as
// blanks; only structural gaps are an error. A CV that passes the
// schema's Validate always passes Enforce, so a stored record can
// always be downloaded.
func Enforce(cv model.StructuredCV) error {
	missing := collectMissing(cv)
	if len(missing) > 0 {
		return MissingFieldsError{Fields: missing}
	}
	return nil
}

func collectMissing(cv model.StructuredCV) []string {
	missing := make([]string, 0, 2)
	if !hasValue(cv.PersonalInfo.Name) {
		missing = append(missing, "personalInfo.name")
	}
	if len(cv.SummaryParagraphs) != 2 {
		missing = append(missing, "summaryParagraphs")
	}
	return missing
}

// TokenMap returns the top-level replacements for a CV.
func TokenMap(cv model.StructuredCV) map[string]string {
	return map[string]string{
		TokenName:       cv.PersonalInfo.Name,
		TokenJobTitle:   cv.PersonalInfo.JobTitle,
		TokenPhone:      cv.PersonalInfo.Phone,
		TokenEmail:      cv.PersonalInfo.Email,
		TokenCity:       cv.PersonalInfo.City,
		TokenPostalCode: cv.PersonalInfo.PostalCode,
		TokenCountry:    cv.PersonalInfo.Country,
		TokenLinkedIn:   cv.PersonalInfo.LinkedIn,
		TokenSummary1:   summaryAt(cv, 0),
		TokenSummary2:   summaryAt(cv, 1),
	}
}

// WorkEntryTokens returns the replacements for one work experience
// entry. Achievements are expanded separately through the nested
// ACHIEVEMENTS section.
func WorkEntryTokens(entry model.WorkExperience) map[string]string {
	return map[string]string{
		TokenWorkTitle:          entry.JobTitle,
		TokenWorkEmployer:       entry.Employer,
		TokenWorkFrom:           entry.FromDate,
		TokenWorkTo:             entry.ToDate,
		TokenWorkResponsibility: entry.Responsibility,
	}
}

func EducationEntryTokens(entry model.Education) map[string]string {
	return map[string]string{
		TokenEduDegree:      entry.Degree,
		TokenEduGraduation:  entry.GraduationYear,
		TokenEduInstitution: entry.Institution,
		TokenEduLocation:    entry.InstitutionLocation,
		TokenEduCountry:     entry.InstitutionCountry,
	}
}

func LanguageEntryTokens(entry model.LanguageSkill) map[string]string {
	return map[string]string{
		TokenLanguageName:  entry.Language,
		TokenLanguageLevel: entry.Level,
	}
}

func summaryAt(cv model.StructuredCV, i int) string {
	if i < len(cv.SummaryParagraphs) {
		return cv.SummaryParagraphs[i]
	}
	return ""
}

func hasValue(value string) bool {
	return strings.TrimSpace(value) != ""
}
