package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// SchemaVersion identifies the structured CV shape this package defines.
// The DOCX templates are versioned together with it.
const SchemaVersion = "cv_v1"

// Caps for list sections. Exceeding a cap is a validation error, never a
// silent truncation.
const (
	MaxWorkExperience = 10
	MaxEducation      = 10
	MaxSkills         = 6
	MaxLanguages      = 6
	MaxHobbies        = 6
	MaxAchievements   = 3

	MaxSummaryFirstChars  = 310
	MaxSummarySecondChars = 160
)

// StructuredCV is the canonical structured CV payload exchanged between the
// extraction stage, the review form, and the renderer.
type StructuredCV struct {
	PersonalInfo      PersonalInfo     `json:"personalInfo"`
	SummaryParagraphs []string         `json:"summaryParagraphs"`
	WorkExperience    []WorkExperience `json:"workExperience"`
	Education         []Education      `json:"education"`
	Skills            []string         `json:"skills"`
	Languages         []LanguageSkill  `json:"languages"`
	Hobbies           []string         `json:"hobbies"`
}

// PersonalInfo captures identity and contact details.
type PersonalInfo struct {
	Name       string `json:"name"`
	JobTitle   string `json:"jobTitle"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	LinkedIn   string `json:"linkedin"`
}

// WorkExperience represents one employment entry.
type WorkExperience struct {
	JobTitle       string   `json:"jobTitle"`
	Employer       string   `json:"employer"`
	FromDate       string   `json:"fromDate"`
	ToDate         string   `json:"toDate"`
	Responsibility string   `json:"responsibility"`
	Achievements   []string `json:"achievements"`
}

// Education represents one education or qualification entry.
type Education struct {
	Degree              string `json:"degree"`
	GraduationYear      string `json:"graduationYear"`
	Institution         string `json:"institution"`
	InstitutionLocation string `json:"institutionLocation"`
	InstitutionCountry  string `json:"institutionCountry"`
}

// LanguageSkill pairs a language with a proficiency level.
type LanguageSkill struct {
	Language string `json:"language"`
	Level    string `json:"level"`
}

// Validate enforces required fields, shapes, and caps for StructuredCV.
// The same rules gate extraction output and user edits from the review form.
func (m StructuredCV) Validate() error {
	if strings.TrimSpace(m.PersonalInfo.Name) == "" {
		return errors.New("personalInfo.name is required")
	}
	if m.SummaryParagraphs == nil {
		return errors.New("summaryParagraphs is required")
	}
	if len(m.SummaryParagraphs) != 2 {
		return fmt.Errorf("summaryParagraphs must contain exactly 2 entries, got %d", len(m.SummaryParagraphs))
	}
	if n := utf8.RuneCountInString(m.SummaryParagraphs[0]); n > MaxSummaryFirstChars {
		return fmt.Errorf("summaryParagraphs[0] must be at most %d characters, got %d", MaxSummaryFirstChars, n)
	}
	if n := utf8.RuneCountInString(m.SummaryParagraphs[1]); n > MaxSummarySecondChars {
		return fmt.Errorf("summaryParagraphs[1] must be at most %d characters, got %d", MaxSummarySecondChars, n)
	}

	if m.WorkExperience == nil {
		return errors.New("workExperience is required")
	}
	if len(m.WorkExperience) > MaxWorkExperience {
		return fmt.Errorf("workExperience must contain at most %d entries, got %d", MaxWorkExperience, len(m.WorkExperience))
	}
	for i, exp := range m.WorkExperience {
		if strings.TrimSpace(exp.JobTitle) == "" {
			return fmt.Errorf("workExperience[%d].jobTitle is required", i)
		}
		if strings.TrimSpace(exp.Employer) == "" {
			return fmt.Errorf("workExperience[%d].employer is required", i)
		}
		if strings.TrimSpace(exp.FromDate) == "" {
			return fmt.Errorf("workExperience[%d].fromDate is required", i)
		}
		if len(exp.Achievements) > MaxAchievements {
			return fmt.Errorf("workExperience[%d].achievements must contain at most %d entries, got %d", i, MaxAchievements, len(exp.Achievements))
		}
	}

	if m.Education == nil {
		return errors.New("education is required")
	}
	if len(m.Education) > MaxEducation {
		return fmt.Errorf("education must contain at most %d entries, got %d", MaxEducation, len(m.Education))
	}
	for i, edu := range m.Education {
		if strings.TrimSpace(edu.Degree) == "" {
			return fmt.Errorf("education[%d].degree is required", i)
		}
		if strings.TrimSpace(edu.Institution) == "" {
			return fmt.Errorf("education[%d].institution is required", i)
		}
	}

	if m.Skills == nil {
		return errors.New("skills is required")
	}
	if len(m.Skills) > MaxSkills {
		return fmt.Errorf("skills must contain at most %d entries, got %d", MaxSkills, len(m.Skills))
	}

	if len(m.Languages) > MaxLanguages {
		return fmt.Errorf("languages must contain at most %d entries, got %d", MaxLanguages, len(m.Languages))
	}
	for i, lang := range m.Languages {
		if strings.TrimSpace(lang.Language) == "" {
			return fmt.Errorf("languages[%d].language is required", i)
		}
		if strings.TrimSpace(lang.Level) == "" {
			return fmt.Errorf("languages[%d].level is required", i)
		}
	}

	if len(m.Hobbies) > MaxHobbies {
		return fmt.Errorf("hobbies must contain at most %d entries, got %d", MaxHobbies, len(m.Hobbies))
	}

	return nil
}

// Sanitize trims whitespace from every string field, drops empty list
// strings, and defaults the newest work entry's open end date to "Present".
// It runs before Validate on both extraction output and review edits, so the
// cleaned values are what the review form shows.
func (m *StructuredCV) Sanitize() {
	if m == nil {
		return
	}

	m.PersonalInfo.Name = strings.TrimSpace(m.PersonalInfo.Name)
	m.PersonalInfo.JobTitle = strings.TrimSpace(m.PersonalInfo.JobTitle)
	m.PersonalInfo.Phone = strings.TrimSpace(m.PersonalInfo.Phone)
	m.PersonalInfo.Email = strings.TrimSpace(m.PersonalInfo.Email)
	m.PersonalInfo.City = strings.TrimSpace(m.PersonalInfo.City)
	m.PersonalInfo.PostalCode = strings.TrimSpace(m.PersonalInfo.PostalCode)
	m.PersonalInfo.Country = strings.TrimSpace(m.PersonalInfo.Country)
	m.PersonalInfo.LinkedIn = strings.TrimSpace(m.PersonalInfo.LinkedIn)

	for i := range m.SummaryParagraphs {
		m.SummaryParagraphs[i] = strings.TrimSpace(m.SummaryParagraphs[i])
	}

	for i := range m.WorkExperience {
		exp := &m.WorkExperience[i]
		exp.JobTitle = strings.TrimSpace(exp.JobTitle)
		exp.Employer = strings.TrimSpace(exp.Employer)
		exp.FromDate = strings.TrimSpace(exp.FromDate)
		exp.ToDate = strings.TrimSpace(exp.ToDate)
		exp.Responsibility = strings.TrimSpace(exp.Responsibility)
		exp.Achievements = trimStringList(exp.Achievements)
	}
	if len(m.WorkExperience) > 0 && m.WorkExperience[0].ToDate == "" {
		m.WorkExperience[0].ToDate = "Present"
	}

	for i := range m.Education {
		edu := &m.Education[i]
		edu.Degree = strings.TrimSpace(edu.Degree)
		edu.GraduationYear = strings.TrimSpace(edu.GraduationYear)
		edu.Institution = strings.TrimSpace(edu.Institution)
		edu.InstitutionLocation = strings.TrimSpace(edu.InstitutionLocation)
		edu.InstitutionCountry = strings.TrimSpace(edu.InstitutionCountry)
	}

	m.Skills = trimStringList(m.Skills)

	for i := range m.Languages {
		m.Languages[i].Language = strings.TrimSpace(m.Languages[i].Language)
		m.Languages[i].Level = strings.TrimSpace(m.Languages[i].Level)
	}

	m.Hobbies = trimStringList(m.Hobbies)
}

// trimStringList trims every entry and removes the ones left empty. A non-nil
// input stays non-nil so required-list checks still pass after sanitizing.
func trimStringList(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
