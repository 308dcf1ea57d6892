package main

// Render a sample structured CV through a template file, for template
// authoring:
//   go run ./cmd/renderdemo -template assets/templates/cv_swiss_en.docx

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"swisscv-backend/cv/model"
	"swisscv-backend/cv/render"
)

func main() {
	templatePath := flag.String("template", "assets/templates/cv_swiss_en.docx", "path to the DOCX template")
	outDir := flag.String("out", "./out", "output directory for the generated DOCX")
	flag.Parse()

	cv := sampleCV()

	docxBytes, err := render.RenderCV(*templatePath, cv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render failed: %v\n", err)
		os.Exit(1)
	}

	outPath := filepath.Join(*outDir, render.OutputFileName(cv.PersonalInfo.Name))
	if err := writeOutputs(outPath, cv, docxBytes); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}

	if err := validateRenderedDocx(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "render validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OK: wrote %s\n", outPath)
}

func writeOutputs(outPath string, cv model.StructuredCV, docxBytes []byte) error {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if err := os.WriteFile(outPath, docxBytes, 0o644); err != nil {
		return err
	}

	modelPath := filepath.Join(dir, "sample_cv_model.json")
	payload, err := json.MarshalIndent(cv, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(modelPath, payload, 0o644)
}

func sampleCV() model.StructuredCV {
	return model.StructuredCV{
		PersonalInfo: model.PersonalInfo{
			Name:       "Jane Doe",
			JobTitle:   "Senior Software Engineer",
			Phone:      "+41 79 555 01 02",
			Email:      "jane.doe@example.com",
			City:       "Zürich",
			PostalCode: "8004",
			Country:    "Switzerland",
			LinkedIn:   "https://www.linkedin.com/in/janedoe",
		},
		SummaryParagraphs: []string{
			"Senior software engineer with nine years of experience delivering reliable backend platforms for logistics and finance clients.",
			"Focused on pragmatic architecture and measurable delivery.",
		},
		WorkExperience: []model.WorkExperience{
			{
				JobTitle:       "Senior Software Engineer",
				Employer:       "Acme Logistics",
				FromDate:       "04/2021",
				ToDate:         "Present",
				Responsibility: "Leads the routing platform team of five engineers.",
				Achievements: []string{
					"Reduced shipment latency by 18% through a redesigned routing service.",
					"Cut incident triage time by 35% after introducing distributed tracing.",
				},
			},
			{
				JobTitle:       "Software Engineer",
				Employer:       "Blue Harbor Systems",
				FromDate:       "01/2018",
				ToDate:         "03/2021",
				Responsibility: "Built event-driven ingestion pipelines for compliance data feeds.",
			},
		},
		Education: []model.Education{
			{
				Degree:              "MSc Computer Science",
				GraduationYear:      "2017",
				Institution:         "ETH Zürich",
				InstitutionLocation: "Zürich",
				InstitutionCountry:  "Switzerland",
			},
		},
		Skills: []string{"Go", "PostgreSQL", "AWS", "Kubernetes"},
		Languages: []model.LanguageSkill{
			{Language: "German", Level: "Native"},
			{Language: "English", Level: "C1"},
		},
		Hobbies: []string{"Alpine hiking", "Chess"},
	}
}

func validateRenderedDocx(path string) error {
	docxBytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	reader, err := zip.NewReader(bytes.NewReader(docxBytes), int64(len(docxBytes)))
	if err != nil {
		return err
	}

	for _, file := range reader.File {
		if normalizeZipName(file.Name) != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return err
		}
		defer rc.Close()

		content, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		text := string(content)
		pos := tokenIndex(text)
		if pos != -1 {
			snippet := snippetAround(text, pos, 200)
			return fmt.Errorf("unresolved template tokens near: %s", snippet)
		}
		return nil
	}

	return fmt.Errorf("document.xml not found in docx")
}

func normalizeZipName(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

func tokenIndex(text string) int {
	if idx := strings.Index(text, "{{"); idx != -1 {
		return idx
	}
	if idx := strings.Index(text, "}}"); idx != -1 {
		return idx
	}
	return -1
}

func snippetAround(text string, pos, maxLen int) string {
	if pos < 0 {
		return ""
	}
	start := pos - maxLen/2
	if start < 0 {
		start = 0
	}
	end := start + maxLen
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}
