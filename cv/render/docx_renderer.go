// Package render fills DOCX templates with structured CV data. A
// template is a regular DOCX whose word/document.xml carries the
// token vocabulary from cv/contract; rendering rewrites that single
// zip entry and leaves every other part of the archive untouched.
package render

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"swisscv-backend/cv/contract"
	"swisscv-backend/cv/model"
)

// TemplateFileName maps a conversion language to its template file.
// Anything other than german falls back to the English template.
func TemplateFileName(language string) string {
	if strings.EqualFold(strings.TrimSpace(language), "german") {
		return "cv_swiss_de.docx"
	}
	return "cv_swiss_en.docx"
}

// TemplatePath joins the configured template directory with the
// template file for a language.
func TemplatePath(dir, language string) string {
	return filepath.Join(dir, TemplateFileName(language))
}

// OutputFileName builds the download name for a rendered CV:
// CV_<Name>.docx with spaces replaced by underscores.
func OutputFileName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		trimmed = "candidate"
	}
	return "CV_" + strings.ReplaceAll(trimmed, " ", "_") + ".docx"
}

// RenderCV renders a structured CV into a DOCX byte slice using the
// template at templatePath. The CV must satisfy the template contract;
// a token the CV cannot fill or a field the template cannot place
// surfaces as contract.ErrTemplateMismatch.
func RenderCV(templatePath string, cv model.StructuredCV) ([]byte, error) {
	if err := contract.Enforce(cv); err != nil {
		return nil, err
	}
	return renderFromTemplate(templatePath, cv)
}

func renderFromTemplate(templatePath string, cv model.StructuredCV) ([]byte, error) {
	templateBytes, err := os.ReadFile(filepath.Clean(templatePath))
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(templateBytes), int64(len(templateBytes)))
	if err != nil {
		return nil, fmt.Errorf("open template archive: %w", err)
	}

	var output bytes.Buffer
	writer := zip.NewWriter(&output)
	defer writer.Close()

	for _, file := range reader.File {
		if normalizeZipName(file.Name) == "word/document.xml" {
			updated, err := renderDocumentXML(file, cv)
			if err != nil {
				return nil, err
			}
			if err := writeZipFile(writer, file, updated); err != nil {
				return nil, err
			}
			continue
		}

		content, err := readZipFile(file)
		if err != nil {
			return nil, err
		}
		if err := writeZipFile(writer, file, content); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	return output.Bytes(), nil
}

func renderDocumentXML(file *zip.File, cv model.StructuredCV) ([]byte, error) {
	content, err := readZipFile(file)
	if err != nil {
		return nil, err
	}

	xmlText, err := renderDocumentXMLText(string(content), cv)
	if err != nil {
		return nil, err
	}

	return []byte(xmlText), nil
}

func renderDocumentXMLText(xmlText string, cv model.StructuredCV) (string, error) {
	rootStart, rootEnd, err := extractRootTags(xmlText)
	if err != nil {
		return "", err
	}
	root, header, err := parseXMLDocument(xmlText)
	if err != nil {
		return "", err
	}

	body := findBodyNode(root)
	if err := expandWorkExperience(body, cv.WorkExperience); err != nil {
		return "", err
	}
	if err := expandEducation(body, cv.Education); err != nil {
		return "", err
	}
	if err := expandItemSection(body, contract.SectionSkills, cv.Skills, contract.TokenSkillItem); err != nil {
		return "", err
	}
	if err := expandLanguages(body, cv.Languages); err != nil {
		return "", err
	}
	if err := expandItemSection(body, contract.SectionHobbies, cv.Hobbies, contract.TokenHobbyItem); err != nil {
		return "", err
	}

	replaceTokensInNode(root, contract.TokenMap(cv))
	normalizeParagraphNesting(root)

	xmlText, err = encodeXMLDocument(header, root, rootStart, rootEnd)
	if err != nil {
		return "", err
	}

	if err := validateDocumentXMLStrict(xmlText); err != nil {
		return "", err
	}
	if err := validateDocumentXMLStructure(xmlText); err != nil {
		return "", err
	}

	if token := findRemainingToken(xmlText); token != "" {
		return "", fmt.Errorf("%w: unresolved token %s in document.xml", contract.ErrTemplateMismatch, token)
	}

	return xmlText, nil
}

// expandWorkExperience repeats the WORK_EXPERIENCE block per entry and
// expands the nested ACHIEVEMENTS block inside each repetition before
// filling the entry tokens.
func expandWorkExperience(container *xmlNode, items []model.WorkExperience) error {
	return expandSectionWithRenderer(container, contract.SectionWorkExperience, len(items), func(template []*xmlNode, idx int) ([]*xmlNode, error) {
		item := items[idx]
		nodes := cloneNodes(template)
		tmp := &xmlNode{Name: xml.Name{Local: "root"}, Children: nodes}

		if err := expandItemSection(tmp, contract.SectionAchievements, item.Achievements, contract.TokenAchievementItem); err != nil {
			return nil, err
		}
		expandAchievementsFallback(tmp, item.Achievements)

		replaceTokensInNode(tmp, contract.WorkEntryTokens(item))
		return tmp.Children, nil
	})
}

func expandEducation(container *xmlNode, items []model.Education) error {
	return expandSectionWithRenderer(container, contract.SectionEducation, len(items), func(template []*xmlNode, idx int) ([]*xmlNode, error) {
		nodes := cloneNodes(template)
		tmp := &xmlNode{Name: xml.Name{Local: "root"}, Children: nodes}
		replaceTokensInNode(tmp, contract.EducationEntryTokens(items[idx]))
		return tmp.Children, nil
	})
}

func expandLanguages(container *xmlNode, items []model.LanguageSkill) error {
	return expandSectionWithRenderer(container, contract.SectionLanguages, len(items), func(template []*xmlNode, idx int) ([]*xmlNode, error) {
		nodes := cloneNodes(template)
		tmp := &xmlNode{Name: xml.Name{Local: "root"}, Children: nodes}
		replaceTokensInNode(tmp, contract.LanguageEntryTokens(items[idx]))
		return tmp.Children, nil
	})
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return content, nil
}

func writeZipFile(writer *zip.Writer, source *zip.File, content []byte) error {
	header := source.FileHeader
	header.Name = normalizeZipName(source.Name)

	dst, err := writer.CreateHeader(&header)
	if err != nil {
		return err
	}
	if _, err := dst.Write(content); err != nil {
		return err
	}
	return nil
}

func normalizeZipName(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

var tokenPattern = regexp.MustCompile(`{{[^}]+}}`)

func findRemainingToken(xmlText string) string {
	if match := tokenPattern.FindString(xmlText); match != "" {
		return match
	}
	if idx := strings.Index(xmlText, "{{"); idx != -1 {
		end := idx + 40
		if end > len(xmlText) {
			end = len(xmlText)
		}
		return xmlText[idx:end]
	}
	if idx := strings.Index(xmlText, "}}"); idx != -1 {
		start := idx - 40
		if start < 0 {
			start = 0
		}
		return xmlText[start : idx+2]
	}
	return ""
}

// validateDocumentXMLStrict re-parses the rendered XML and checks that
// every namespace the document uses is declared on the root element.
// Word refuses documents that lose the wordprocessingml declarations.
func validateDocumentXMLStrict(xmlText string) error {
	rootStart, _, err := extractRootTags(xmlText)
	if err != nil {
		return err
	}
	declared := namespacesFromRootStart(rootStart)
	decoder := xml.NewDecoder(strings.NewReader(xmlText))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("document.xml parse failed: %w\n%s", err, firstLines(xmlText, 5))
		}
		switch t := token.(type) {
		case xml.StartElement:
			if err := checkDeclaredNamespace(t.Name.Space, t.Name.Local, declared, "element", xmlText); err != nil {
				return err
			}
			for _, attr := range t.Attr {
				if err := checkDeclaredNamespace(attr.Name.Space, attr.Name.Local, declared, "attribute", xmlText); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// validateDocumentXMLStructure rejects shapes Word cannot open: nested
// <w:p> elements and run properties appearing after run text.
func validateDocumentXMLStructure(xmlText string) error {
	decoder := xml.NewDecoder(strings.NewReader(xmlText))
	var stack []xml.Name
	type runState struct {
		seenText bool
	}
	var runs []runState

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("document.xml parse failed: %w\n%s", err, firstLines(xmlText, 5))
		}
		switch t := token.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name)
			if isWmlElement(t.Name, "p") {
				for i := len(stack) - 2; i >= 0; i-- {
					if isWmlElement(stack[i], "p") {
						return fmt.Errorf("document.xml has nested <w:p>\n%s", firstLines(xmlText, 5))
					}
				}
			}
			if isWmlElement(t.Name, "r") {
				runs = append(runs, runState{})
			}
			if isWmlElement(t.Name, "t") && len(runs) > 0 {
				runs[len(runs)-1].seenText = true
			}
			if isWmlElement(t.Name, "rPr") && len(runs) > 0 && runs[len(runs)-1].seenText {
				return fmt.Errorf("document.xml has <w:rPr> after <w:t> in a run\n%s", firstLines(xmlText, 5))
			}
		case xml.EndElement:
			if isWmlElement(t.Name, "r") && len(runs) > 0 {
				runs = runs[:len(runs)-1]
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return nil
}

func isWmlElement(name xml.Name, local string) bool {
	return name.Local == local && name.Space == wmlNamespace
}

func checkDeclaredNamespace(space, local string, declared map[string]string, kind string, xmlText string) error {
	if space == "" {
		return nil
	}
	prefix, ok := knownNamespacePrefixes[space]
	if !ok {
		return nil
	}
	if uri, ok := declared[prefix]; ok && uri == space {
		return nil
	}
	name := local
	if prefix != "" {
		name = prefix + ":" + local
	}
	return fmt.Errorf("document.xml missing root namespace for %s %s\n%s", kind, name, firstLines(xmlText, 5))
}

var knownNamespacePrefixes = map[string]string{
	wmlNamespace: "w",
	relNamespace: "r",
	"http://schemas.openxmlformats.org/drawingml/2006/main":                 "a",
	"http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing": "wp",
	"http://schemas.openxmlformats.org/drawingml/2006/picture":              "pic",
	"http://schemas.openxmlformats.org/markup-compatibility/2006":           "mc",
	"http://schemas.microsoft.com/office/word/2010/wordml":                  "w14",
	"http://schemas.microsoft.com/office/word/2012/wordml":                  "w15",
}

func firstLines(text string, count int) string {
	if count <= 0 {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > count {
		lines = lines[:count]
	}
	return strings.Join(lines, "\n")
}
