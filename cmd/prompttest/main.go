package main

// Run the two pipeline stages against the live provider, for prompt
// iteration:
//   go run ./cmd/prompttest -cv testdata/cv.txt -notes "led a team of 5"

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"swisscv-backend/internal/bootstrap"
	"swisscv-backend/internal/conversions"
	"swisscv-backend/internal/documents"
	"swisscv-backend/internal/extract"
	"swisscv-backend/internal/llm"
	"swisscv-backend/internal/shared/config"
)

func main() {
	cfg := config.Load()

	cvPath := flag.String("cv", "", "Path to the existing CV (txt, pdf, or docx)")
	jdPath := flag.String("jd", "", "Path to a job description file (optional)")
	notes := flag.String("notes", "", "Free-text user notes (optional)")
	language := flag.String("language", "english", "Output language (english or german)")
	tone := flag.String("tone", "general", "Rewrite tone")
	outPath := flag.String("out", "", "Path to write the structured CV JSON (optional)")
	flag.Parse()

	if strings.TrimSpace(*cvPath) == "" {
		exitErr("cv path is required")
	}
	if err := cfg.Validate(); err != nil {
		exitErr(err.Error())
	}

	lang, err := llm.ParseLanguage(*language)
	if err != nil {
		exitErr(err.Error())
	}
	selectedTone, err := llm.ParseTone(*tone)
	if err != nil {
		exitErr(err.Error())
	}

	ctx := context.Background()

	blocks := []conversions.Block{
		{Kind: documents.KindCV, Text: readDocumentText(ctx, *cvPath)},
	}
	if strings.TrimSpace(*jdPath) != "" {
		blocks = append(blocks, conversions.Block{
			Kind: documents.KindJobDescription,
			Text: readDocumentText(ctx, *jdPath),
		})
	}

	consolidated, err := conversions.Consolidate(blocks, *notes)
	if err != nil {
		exitErr(fmt.Sprintf("consolidate: %v", err))
	}

	client, err := bootstrap.BuildPromptClient(ctx, cfg)
	if err != nil {
		exitErr(err.Error())
	}

	fmt.Fprintln(os.Stderr, "== rewrite stage ==")
	rewritten, err := client.Complete(ctx, llm.BuildRewritePrompt(lang, selectedTone, consolidated))
	if err != nil {
		exitErr(fmt.Sprintf("rewrite: %v", err))
	}
	fmt.Println(rewritten)

	for _, warning := range conversions.FabricationWarnings(consolidated, rewritten) {
		fmt.Fprintf(os.Stderr, "fabrication warning: %s\n", warning)
	}

	fmt.Fprintln(os.Stderr, "== extraction stage ==")
	cv, raw, err := conversions.ExtractStructuredWithRetry(ctx, client, lang, rewritten)
	if err != nil {
		fmt.Fprintf(os.Stderr, "raw response:\n%s\n", raw)
		exitErr(fmt.Sprintf("extraction: %v", err))
	}

	pretty, err := json.MarshalIndent(cv, "", "  ")
	if err != nil {
		exitErr(fmt.Sprintf("format json: %v", err))
	}
	if *outPath != "" {
		if err := os.WriteFile(*outPath, pretty, 0o644); err != nil {
			exitErr(fmt.Sprintf("write output: %v", err))
		}
	}
	fmt.Println(string(pretty))
}

func readDocumentText(ctx context.Context, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		exitErr(fmt.Sprintf("read %s: %v", path, err))
	}

	mimeType := mimeFromExt(path)
	text, err := extract.ExtractTextFromBytes(ctx, data, mimeType, filepath.Base(path))
	if err != nil {
		exitErr(fmt.Sprintf("extract %s: %v", path, err))
	}
	return text
}

func mimeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "text/plain"
	}
}

func exitErr(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
