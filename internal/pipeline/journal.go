package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

type journalArticle struct {
	Path string `json:"path"`
}

type journalIssue struct {
	OJSJournalCode string           `json:"ojs_journal_code"`
	Articles       []journalArticle `json:"articles"`
}

// ArticlePrefix is the representation namespace of the n-th article (0-based).
func ArticlePrefix(n int) string {
	return fmt.Sprintf("article-%d_", n)
}

// IssuePrefix is the representation namespace of the issue itself.
const IssuePrefix = "issue_"

func buildJournals(settings Settings, req Request, user string) (*recipeOutput, error) {
	out := &recipeOutput{}
	lang := req.Options.ocrLanguage()

	for _, target := range req.Targets {
		var issue journalIssue
		if len(target.Metadata) == 0 {
			return nil, compileErr(JobJournals, "target %q has no metadata", target.ID)
		}
		if err := json.Unmarshal(target.Metadata, &issue); err != nil {
			return nil, compileErr(JobJournals, "target %q: decode metadata: %v", target.ID, err)
		}
		if strings.TrimSpace(issue.OJSJournalCode) == "" {
			return nil, compileErr(JobJournals, "target %q: metadata.ojs_journal_code is required", target.ID)
		}

		prefixes := make([]string, 0, len(issue.Articles))
		copyInstructions := map[string]any{
			"tif": []string{IssuePrefix + "tif", "*.tif"},
		}
		for idx, article := range issue.Articles {
			if strings.TrimSpace(article.Path) == "" {
				return nil, compileErr(JobJournals, "target %q: article %d has no path", target.ID, idx)
			}
			prefix := ArticlePrefix(idx)
			prefixes = append(prefixes, prefix)
			copyInstructions[article.Path+"/tif"] = []string{prefix + "tif", "*.tif"}
		}

		var b chainBuilder
		create := targetParams(target, user)
		create["copy_instructions"] = copyInstructions
		b.link("create_complex_object", create)

		addImageProcessing(&b, IssuePrefix, lang)
		for _, prefix := range prefixes {
			addImageProcessing(&b, prefix, lang)
		}

		pdfDirs := make([]string, 0, len(prefixes)+1)
		pdfDirs = append(pdfDirs, IssuePrefix+"pdf")
		for _, prefix := range prefixes {
			pdfDirs = append(pdfDirs, prefix+"pdf")
		}
		b.link("generate_xml", map[string]any{
			"input_file_directories": map[string]any{"pdfs": pdfDirs},
			"template_file":          "ojs3_template_issue.xml",
			"target_filename":        "ojs_import.xml",
		})
		b.link("publish_to_ojs", map[string]any{
			"ojs_journal_code": issue.OJSJournalCode,
		})
		b.link("publish_to_archive", nil)
		b.link("cleanup_directories", nil)
		b.link("finish_chain", map[string]any{
			"success_msg":           "Journal imported successfully",
			"success_url":           fmt.Sprintf("%s/%s/manageIssues#futureIssues", settings.OJSBaseURL, issue.OJSJournalCode),
			"success_url_label":     "View in OJS",
			"chain_input_directory": target.Path,
			"user_name":             user,
		})

		if err := out.add(b.chain(), target); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// addImageProcessing appends the four image steps for one representation
// namespace: OCR'd PDF pages, merged PDF, display JPGs, thumbnails.
func addImageProcessing(b *chainBuilder, prefix string, lang any) {
	b.link("list_files", map[string]any{
		"representation": prefix + "tif",
		"target":         prefix + "pdf",
		"task":           "convert.tif_to_pdf",
		"ocr_lang":       lang,
	})
	b.link("convert.merge_converted_pdf", map[string]any{
		"input_directory": prefix + "pdf",
	})
	b.link("list_files", map[string]any{
		"representation": prefix + "tif",
		"target":         prefix + "jpg",
		"task":           "convert.tif_to_jpg",
	})
	b.link("list_files", map[string]any{
		"representation": prefix + "tif",
		"target":         prefix + "jpg_thumbnails",
		"task":           "convert.scale_image",
		"max_width":      50,
		"max_height":     50,
	})
}
