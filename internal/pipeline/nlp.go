package pipeline

import (
	"maps"
	"slices"
)

var nlpExtensions = map[string]bool{"txt": true, "pdf": true}

func buildNLP(_ Settings, req Request, user string) (*recipeOutput, error) {
	if len(req.Options.Extensions) == 0 {
		return nil, compileErr(JobNLP, "options.extensions is empty")
	}
	for _, ext := range req.Options.Extensions {
		if !nlpExtensions[ext] {
			return nil, compileErr(JobNLP, "extension not supported: %s", ext)
		}
	}

	out := &recipeOutput{}
	for _, target := range req.Targets {
		for _, ext := range req.Options.Extensions {
			var b chainBuilder
			create := targetParams(target, user)
			create["initial_representation"] = ext
			b.link("create_object", create)

			// only pdf inputs need the text extraction and page annotation
			from, to := "txt", "xmi.time"
			if ext == "pdf" {
				b.link("list_files", map[string]any{
					"representation": "pdf",
					"target":         "txt",
					"task":           "convert.pdf_to_txt",
				})
				b.link("nlp.annotate_pages", map[string]any{
					"representation": "txt",
					"target":         "xmi.pages",
				})
				from, to = "xmi.pages", "xmi.pages.time"
			}

			b.link("list_files", map[string]any{
				"representation":         from,
				"target":                 to,
				"task":                   "nlp_heideltime.time_annotate",
				"lang":                   req.Options.Lang,
				"document_creation_time": req.Options.DocumentCreationTime,
			})
			entities := to + ".entities"
			b.link("list_files", map[string]any{
				"representation": to,
				"target":         entities,
				"task":           "nlp.named_entities_annotate",
			})

			if ext == "pdf" {
				b.link("list_files", map[string]any{
					"representation": entities,
					"target":         "json",
					"task":           "nlp.formats.dai_book_viewer_json",
				})
			}

			if err := out.add(b.chain(), target); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// SupportedNLPExtensions lists the extensions the NLP recipe accepts.
func SupportedNLPExtensions() []string {
	return slices.Sorted(maps.Keys(nlpExtensions))
}
