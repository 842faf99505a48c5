package pipeline

import (
	"encoding/json"
	"strings"
)

type monographMetadata struct {
	PressCode string `json:"press_code"`
}

func buildMonographs(_ Settings, req Request, user string) (*recipeOutput, error) {
	out := &recipeOutput{}
	lang := req.Options.ocrLanguage()

	for _, target := range req.Targets {
		var meta monographMetadata
		if len(target.Metadata) == 0 {
			return nil, compileErr(JobMonographs, "target %q has no metadata", target.ID)
		}
		if err := json.Unmarshal(target.Metadata, &meta); err != nil {
			return nil, compileErr(JobMonographs, "target %q: decode metadata: %v", target.ID, err)
		}
		if strings.TrimSpace(meta.PressCode) == "" {
			return nil, compileErr(JobMonographs, "target %q: metadata.press_code is required", target.ID)
		}

		var b chainBuilder
		create := targetParams(target, user)
		create["initial_representation"] = "tif"
		create["job_type"] = JobMonographs
		b.link("create_object", create)

		b.link("list_files", map[string]any{
			"representation": "tif",
			"target":         "pdf",
			"task":           "convert.tif_to_pdf",
			"ocr_lang":       lang,
		})
		b.link("convert.merge_converted_pdf", nil)
		b.link("list_files", map[string]any{
			"representation": "tif",
			"target":         "jpg",
			"task":           "convert.tif_to_jpg",
		})
		b.link("list_files", map[string]any{
			"representation": "tif",
			"target":         "jpg_thumbnails",
			"task":           "convert.scale_image",
			"max_width":      50,
			"max_height":     50,
		})
		b.link("generate_xml", map[string]any{
			"template_file":   "omp_template.xml",
			"target_filename": "omp_import.xml",
		})
		b.link("generate_xml", map[string]any{
			"template_file":   "mets_template_monography.xml",
			"target_filename": "mets.xml",
			"schema_file":     "mets.xsd",
		})
		b.link("publish_to_repository", nil)
		b.link("publish_to_archive", nil)
		b.link("publish_to_omp", map[string]any{
			"omp_press_code": meta.PressCode,
		})
		b.link("cleanup_directories", nil)
		b.link("finish_chain", map[string]any{
			"success_msg":           "Monograph imported successfully",
			"chain_input_directory": target.Path,
			"user_name":             user,
		})

		if err := out.add(b.chain(), target); err != nil {
			return nil, err
		}
	}
	return out, nil
}
