package pipeline

import (
	"encoding/json"
)

func buildArchival(settings Settings, req Request, user string) (*recipeOutput, error) {
	out := &recipeOutput{}
	lang := req.Options.ocrLanguage()

	for _, target := range req.Targets {
		var record ArchivalMetadata
		if len(target.Metadata) > 0 {
			if err := json.Unmarshal(target.Metadata, &record); err != nil {
				return nil, compileErr(JobArchivalMaterial, "target %q: decode metadata: %v", target.ID, err)
			}
		}

		var b chainBuilder
		create := targetParams(target, user)
		create["initial_representation"] = "tif"
		create["job_type"] = JobArchivalMaterial
		b.link("create_object", create)

		b.link("list_files", map[string]any{
			"representation": "tif",
			"target":         "jpg",
			"task":           "convert.tif_to_jpg",
		})
		b.link("list_files", map[string]any{
			"representation": "jpg",
			"target":         "jpg_thumbnails",
			"task":           "convert.tif_to_jpg",
			"max_width":      50,
			"max_height":     50,
		})
		b.link("list_files", map[string]any{
			"representation": "tif",
			"target":         "ptif",
			"task":           "convert.tif_to_ptif",
		})
		b.link("list_files", map[string]any{
			"representation": "tif",
			"target":         "pdf",
			"task":           "convert.tif_to_pdf",
			"ocr_lang":       lang,
		})
		b.link("convert.merge_converted_pdf", nil)
		b.link("convert.set_pdf_metadata", map[string]any{
			"metadata": PDFMetadataWithBase(record, settings.ArchiveLinkBase),
		})
		b.link("generate_xml", map[string]any{
			"template_file":   "mets_template_archive.xml",
			"target_filename": "mets.xml",
			"schema_file":     "mets.xsd",
		})
		b.link("publish_to_repository", nil)
		b.link("publish_to_atom", nil)
		b.link("publish_to_archive", nil)
		b.link("cleanup_directories", nil)
		b.link("finish_chain", map[string]any{
			"success_msg":           "Material imported successfully",
			"chain_input_directory": target.Path,
			"user_name":             user,
		})

		if err := out.add(b.chain(), target); err != nil {
			return nil, err
		}
	}
	return out, nil
}
