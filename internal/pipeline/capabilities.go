package pipeline

import (
	"maps"
	"slices"
)

// Capability describes a worker task type for display on its job node.
type Capability struct {
	Label       string
	Description string
}

var capabilities = map[string]Capability{
	"create_object":                    {"Create object", "Create a new object in the working directory and copy the input files into its initial representation."},
	"create_complex_object":            {"Create complex object", "Create an object with nested parts and copy each part's files according to the copy instructions."},
	"list_files":                       {"Process files", "Run a conversion task for every file of a representation."},
	"convert.tif_to_jpg":               {"Convert TIF to JPG", "Convert TIF scans to JPG images."},
	"convert.tif_to_ptif":              {"Convert TIF to pyramid TIF", "Convert TIF scans to tiled pyramid TIFs for the image server."},
	"convert.tif_to_pdf":               {"Convert TIF to PDF", "Convert TIF scans to single page PDFs, optionally with OCR."},
	"convert.scale_image":              {"Scale images", "Create scaled down thumbnails."},
	"convert.pdf_to_txt":               {"Extract text", "Extract plain text from PDF pages."},
	"convert.merge_converted_pdf":      {"Merge PDF", "Merge single page PDFs into one document."},
	"convert.set_pdf_metadata":         {"Set PDF metadata", "Write title, authors and archival description into the merged PDF."},
	"generate_xml":                     {"Generate XML", "Render a metadata XML document from a template."},
	"publish_to_repository":            {"Publish to repository", "Move the object into the repository."},
	"publish_to_atom":                  {"Publish to AtoM", "Link the object in iDAI.archives / AtoM."},
	"publish_to_archive":               {"Publish to archive", "Copy the object into long term archival storage."},
	"publish_to_ojs":                   {"Publish to OJS", "Import the issue into iDAI.publications / OJS."},
	"publish_to_omp":                   {"Publish to OMP", "Import the monograph into iDAI.publications / OMP."},
	"cleanup_directories":              {"Clean up", "Remove the chain's working directory."},
	"finish_chain":                     {"Finish chain", "Record the result of the chain."},
	"nlp.annotate_pages":               {"Annotate pages", "Split extracted text into annotated pages."},
	"nlp_heideltime.time_annotate":     {"Annotate time expressions", "Tag temporal expressions."},
	"nlp.named_entities_annotate":      {"Annotate named entities", "Tag named entities."},
	"nlp.formats.dai_book_viewer_json": {"Export book viewer JSON", "Convert annotations into the book viewer format."},
	FinishBatchTask:                    {"Finish batch", "Finalize the batch once every chain has finished."},
}

// FinishBatchTask is the capability invoked once per batch after all chains.
const FinishBatchTask = "finish_batch"

// DescribeTask returns the display label and description of a task. Tasks
// that fan out over files are labeled after the conversion they run.
func DescribeTask(task Task) (string, string) {
	if task.Name == "list_files" {
		if inner, ok := task.Params["task"].(string); ok {
			if capability, ok := capabilities[inner]; ok {
				return capability.Label, capability.Description
			}
		}
	}
	return DescribeCapability(task.Name)
}

// DescribeCapability returns the label and description registered for name,
// falling back to the name itself.
func DescribeCapability(name string) (string, string) {
	if capability, ok := capabilities[name]; ok {
		return capability.Label, capability.Description
	}
	return name, ""
}

// Capabilities lists every task name that compiled chains may reference.
func Capabilities() []string {
	return slices.Sorted(maps.Keys(capabilities))
}
