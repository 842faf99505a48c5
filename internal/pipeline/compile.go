package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"folio/internal/services"
)

// CompilationError reports a request that no recipe can compile.
type CompilationError struct {
	JobType string
	Reason  string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compile %s: %s", e.JobType, e.Reason)
}

// Unwrap lets errors.Is match services.ErrCompilation.
func (e *CompilationError) Unwrap() error {
	return services.ErrCompilation
}

func compileErr(jobType, format string, args ...any) error {
	return &CompilationError{JobType: jobType, Reason: fmt.Sprintf(format, args...)}
}

// Settings carries the deployment endpoints threaded into compiled chains.
type Settings struct {
	ArchiveLinkBase string
	OJSBaseURL      string
}

type recipeFunc func(settings Settings, req Request, user string) (*recipeOutput, error)

type recipeOutput struct {
	chains     []Chain
	parameters []json.RawMessage
	labels     []string
}

func (o *recipeOutput) add(chain Chain, target Target) error {
	encoded, err := encodeTarget(target)
	if err != nil {
		return err
	}
	o.chains = append(o.chains, chain)
	o.parameters = append(o.parameters, encoded)
	o.labels = append(o.labels, target.ID)
	return nil
}

// Recipe describes one job type.
type Recipe struct {
	JobType     string
	Label       string
	Description string
	build       recipeFunc
}

var recipes = map[string]Recipe{
	JobArchivalMaterial: {
		JobType:     JobArchivalMaterial,
		Label:       "Retrodigitized Archival Material",
		Description: "Import multiple folders that contain scans of archival material into iDAI.archives / AtoM.",
		build:       buildArchival,
	},
	JobJournals: {
		JobType:     JobJournals,
		Label:       "Retrodigitized Journals",
		Description: "Import multiple folders that contain scans of journal issues into iDAI.publications / OJS.",
		build:       buildJournals,
	},
	JobMonographs: {
		JobType:     JobMonographs,
		Label:       "Retrodigitized Monographs",
		Description: "Import multiple folders that contain scans of monographs into iDAI.publications / OMP.",
		build:       buildMonographs,
	},
	JobNLP: {
		JobType:     JobNLP,
		Label:       "Experimental NLP",
		Description: "Experimental task to demonstrate the integration of natural language processing.",
		build:       buildNLP,
	},
}

// Job types with a registered recipe.
const (
	JobArchivalMaterial = "ingest_archival_material"
	JobJournals         = "ingest_journals"
	JobMonographs       = "ingest_monographs"
	JobNLP              = "nlp"
)

// Lookup returns the recipe registered for jobType.
func Lookup(jobType string) (Recipe, bool) {
	recipe, ok := recipes[jobType]
	return recipe, ok
}

// JobTypes lists registered job types in sorted order.
func JobTypes() []string {
	types := make([]string, 0, len(recipes))
	for name := range recipes {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// Compiler turns requests into chains using the configured settings.
type Compiler struct {
	settings Settings
}

// NewCompiler constructs a Compiler.
func NewCompiler(settings Settings) *Compiler {
	settings.ArchiveLinkBase = strings.TrimRight(settings.ArchiveLinkBase, "/")
	if settings.ArchiveLinkBase == "" {
		settings.ArchiveLinkBase = DefaultArchiveLinkBase
	}
	settings.OJSBaseURL = strings.TrimRight(settings.OJSBaseURL, "/")
	return &Compiler{settings: settings}
}

// Compile builds the chains for jobType. It performs no I/O.
func (c *Compiler) Compile(jobType string, req Request, user string) (Compiled, error) {
	recipe, ok := Lookup(jobType)
	if !ok {
		return Compiled{}, compileErr(jobType, "unknown job type (expected one of %s)", strings.Join(JobTypes(), ", "))
	}
	if len(req.Targets) == 0 {
		return Compiled{}, compileErr(jobType, "request has no targets")
	}
	for idx, target := range req.Targets {
		if strings.TrimSpace(target.ID) == "" {
			return Compiled{}, compileErr(jobType, "target %d has no id", idx)
		}
	}
	if req.Options.OCR.DoOCR && strings.TrimSpace(req.Options.OCR.Lang) == "" {
		return Compiled{}, compileErr(jobType, "ocr requested without ocr_lang")
	}

	out, err := recipe.build(c.settings, req, user)
	if err != nil {
		return Compiled{}, err
	}
	return Compiled{
		JobType:         recipe.JobType,
		Label:           recipe.Label,
		Description:     recipe.Description,
		Chains:          out.chains,
		ChainParameters: out.parameters,
		ChainLabels:     out.labels,
	}, nil
}
