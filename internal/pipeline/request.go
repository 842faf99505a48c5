package pipeline

import (
	"encoding/json"
	"fmt"
)

// Target is one item of a request. Each target becomes one chain (NLP
// requests produce one chain per target and extension).
type Target struct {
	ID       string          `json:"id"`
	Path     string          `json:"path"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// OCROptions controls text recognition during PDF conversion.
type OCROptions struct {
	DoOCR bool   `json:"do_ocr"`
	Lang  string `json:"ocr_lang,omitempty"`
}

// Options holds request-wide settings shared by every target.
type Options struct {
	OCR                  OCROptions `json:"ocr_options"`
	Extensions           []string   `json:"extensions,omitempty"`
	Lang                 string     `json:"lang,omitempty"`
	DocumentCreationTime string     `json:"document_creation_time,omitempty"`
}

// Request is the body submitted for a batch.
type Request struct {
	Targets []Target `json:"targets"`
	Options Options  `json:"options"`
}

// Task is one step of a chain: a capability name plus keyword parameters.
type Task struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// Chain is an ordered sequence of tasks sharing one work path.
type Chain []Task

// Compiled is the output of a recipe.
type Compiled struct {
	JobType     string
	Label       string
	Description string
	Chains      []Chain
	// ChainParameters holds, per chain, the input recorded on its chain node.
	ChainParameters []json.RawMessage
	// ChainLabels holds, per chain, the target identifier used as its label.
	ChainLabels []string
}

// ocrLanguage returns nil unless OCR was requested.
func (o Options) ocrLanguage() any {
	if !o.OCR.DoOCR {
		return nil
	}
	return o.OCR.Lang
}

// targetParams flattens a target into task parameters the way create_object
// expects them.
func targetParams(target Target, user string) map[string]any {
	params := map[string]any{
		"id":   target.ID,
		"path": target.Path,
		"user": user,
	}
	if len(target.Metadata) > 0 {
		params["metadata"] = target.Metadata
	}
	return params
}

func encodeTarget(target Target) (json.RawMessage, error) {
	data, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("encode target %s: %w", target.ID, err)
	}
	return data, nil
}

type chainBuilder struct {
	tasks Chain
}

func (b *chainBuilder) link(name string, params map[string]any) {
	if params == nil {
		params = map[string]any{}
	}
	b.tasks = append(b.tasks, Task{Name: name, Params: params})
}

func (b *chainBuilder) chain() Chain {
	return b.tasks
}
