package llm

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/extract.tmpl
var extractPromptSrc string

//go:embed prompts/classify.tmpl
var classifyPromptSrc string

const systemPrompt = "You are a careful research assistant curating AI safety literature. " +
	"Answer with exactly one JSON object in a markdown code block and nothing else."

var (
	extractTmpl  = template.Must(template.New("extract").Parse(extractPromptSrc))
	classifyTmpl = template.Must(template.New("classify").Parse(classifyPromptSrc))
)

// promptData is the input of both prompt templates.
type promptData struct {
	URL      string
	Title    string
	Markdown string
}

func renderPrompt(t *template.Template, d promptData) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, d); err != nil {
		return "", fmt.Errorf("llm: render %s prompt: %w", t.Name(), err)
	}
	return sb.String(), nil
}
