package expand

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/keyword_expansion.md
var keywordPromptRaw string

//go:embed prompts/location_expansion.md
var locationPromptRaw string

// Prompt templates are parsed once at package init and reused on every call.
var (
	keywordTemplate  = template.Must(template.New("keyword_expansion").Parse(keywordPromptRaw))
	locationTemplate = template.Must(template.New("location_expansion").Parse(locationPromptRaw))
)
