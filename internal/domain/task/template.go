package task

import (
	"fmt"
	"strings"
)

// Template is a static, immutable prompt template entry in TemplateRegistry.
type Template struct {
	ID          string
	Label       string
	Description string
	Body        string // contains exactly one {{input}} placeholder
}

const placeholder = "{{input}}"

// defaultTemplates mirrors original_source's task_templates.py catalog: a
// small, fixed set of named prompt shapes seeded at process start.
var defaultTemplates = []Template{
	{
		ID:          "summarize",
		Label:       "Summarize",
		Description: "Condense the given text into a short summary.",
		Body:        "Summarize the following text in 3-5 sentences:\n\n" + placeholder,
	},
	{
		ID:          "translate",
		Label:       "Translate",
		Description: "Translate the given text into English.",
		Body:        "Translate the following text into English:\n\n" + placeholder,
	},
	{
		ID:          "classify",
		Label:       "Classify",
		Description: "Classify the given text into a single label.",
		Body:        "Classify the following text with a single label:\n\n" + placeholder,
	},
	{
		ID:          "extract-action-items",
		Label:       "Extract action items",
		Description: "Extract a bulleted list of action items from the given text.",
		Body:        "Extract a bulleted list of action items from the following text:\n\n" + placeholder,
	},
}

// TemplateRegistry is the static, immutable catalog of prompt templates.
type TemplateRegistry struct {
	byID map[string]Template
	all  []Template
}

// NewTemplateRegistry builds the catalog once at startup. There is no
// mutation API: templates are fixed for the lifetime of the process.
func NewTemplateRegistry() *TemplateRegistry {
	r := &TemplateRegistry{byID: make(map[string]Template, len(defaultTemplates))}
	for _, t := range defaultTemplates {
		r.byID[t.ID] = t
		r.all = append(r.all, t)
	}
	return r
}

// List returns every registered template in catalog order.
func (r *TemplateRegistry) List() []Template {
	out := make([]Template, len(r.all))
	copy(out, r.all)
	return out
}

// Get looks up a template by id.
func (r *TemplateRegistry) Get(id string) (Template, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// Render substitutes the trimmed input text into the template body exactly
// once and derives a default task name of "<label> Task", matching
// original_source's task_service.py create_task_from_template (which falls
// back to f"{template.name} Task" when the caller supplies no explicit name;
// it does not derive the name from the input text).
func (r *TemplateRegistry) Render(id, inputText string) (prompt string, defaultName string, err error) {
	t, ok := r.byID[id]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", id)
	}
	trimmed := strings.TrimSpace(inputText)
	if trimmed == "" {
		return "", "", fmt.Errorf("input text must not be empty")
	}
	prompt = strings.Replace(t.Body, placeholder, trimmed, 1)
	defaultName = fmt.Sprintf("%s Task", t.Label)
	return prompt, defaultName, nil
}
