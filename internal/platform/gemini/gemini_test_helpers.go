package gemini

import "text/template"

// promptTemplateForTest parses the production prompt template for use in
// tests without constructing a full generator.
func promptTemplateForTest() (*template.Template, error) {
	return template.New("reminder").Parse(reminderPrompt)
}
