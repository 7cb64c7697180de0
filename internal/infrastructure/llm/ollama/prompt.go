package ollama

import "fmt"

func buildJSONPrompt(prompt, schemaHint string) string {
	if schemaHint == "" {
		return prompt
	}
	return fmt.Sprintf(`%s

Respond with a single JSON object shaped like:
%s
No markdown, no extra text.`, prompt, schemaHint)
}
