package llm

import "strings"

// CleanJSONBlock removes markdown code block wrappers from JSON
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// CleanBulletLine flattens newlines and strips leading list markers from a
// single rewritten bullet returned by the model.
func CleanBulletLine(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.TrimSpace(text)
	text = strings.TrimLeft(text, "-• ")
	return strings.TrimSpace(text)
}
