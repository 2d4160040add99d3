package aigateway

// fallbackModels is the explicit primary-to-fallback model translation
// table. Model availability and naming are provider facts, not computable
// logic, so the table is finite and maintained by hand.
var fallbackModels = map[string]string{
	"claude-opus-4-1-20250805":   "gpt-4o",
	"claude-sonnet-4-5-20250929": "gpt-4o",
	"claude-sonnet-4-20250514":   "gpt-4o",
	"claude-3-7-sonnet-20250219": "gpt-4o",
	"claude-3-5-haiku-20241022":  "gpt-4o-mini",
	"claude-haiku-4-5-20251001":  "gpt-4o-mini",
}

// MapModel translates a primary model name to its fallback equivalent,
// defaulting to the fallback provider's standard model for unknown names.
func MapModel(primaryModel string) string {
	if m, ok := fallbackModels[primaryModel]; ok {
		return m
	}
	return DefaultOpenAIModel
}
