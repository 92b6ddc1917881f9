// Package pages provides token-bounded pagination and session-scoped
// caching for large fetched documents.
//
// Information Hiding:
// - Token estimation formula centralized
// - Continuation token encoding hidden behind Encode/Decode
// - Cache expiry and eviction policy internalized
package pages

// EstimateTokens gives a rough token count for text (1 token ~= 4 chars).
// Every size decision in this package derives from this formula, so token
// counts are reproducible from character counts alone.
func EstimateTokens(text string) int {
	return len(text) / 4
}
