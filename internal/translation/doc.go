// Package translation turns document chunks into translated text. It detects
// the kind of text, builds the matching prompt and calls a ranked list of
// language-model providers with retry, backoff and fallback.
package translation
