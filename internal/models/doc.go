// Package models lists the models an OpenAI-compatible translation service
// offers for a key, grouped so users can pick a value for
// providers.<service>.model.
package models
