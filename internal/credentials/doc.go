// Package credentials keeps the API keys of every translation service,
// hands out keys that still have daily quota and deactivates keys that
// keep failing.
package credentials
