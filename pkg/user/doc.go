// Package user defines the minimal user object flags are fetched for,
// together with its canonical JSON, URL-safe base64 and hash forms.
package user
