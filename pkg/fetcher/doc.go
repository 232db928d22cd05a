// Package fetcher performs the polling request that returns every evaluated
// flag for a user, either as GET {base}/msdk/eval/users/{base64 user} or as
// REPORT {base}/msdk/eval/user with the user as the body.
//
// Errors carry the transport classification so callers can decide whether
// to retry.
package fetcher
