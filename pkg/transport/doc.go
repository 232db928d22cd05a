// Package transport holds the HTTP plumbing shared by the flag fetcher, the
// stream connection and event delivery: the pooled client, request headers
// and the error taxonomy used to decide between retrying and giving up.
//
// Classification rules:
//
//   - a 4xx status is fatal, except 400, 408 and 429;
//   - any other status is retriable;
//   - network failures (ErrTransport) and bad payloads (ErrSerialization)
//     are retriable;
//   - ErrConfiguration is fatal.
package transport
