// Package events collects analytics events and delivers them to
// {events}/mobile/events/ in schema version 3.
//
// Evaluations are counted by a Summarizer; individual identify, custom,
// feature and debug events go to a bounded queue. When the queue is full
// the newest event is dropped and counted. A single worker goroutine
// drains the queue on a fixed interval and whenever Flush is called. Each
// drain takes the whole queue plus the pending summary and sends it as one
// POST. Failed batches are logged and discarded.
//
// The Date header of successful responses is kept as the server clock, so
// debug windows can be checked against the backend's notion of time.
package events
