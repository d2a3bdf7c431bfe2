// Package memory provides an in-process implementation of
// [github.com/slackmgr/comlink.Queue] with the same visibility-timeout
// semantics as SQS: a received message is hidden for its visibility timeout,
// its receipt handle is valid only during that window, and it becomes
// receivable again, with a new receipt handle, if it is not removed in time.
//
// It is intended for tests and local development. State is lost when the
// process exits.
package memory
