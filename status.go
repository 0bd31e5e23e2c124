package gorollup

import (
	"strings"
)

// Status is the lifecycle state of a rollup job run.
//
// The ordinal of each value is written by the binary codec, so new values must be appended after Retry.
type Status int

const (
	Init Status = iota
	Started
	Stopped
	Finished
	Failed
	Retry
)

var statusTokens = [...]string{
	Init:     "init",
	Started:  "started",
	Stopped:  "stopped",
	Finished: "finished",
	Failed:   "failed",
	Retry:    "retry",
}

// Statuses returns every status in declared order
func Statuses() []Status {
	return []Status{Init, Started, Stopped, Finished, Failed, Retry}
}

// String returns the lowercase token used by the document codec
func (s Status) String() string {
	if s.valid() {
		return statusTokens[s]
	}
	return "unknown"
}

// Ordinal returns the position of s used by the binary codec
func (s Status) Ordinal() int {
	return int(s)
}

// IsTerminal reports whether no further page will be processed for the run
func (s Status) IsTerminal() bool {
	return s == Finished || s == Failed
}

func (s Status) valid() bool {
	return s >= Init && int(s) < len(statusTokens)
}

// ParseStatus matches token case-insensitively against the status tokens
func ParseStatus(token string) (Status, error) {
	for i, t := range statusTokens {
		if strings.EqualFold(t, token) {
			return Status(i), nil
		}
	}
	return Init, NewRollupError(ErrCodeUnknownStatus, "unrecognized status token:%q", token)
}

// StatusFromOrdinal is the inverse of Status.Ordinal
func StatusFromOrdinal(ordinal int) (Status, error) {
	s := Status(ordinal)
	if !s.valid() {
		return Init, NewRollupError(ErrCodeUnknownStatus, "unrecognized status ordinal:%d", ordinal)
	}
	return s, nil
}
