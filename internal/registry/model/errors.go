package model

import "errors"

// ErrValidation is returned by service methods when the caller supplies
// invalid input (bad status value, out-of-range load, oversized message,
// malformed card). Handlers map it to HTTP 400.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }

// ErrUnauthorized is the single rejection surfaced for every heartbeat
// authentication failure. Unknown id and credential mismatch are folded
// into this one error so callers cannot enumerate registered ids; the
// distinction exists only in server-side debug logs.
var ErrUnauthorized = errors.New("invalid agent id or heartbeat token")
