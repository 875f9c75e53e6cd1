package sentinel

import "errors"

// Sentinel errors shared by the engine, stores and handlers. Layers wrap them
// with fmt.Errorf("...: %w", err) and the HTTP layer maps them with errors.Is.
//
//   - ErrNotFound: shipment, location, ledger index or user does not exist
//   - ErrInvalidTransition: out-of-order or repeated scan; no state was changed
//   - ErrValidation: malformed input rejected before any mutation
//   - ErrLedgerWriteFailed: ledger/anchor write failed; submission not committed
//   - ErrPersistFailed: ledger entry committed but a follow-up store write failed
//   - ErrBusy: the submission gate is held by another submission
//   - ErrConflict: record already exists or was modified concurrently
//   - ErrForbidden: caller role may not act on the resource
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation error")
	ErrLedgerWriteFailed = errors.New("ledger write failed")
	ErrPersistFailed     = errors.New("persist failed")
	ErrBusy              = errors.New("submission in progress")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
)
