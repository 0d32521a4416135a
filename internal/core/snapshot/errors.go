package snapshot

import "errors"

var (
	ErrHashMismatch    = errors.New("snapshot state hash mismatch")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)
