package session

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPlateNotFound   = errors.New("plate not found")
	ErrPlateLimit      = errors.New("plate limit reached")
	ErrLastPlate       = errors.New("cannot remove the last plate")
	ErrInvalidIndex    = errors.New("plate index out of range")
	ErrInvalidOrder    = errors.New("order is not a permutation of the plate ids")
	ErrInvalidMotif    = errors.New("motif must be an http(s), data: or motif: reference")
)

// errUnchanged lets a mutation finish without a new revision.
var errUnchanged = errors.New("unchanged")
