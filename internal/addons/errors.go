package addons

import "errors"

var (
	// ErrInvalidID indicates a folder name cannot be used as an add-on identity
	ErrInvalidID = errors.New("invalid add-on id")
	// ErrDuplicateID indicates two add-on folders resolve to the same identity
	ErrDuplicateID = errors.New("duplicate add-on id")
	// ErrMalformedDescriptor indicates a manifest descriptor could not be parsed
	ErrMalformedDescriptor = errors.New("malformed add-on descriptor")
)
