package typesys

import "errors"

var (
	ErrInvalidTypeName   = errors.New("invalid type name")
	ErrConflictingType   = errors.New("conflicting type declaration")
	ErrConflictingMember = errors.New("conflicting member exists")
	ErrNoMatchingMethod  = errors.New("no matching methods found")
	ErrAmbiguousMethod   = errors.New("no best matching method found")
	ErrNoSuchField       = errors.New("no such field")
	ErrNotReference      = errors.New("not a reference type")
)
