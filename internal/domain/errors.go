package domain

import "errors"

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrDuplicateID     = errors.New("duplicate id")
	ErrInvalidSource   = errors.New("invalid image source")
	ErrLoad            = errors.New("image load failed")
	ErrCapacity        = errors.New("board capacity exceeded")
	ErrParse           = errors.New("invalid board document")
	ErrUnpackable      = errors.New("board cannot be packed within capacity")
	ErrInvalidSpan     = errors.New("invalid span")
	ErrInvalidSettings = errors.New("invalid grid settings")
	ErrInvalidOverflow = errors.New("invalid overflow mode")
	ErrDegenerateGrid  = errors.New("grid has no usable columns")
)
