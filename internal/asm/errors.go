package asm

import "errors"

var (
	// ErrUnpositionedLabel is returned when a branch targets a label which
	// was never positioned.
	ErrUnpositionedLabel = errors.New("unpositioned label")
	// ErrLabelPositioned is returned when a label is positioned twice.
	ErrLabelPositioned = errors.New("label is already positioned")
	ErrEndReached      = errors.New("End reached without returning")
	ErrCodeTooLarge    = errors.New("code is too large")
	ErrNotConverged    = errors.New("branch encoding did not converge")
	ErrUnassignedVar   = errors.New("accessing an unassigned variable")
	ErrHandlerEntry    = errors.New("exception handler entered without an exception")
	ErrDuplicateCase   = errors.New("duplicate switch case")
	ErrForeign         = errors.New("variable or label belongs to another method")
	ErrFinished        = errors.New("already finished")
	ErrTooManyParams   = errors.New("too many parameter slots")
	ErrTooManyLocals   = errors.New("too many local variable slots")
	ErrStackTooDeep    = errors.New("operand stack is too deep")
)
