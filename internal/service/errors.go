package service

import "errors"

var (
	// ErrInvalidRequest is a missing or malformed required field
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRoomNotFound means no live room exists for the code
	ErrRoomNotFound = errors.New("room not found")
	// ErrStorage means the storage round trip failed or timed out
	ErrStorage = errors.New("storage failure")
	// ErrAlreadyCompleted declines a tap on a completed room. Not a failure.
	ErrAlreadyCompleted = errors.New("room already completed")
	// ErrNotOwner rejects an administrative action from a non-owner device
	ErrNotOwner = errors.New("not room owner")
)
