package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrStoreUnavailable marks a durable store failure (insert, select or delete).
	ErrStoreUnavailable = goerr.New("memory store unavailable")

	// ErrServiceUnavailable marks a language model service failure, including deadline expiry.
	ErrServiceUnavailable = goerr.New("language model service unavailable")

	ErrInvalidImportance = goerr.New("importance must be between 1 and 5")
	ErrInvalidMemoryType = goerr.New("invalid memory type")
	ErrInvalidEmotion    = goerr.New("invalid emotion")
	ErrInvalidInput      = goerr.New("invalid input")

	ErrMemoryNotFound  = goerr.New("memory not found")
	ErrSessionNotFound = goerr.New("session not found")
)
