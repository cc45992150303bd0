package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidInput    = errors.New("invalid input")
	// ErrRetrievalUnavailable marks storage/embedding failures that are fatal
	// for the current query.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrSynthesisFailed marks a failed answer-generation call; the engine
	// reports it instead of fabricating an answer.
	ErrSynthesisFailed = errors.New("answer synthesis failed")
	ErrTemporary       = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
