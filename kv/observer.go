package kv

import (
	"errors"
	"time"
)

// Operation results reported to an Observer.
const (
	ResultHit          = "hit"
	ResultMiss         = "miss"
	ResultOK           = "ok"
	ResultNotFound     = "not_found"
	ResultExists       = "exists"
	ResultDecryptError = "decrypt_error"
	ResultError        = "error"
)

// Observer receives the outcome of every facade operation.
type Observer interface {
	ObserveOperation(op, result string, elapsed time.Duration)
	ObserveExpired(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, time.Duration) {}
func (nopObserver) ObserveExpired(int)                             {}

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrKeyNotFound):
		return ResultNotFound
	case errors.Is(err, ErrKeyExists):
		return ResultExists
	case errors.Is(err, ErrDecrypt):
		return ResultDecryptError
	default:
		return ResultError
	}
}
