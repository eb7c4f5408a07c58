package storage

import (
	"context"
	"errors"
	"time"
)

const defaultOpTimeout = 2 * time.Second

var ErrEmptyKey = errors.New("storage key is empty")

func opContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}
