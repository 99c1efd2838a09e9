package service

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized covers every failed session or credential check.
	ErrUnauthorized = errors.New("could not validate credentials")

	// ErrInvalidCredentials is what a failed login returns, whatever the reason.
	ErrInvalidCredentials = fmt.Errorf("%w: incorrect email or password", ErrUnauthorized)

	ErrUnsupportedMediaType = errors.New("unsupported file type")
)

// UnitOfWork runs fn inside one transaction carried by ctx.
type UnitOfWork interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
