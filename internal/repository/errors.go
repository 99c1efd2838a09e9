package repository

import (
	"errors"

	"github.com/savannah-faces/data-service/internal/database"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflicts with an existing one")

	// ErrTransient marks a store failure that outlived every retry attempt.
	ErrTransient = database.ErrTransient
)
