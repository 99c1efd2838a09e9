package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"
)

// Operation names the gorm callback chain a failure is injected into.
type Operation string

const (
	OpCreate Operation = "create"
	OpQuery  Operation = "query"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

var failureSeq atomic.Int64

// Failure counts how often an injected failure fired.
type Failure struct {
	fired atomic.Int32
}

func (f *Failure) Fired() int {
	return int(f.fired.Load())
}

// InjectFailure makes the next `times` statements of kind op against table
// fail with err before they reach the driver. A negative times fails every
// statement. The hook is removed when the test ends.
func InjectFailure(t *testing.T, db *gorm.DB, op Operation, table string, times int, err error) *Failure {
	t.Helper()

	failure := &Failure{}
	name := fmt.Sprintf("testutil:fail_%s_%s_%d", op, table, failureSeq.Add(1))

	hook := func(tx *gorm.DB) {
		if tx.Statement.Table != table {
			return
		}
		if times >= 0 && failure.Fired() >= times {
			return
		}
		failure.fired.Add(1)
		_ = tx.AddError(err)
	}

	var regErr error
	switch op {
	case OpCreate:
		regErr = db.Callback().Create().Before("gorm:create").Register(name, hook)
	case OpQuery:
		regErr = db.Callback().Query().Before("gorm:query").Register(name, hook)
	case OpUpdate:
		regErr = db.Callback().Update().Before("gorm:update").Register(name, hook)
	case OpDelete:
		regErr = db.Callback().Delete().Before("gorm:delete").Register(name, hook)
	default:
		t.Fatalf("Unknown operation %q", op)
	}
	if regErr != nil {
		t.Fatalf("Failed to register failure hook: %v", regErr)
	}

	t.Cleanup(func() {
		var err error
		switch op {
		case OpCreate:
			err = db.Callback().Create().Remove(name)
		case OpQuery:
			err = db.Callback().Query().Remove(name)
		case OpUpdate:
			err = db.Callback().Update().Remove(name)
		case OpDelete:
			err = db.Callback().Delete().Remove(name)
		}
		if err != nil {
			t.Logf("Warning: Failed to remove failure hook: %v", err)
		}
	})

	return failure
}
