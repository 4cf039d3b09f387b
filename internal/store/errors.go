package store

import (
	"fmt"

	"github.com/rickgao/ercot-data/internal/schema"
)

// DatabaseError is a connection, constraint or statement failure. It is
// fatal to the Store call that returned it.
type DatabaseError struct {
	Op    string
	Table schema.Name
	Err   error
}

func (e *DatabaseError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("database %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("database %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func dbErr(op string, table schema.Name, err error) error {
	return &DatabaseError{Op: op, Table: table, Err: err}
}
