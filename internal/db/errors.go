package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrNoDocuments   = errors.New("db: no documents")
	ErrDuplicateKey  = errors.New("db: duplicate key")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
	ErrTimeout       = errors.New("db: operation exceeded time limit")
	ErrInvalidID     = errors.New("db: invalid object id")
)

// Op constants name the failing command for error context.
const (
	OpInsert      = "insert"
	OpFind        = "find"
	OpAggregate   = "aggregate"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpCount       = "count"
	OpCreateIndex = "createIndexes"
	OpDropIndex   = "dropIndexes"
	OpListIndexes = "listIndexes"
	OpDel         = "DEL"
	OpGet         = "GET"
	OpSet         = "SET"
	OpIncrBy      = "INCRBY"
	OpExpire      = "EXPIRE"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
