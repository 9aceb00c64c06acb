package domain

import "time"

// Limits are the operational bounds shared by the query and write paths.
type Limits struct {
	MaxFilterDepth       int
	MaxRelations         int
	MaxDocumentsPerUser  int64
	MaxStorageBytes      int64
	MaxRequestBytes      int64
	CompositeBatchSize   int
	LinkConcurrency      int
	MaxNestedInsertDepth int
	SearchTimeoutFloor   time.Duration
}

// DefaultLimits returns the limits used when configuration leaves them unset.
func DefaultLimits() Limits {
	return Limits{
		MaxFilterDepth:       5,
		MaxRelations:         1000,
		CompositeBatchSize:   100,
		LinkConcurrency:      8,
		MaxNestedInsertDepth: 10,
		SearchTimeoutFloor:   5 * time.Second,
	}
}

// KeyPrefix namespaces every key written to the shared KV store.
const KeyPrefix = "dataforge:"
