package quota

// Quota is a snapshot of one capacity limit for a user.
type Quota struct {
	kind  string
	limit int64
	used  int64
}

// New creates a Quota snapshot. A limit of zero means unlimited.
func New(kind string, limit, used int64) Quota {
	return Quota{kind: kind, limit: limit, used: used}
}

// Kind returns the capacity kind (storage, documents).
func (q Quota) Kind() string { return q.kind }

// Limit returns the cap (0 = unlimited).
func (q Quota) Limit() int64 { return q.limit }

// Used returns the consumed amount.
func (q Quota) Used() int64 { return q.used }

// Remaining returns what is left, or -1 when unlimited.
func (q Quota) Remaining() int64 {
	if q.limit <= 0 {
		return -1
	}
	if r := q.limit - q.used; r > 0 {
		return r
	}
	return 0
}

// Allows reports whether adding delta stays within the limit.
func (q Quota) Allows(delta int64) bool {
	return q.limit <= 0 || q.used+delta <= q.limit
}

// IsExhausted reports whether the quota is spent.
func (q Quota) IsExhausted() bool {
	return q.limit > 0 && q.used >= q.limit
}
