package persistence

// RetentionValidator decides whether a scanned entry remains within retention
// and may be returned by a read. It decouples the mechanics of scans from
// garbage-collection policy.
type RetentionValidator interface {
	// Retained returns whether an entry committed at |ts| may be returned.
	Retained(ts Timestamp) bool
}

// NoopRetention is a permissive RetentionValidator which retains all entries.
type NoopRetention struct{}

// Retained always returns true.
func (NoopRetention) Retained(Timestamp) bool { return true }

// RetentionFunc adapts a function to a RetentionValidator.
type RetentionFunc func(ts Timestamp) bool

// Retained invokes the function.
func (fn RetentionFunc) Retained(ts Timestamp) bool { return fn(ts) }

// RetentionFloor retains entries committed at or after its Timestamp.
type RetentionFloor Timestamp

// Retained returns whether |ts| is at or after the floor.
func (f RetentionFloor) Retained(ts Timestamp) bool { return ts >= Timestamp(f) }

// retentionOrDefault maps a nil RetentionValidator to NoopRetention.
func retentionOrDefault(rv RetentionValidator) RetentionValidator {
	if rv == nil {
		return NoopRetention{}
	}
	return rv
}
