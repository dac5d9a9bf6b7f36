package dedupe

// Option configures a pending set.
type Option func(*pendingSet)

// WithMaxSize caps the number of outstanding keys. Zero or negative means
// unbounded.
func WithMaxSize(maxSize int) Option {
	return func(s *pendingSet) {
		s.maxSize = maxSize
	}
}
