package repository

import "github.com/okian/keystudy/pkg/logger"

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger used for store diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLiteStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithOwnedDB makes Close also close the underlying *sql.DB.
func WithOwnedDB() Option {
	return func(s *SQLiteStore) {
		s.ownsDB = true
	}
}
