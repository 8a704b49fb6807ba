package filesystem

import "context"

// AcquireLockFile exposes the cross-process lock to the external tests.
func (s *Store) AcquireLockFile(ctx context.Context) (func(), error) {
	return s.lockFile(ctx)
}
