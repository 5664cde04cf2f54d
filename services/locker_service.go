package services

import "context"

// Locker grants mutual exclusion per key. The returned function releases
// the lock and must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
