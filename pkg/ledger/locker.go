package ledger

import (
	"context"
	"errors"
	"sync"
	"time"
)

// AccountLocker serializes mutating operations per account.
type AccountLocker interface {
	Lock(ctx context.Context, accountID AccountID) (unlock func(), err error)
}

// KeyedLocker is an in-process mutex keyed by account id with a bounded wait.
type KeyedLocker struct {
	mutex   sync.Mutex
	slots   map[string]*lockSlot
	timeout time.Duration
}

type lockSlot struct {
	token      chan struct{}
	references int
}

// NewKeyedLocker returns a locker whose Lock waits at most timeout (no bound when timeout <= 0).
func NewKeyedLocker(timeout time.Duration) *KeyedLocker {
	return &KeyedLocker{
		slots:   make(map[string]*lockSlot),
		timeout: timeout,
	}
}

// Lock blocks until the account is free, the timeout elapses, or ctx is done.
func (locker *KeyedLocker) Lock(ctx context.Context, accountID AccountID) (func(), error) {
	key := accountID.String()
	slot := locker.acquireSlot(key)

	waitContext := ctx
	if locker.timeout > 0 {
		var cancel context.CancelFunc
		waitContext, cancel = context.WithTimeout(ctx, locker.timeout)
		defer cancel()
	}

	select {
	case slot.token <- struct{}{}:
	case <-waitContext.Done():
		locker.releaseSlot(key, slot)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(waitContext.Err(), context.DeadlineExceeded) {
			return nil, WrapError(errorOperationService, errorSubjectLock, errorCodeTimeout, ErrAccountLockTimeout)
		}
		return nil, waitContext.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.token
			locker.releaseSlot(key, slot)
		})
	}, nil
}

func (locker *KeyedLocker) acquireSlot(key string) *lockSlot {
	locker.mutex.Lock()
	defer locker.mutex.Unlock()
	slot, ok := locker.slots[key]
	if !ok {
		slot = &lockSlot{token: make(chan struct{}, 1)}
		locker.slots[key] = slot
	}
	slot.references++
	return slot
}

func (locker *KeyedLocker) releaseSlot(key string, slot *lockSlot) {
	locker.mutex.Lock()
	defer locker.mutex.Unlock()
	slot.references--
	if slot.references == 0 {
		delete(locker.slots, key)
	}
}
