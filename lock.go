/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package recon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blnkfinance/recon/internal/apierror"
	redlock "github.com/blnkfinance/recon/internal/lock"
	"github.com/blnkfinance/recon/model"
	"github.com/sirupsen/logrus"
)

func bankTransactionLockKey(id string) string {
	return fmt.Sprintf("bank-transaction:%s", id)
}

func reconciliationLockKey(id string) string {
	return fmt.Sprintf("reconciliation:%s", id)
}

// acquireLock waits for the per-entity lock. A lock still held after the wait
// timeout is reported as a conflict.
func (r *Recon) acquireLock(ctx context.Context, key string) (*redlock.Locker, error) {
	locker := redlock.NewLocker(r.redis, key, model.GenerateUUIDWithSuffix("loc"))
	err := locker.WaitLock(ctx, r.config.Lock.Duration, r.config.Lock.WaitTimeout)
	if err == nil {
		return locker, nil
	}
	if errors.Is(err, redlock.ErrLockHeld) {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("%s is being modified by another operation", key), nil)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to acquire lock", err)
}

func releaseLock(ctx context.Context, locker *redlock.Locker) {
	if err := locker.Unlock(context.WithoutCancel(ctx)); err != nil {
		logrus.WithField("key", locker.Key()).Errorf("failed to release lock: %v", err)
	}
}

// withLock runs fn while holding the lock for key.
func (r *Recon) withLock(ctx context.Context, key string, fn func() error) error {
	locker, err := r.acquireLock(ctx, key)
	if err != nil {
		return err
	}
	defer releaseLock(ctx, locker)

	stop := r.keepAlive(ctx, locker)
	defer stop()
	return fn()
}

// keepAlive extends the lock every half lease until the returned stop func is called.
// stop blocks until the extender has exited, so no extension runs after release.
func (r *Recon) keepAlive(ctx context.Context, locker *redlock.Locker) func() {
	lease := r.config.Lock.Duration
	if lease <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(lease / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := locker.ExtendLock(ctx, lease); err != nil {
					logrus.WithField("key", locker.Key()).Warnf("failed to extend lock: %v", err)
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}
