// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package chunkstate

import (
	"context"
	"errors"
	"log"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
)

// acquireLock creates the lock record. The record can only be created when
// no version of it exists, which is what makes it exclusive.
//
// There is no lease: a holder that goes away without releasing the lock
// leaves it held until someone releases it explicitly.
func acquireLock(ctx context.Context, store kvstore.Store, layout Layout, info map[string]any) error {
	log.Printf("[INFO] Acquiring lock at %s", layout.LockPath())
	err := store.Create(ctx, layout.LockPath(), info)
	if err == nil {
		log.Printf("[INFO] Acquired lock successfully")
		return nil
	}
	if !errors.Is(err, kvstore.ErrAlreadyExists) {
		return err
	}

	lockErr := &LockError{Err: errors.New("lock cannot be acquired: already locked")}
	current, infoErr := readLock(ctx, store, layout)
	if infoErr != nil {
		lockErr.Err = multierror.Append(lockErr.Err, infoErr)
	}
	lockErr.Info = current
	return lockErr
}

// releaseLock destroys the lock record and all of its versions.
func releaseLock(ctx context.Context, store kvstore.Store, layout Layout) error {
	log.Printf("[INFO] Releasing lock at %s", layout.LockPath())
	err := store.Destroy(ctx, layout.LockPath())
	if errors.Is(err, kvstore.ErrNotFound) {
		return ErrLockNotFound
	}
	if err != nil {
		return err
	}
	log.Printf("[INFO] Lock released")
	return nil
}

// readLock returns the metadata the current lock holder supplied.
func readLock(ctx context.Context, store kvstore.Store, layout Layout) (map[string]any, error) {
	log.Printf("[INFO] Getting lock data from %s", layout.LockPath())
	secret, err := store.Get(ctx, layout.LockPath())
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrLockNotFound
	}
	if err != nil {
		return nil, err
	}
	if secret.Deleted() {
		return nil, ErrLockNotFound
	}
	if secret.Data == nil {
		return map[string]any{}, nil
	}
	return secret.Data, nil
}
