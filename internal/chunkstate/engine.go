// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package chunkstate stores a single state value and a single lock in a
// secret store whose entries are limited in size.
//
// The state is packed into a text envelope (see package statecodec) and
// split into fragments stored at consecutive integer keys. Reading lists
// the keys, skips fragments marked as deleted and concatenates the rest in
// numeric key order. Writing rewrites every fragment and then deletes any
// fragment beyond the new end.
//
// None of this is atomic across fragments. The engine doesn't serialize
// concurrent writers either; callers are expected to hold the lock while
// they write.
package chunkstate

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
	"github.com/opentofu/tofu-vault-backend/internal/metrics"
	"github.com/opentofu/tofu-vault-backend/internal/statecodec"
	"github.com/opentofu/tofu-vault-backend/internal/tracing"
)

// Engine implements the state and lock operations on top of the stores
// handed out by a kvstore.Dialer.
type Engine struct {
	dialer kvstore.Dialer
	opts   Options
}

// New returns an Engine, or an error if opts are invalid.
func New(dialer kvstore.Dialer, opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{dialer: dialer, opts: opts}, nil
}

// Options returns the options the engine was created with.
func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) dial(ctx context.Context, token string) (kvstore.Store, error) {
	store, err := e.dialer.Dial(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("connecting to the secret store: %w", err)
	}
	return store, nil
}

// GetState reads and decodes the state stored at layout.
//
// It returns ErrStateNotFound when no fragments exist at all.
func (e *Engine) GetState(ctx context.Context, token string, layout Layout) (_ any, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "Get state",
		tracing.SpanAttributes(attribute.String("tofu_vault.path", layout.Base)),
	)
	defer span.End()
	defer metrics.ObserveOperation("get_state", time.Now(), &err)
	defer func() { tracing.SetSpanError(span, err) }()

	log.Printf("[INFO] Getting state %s", layout)
	store, err := e.dial(ctx, token)
	if err != nil {
		return nil, err
	}

	fragments, err := readFragments(ctx, store, layout)
	if err != nil {
		return nil, err
	}
	packed, err := Reassemble(fragments)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("tofu_vault.fragments", len(fragments)))
	return statecodec.Unpack(packed)
}

// SetState replaces the state stored at layout with value.
func (e *Engine) SetState(ctx context.Context, token string, layout Layout, value any) (_ WriteResult, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "Set state",
		tracing.SpanAttributes(attribute.String("tofu_vault.path", layout.Base)),
	)
	defer span.End()
	defer metrics.ObserveOperation("set_state", time.Now(), &err)
	defer func() { tracing.SetSpanError(span, err) }()

	log.Printf("[INFO] Setting state %s", layout)
	store, err := e.dial(ctx, token)
	if err != nil {
		return WriteResult{}, err
	}

	result, err := writeState(ctx, store, layout, e.opts, value)
	if err != nil {
		return result, err
	}
	span.SetAttributes(
		attribute.Int("tofu_vault.fragments", result.Fragments),
		attribute.Int("tofu_vault.cutoff", result.Cutoff),
	)
	log.Printf("[INFO] State %s set as %s of up to %d chars", layout, fragmentCount(result.Fragments), result.Cutoff)
	return result, nil
}

// AcquireLock takes the lock at layout, recording info as its metadata.
//
// It returns a *LockError when the lock is already held.
func (e *Engine) AcquireLock(ctx context.Context, token string, layout Layout, info map[string]any) (err error) {
	ctx, span := tracing.Tracer().Start(ctx, "Acquire lock",
		tracing.SpanAttributes(attribute.String("tofu_vault.path", layout.Base)),
	)
	defer span.End()
	defer metrics.ObserveOperation("acquire_lock", time.Now(), &err)
	defer func() { tracing.SetSpanError(span, err) }()

	store, err := e.dial(ctx, token)
	if err != nil {
		return err
	}
	if info == nil {
		info = map[string]any{}
	}
	return acquireLock(ctx, store, layout, info)
}

// ReleaseLock releases the lock at layout regardless of who holds it.
//
// It returns ErrLockNotFound when the lock isn't held.
func (e *Engine) ReleaseLock(ctx context.Context, token string, layout Layout) (err error) {
	ctx, span := tracing.Tracer().Start(ctx, "Release lock",
		tracing.SpanAttributes(attribute.String("tofu_vault.path", layout.Base)),
	)
	defer span.End()
	defer metrics.ObserveOperation("release_lock", time.Now(), &err)
	defer func() { tracing.SetSpanError(span, err) }()

	store, err := e.dial(ctx, token)
	if err != nil {
		return err
	}
	return releaseLock(ctx, store, layout)
}

// GetLockData returns the metadata of the lock held at layout.
//
// It returns ErrLockNotFound when the lock isn't held.
func (e *Engine) GetLockData(ctx context.Context, token string, layout Layout) (_ map[string]any, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "Get lock data",
		tracing.SpanAttributes(attribute.String("tofu_vault.path", layout.Base)),
	)
	defer span.End()
	defer metrics.ObserveOperation("get_lock", time.Now(), &err)
	defer func() { tracing.SetSpanError(span, err) }()

	store, err := e.dial(ctx, token)
	if err != nil {
		return nil, err
	}
	return readLock(ctx, store, layout)
}
