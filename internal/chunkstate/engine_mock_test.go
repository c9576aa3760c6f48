// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package chunkstate

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore/mock_kvstore"
)

func mockEngine(t *testing.T, opts Options) (*Engine, *mock_kvstore.MockStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mock_kvstore.NewMockStore(ctrl)
	dialer := mock_kvstore.NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any(), "s.token").Return(store, nil).AnyTimes()

	e, err := New(dialer, opts)
	if err != nil {
		t.Fatal(err)
	}
	return e, store
}

func TestEngine_dialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := mock_kvstore.NewMockDialer(ctrl)
	dialErr := kvstore.NewError("dial", "", kvstore.ErrUnavailable, errors.New("connection refused"))
	dialer.EXPECT().Dial(gomock.Any(), "s.token").Return(nil, dialErr)

	e, err := New(dialer, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.GetState(context.Background(), "s.token", Layout{Base: "tofu"})
	if !errors.Is(err, kvstore.ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestEngine_GetState_listFailure(t *testing.T) {
	e, store := mockEngine(t, DefaultOptions())
	listErr := kvstore.NewError("list", "tofu/state", kvstore.ErrForbidden, nil)
	store.EXPECT().List(gomock.Any(), "tofu/state").Return(nil, listErr)

	_, err := e.GetState(context.Background(), "s.token", Layout{Base: "tofu"})
	if errors.Is(err, ErrStateNotFound) {
		t.Fatal("a failed listing was reported as a missing state")
	}
	if !errors.Is(err, kvstore.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestEngine_GetState_readFailure(t *testing.T) {
	e, store := mockEngine(t, DefaultOptions())
	readErr := kvstore.NewError("get", "tofu/state/1", kvstore.ErrUnavailable, nil)
	gomock.InOrder(
		store.EXPECT().List(gomock.Any(), "tofu/state").Return([]string{"0", "1"}, nil),
		store.EXPECT().Get(gomock.Any(), "tofu/state/0").Return(&kvstore.Secret{Data: fragmentData("v0:")}, nil),
		store.EXPECT().Get(gomock.Any(), "tofu/state/1").Return(nil, readErr),
	)

	_, err := e.GetState(context.Background(), "s.token", Layout{Base: "tofu"})
	if !errors.Is(err, kvstore.ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestEngine_SetState_probeStopsOnOtherErrors(t *testing.T) {
	e, store := mockEngine(t, DefaultOptions())
	putErr := kvstore.NewError("put", "tofu/state/0", kvstore.ErrForbidden, nil)
	// Only one attempt: a permission problem is not a size problem.
	store.EXPECT().Put(gomock.Any(), "tofu/state/0", gomock.Any()).Return(putErr).Times(1)

	_, err := e.SetState(context.Background(), "s.token", Layout{Base: "tofu"}, map[string]any{"serial": 1})
	if !errors.Is(err, kvstore.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestEngine_SetState_staticWritesInOrder(t *testing.T) {
	e, store := mockEngine(t, Options{ChunkSize: 5, Margin: 0})

	value := map[string]any{"serial": 1}
	fragments := Split(mustPack(t, value), 5)

	var calls []any
	for i, fragment := range fragments {
		calls = append(calls, store.EXPECT().Put(gomock.Any(), Layout{Base: "tofu"}.FragmentPath(i), fragmentData(fragment)).Return(nil))
	}
	// One fragment left over from a longer earlier state.
	listed := make([]string, 0, len(fragments)+1)
	for i := range len(fragments) + 1 {
		listed = append(listed, strconv.Itoa(i))
	}
	stale := listed[len(listed)-1]
	calls = append(calls,
		store.EXPECT().List(gomock.Any(), "tofu/state").Return(listed, nil),
		store.EXPECT().DeleteLatest(gomock.Any(), "tofu/state/"+stale).Return(nil),
	)
	gomock.InOrder(calls...)

	result, err := e.SetState(context.Background(), "s.token", Layout{Base: "tofu"}, value)
	if err != nil {
		t.Fatalf("SetState: %s", err)
	}
	if result.Fragments != len(fragments) || result.Cutoff != 5 {
		t.Errorf("wrong result %+v", result)
	}
	if len(result.Truncated) != 1 || result.Truncated[0] != stale {
		t.Errorf("wrong truncated fragments %q; want [%s]", result.Truncated, stale)
	}
}

func TestEngine_AcquireLock_holderUnreadable(t *testing.T) {
	e, store := mockEngine(t, DefaultOptions())
	gomock.InOrder(
		store.EXPECT().Create(gomock.Any(), "tofu/lock", gomock.Any()).
			Return(kvstore.NewError("create", "tofu/lock", kvstore.ErrAlreadyExists, nil)),
		store.EXPECT().Get(gomock.Any(), "tofu/lock").
			Return(nil, kvstore.NewError("get", "tofu/lock", kvstore.ErrUnavailable, nil)),
	)

	err := e.AcquireLock(context.Background(), "s.token", Layout{Base: "tofu"}, map[string]any{"ID": "x"})
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("got %v, want a *LockError", err)
	}
	if lockErr.Info != nil {
		t.Errorf("unexpected lock info %#v", lockErr.Info)
	}
	if msg := err.Error(); !strings.Contains(msg, "already locked") || !strings.Contains(msg, kvstore.ErrUnavailable.Error()) {
		t.Errorf("error message %q should mention both the conflict and the read failure", msg)
	}
}

func TestEngine_AcquireLock_otherFailure(t *testing.T) {
	e, store := mockEngine(t, DefaultOptions())
	store.EXPECT().Create(gomock.Any(), "tofu/lock", gomock.Any()).
		Return(kvstore.NewError("create", "tofu/lock", kvstore.ErrForbidden, nil))

	err := e.AcquireLock(context.Background(), "s.token", Layout{Base: "tofu"}, nil)
	var lockErr *LockError
	if errors.As(err, &lockErr) {
		t.Fatalf("a permission error was reported as a lock conflict: %s", err)
	}
	if !errors.Is(err, kvstore.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}
