// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package kubernetes implements kvstore.Store on Kubernetes Secrets.
//
// Every secret path is kept in its own Secret, named after a hash of the
// path and labelled so that the store can find its Secrets again. Secrets
// have no version history, so the Secret carries a version counter and a
// deletion marker in its annotations, and a soft delete empties its data.
package kubernetes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/util/retry"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
)

const (
	managedByLabel = "app.kubernetes.io/managed-by"
	managedByValue = "tofu-vault-backend"
	prefixLabel    = "tofu-vault-backend/prefix"

	pathAnnotation     = "tofu-vault-backend/path"
	versionAnnotation  = "tofu-vault-backend/version"
	deletionAnnotation = "tofu-vault-backend/deletion-time"

	dataKey = "data"

	// DefaultMaxEntrySize is the size limit the API server enforces on the
	// data of a Secret.
	DefaultMaxEntrySize = 1 << 20
)

// Store is a kvstore.Store session on the Secrets of one namespace.
type Store struct {
	secrets typedcorev1.SecretInterface
	prefix  string

	// MaxEntrySize, when positive, is the largest JSON-encoded secret Put
	// and Create accept before sending anything to the API server.
	MaxEntrySize int

	now func() time.Time
}

var _ kvstore.Store = (*Store)(nil)

// NewStore returns a Store that keeps its Secrets in secrets. The prefix
// starts every Secret name and tells apart stores sharing a namespace; it
// must be a valid DNS label.
func NewStore(secrets typedcorev1.SecretInterface, prefix string) *Store {
	return &Store{
		secrets:      secrets,
		prefix:       prefix,
		MaxEntrySize: DefaultMaxEntrySize,
		now:          time.Now,
	}
}

// secretName returns the name of the Secret holding path.
func (s *Store) secretName(path string) string {
	sum := sha256.Sum256([]byte(path))
	return s.prefix + "-" + hex.EncodeToString(sum[:16])
}

func (s *Store) labelSelector() string {
	return managedByLabel + "=" + managedByValue + "," + prefixLabel + "=" + s.prefix
}

func (s *Store) encode(op, path string, data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, path, err)
	}
	if s.MaxEntrySize > 0 && len(raw) > s.MaxEntrySize {
		return nil, kvstore.NewError(op, path, kvstore.ErrCapacityExceeded,
			fmt.Errorf("entry of %d bytes exceeds the %d byte limit", len(raw), s.MaxEntrySize))
	}
	return raw, nil
}

// newSecret returns the first version of the Secret holding path.
func (s *Store) newSecret(path string, raw []byte) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name: s.secretName(path),
			Labels: map[string]string{
				managedByLabel: managedByValue,
				prefixLabel:    s.prefix,
			},
			Annotations: map[string]string{
				pathAnnotation:    path,
				versionAnnotation: "1",
			},
		},
		Type: corev1.SecretTypeOpaque,
		Data: map[string][]byte{dataKey: raw},
	}
}

func secretVersion(secret *corev1.Secret) int {
	v, err := strconv.Atoi(secret.Annotations[versionAnnotation])
	if err != nil {
		return 0
	}
	return v
}

func (s *Store) Put(ctx context.Context, path string, data map[string]any) error {
	raw, err := s.encode("put", path, data)
	if err != nil {
		return err
	}

	// Put is last writer wins, so a conflicting update just goes again on
	// top of the newer Secret.
	err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
		current, err := s.secrets.Get(ctx, s.secretName(path), metav1.GetOptions{})
		if k8serrors.IsNotFound(err) {
			_, err = s.secrets.Create(ctx, s.newSecret(path, raw), metav1.CreateOptions{})
			return err
		}
		if err != nil {
			return err
		}

		next := current.DeepCopy()
		if next.Annotations == nil {
			next.Annotations = map[string]string{}
		}
		next.Annotations[pathAnnotation] = path
		next.Annotations[versionAnnotation] = strconv.Itoa(secretVersion(current) + 1)
		delete(next.Annotations, deletionAnnotation)
		next.Data = map[string][]byte{dataKey: raw}
		_, err = s.secrets.Update(ctx, next, metav1.UpdateOptions{})
		return err
	})
	return translateError("put", path, err)
}

func (s *Store) Get(ctx context.Context, path string) (*kvstore.Secret, error) {
	secret, err := s.secrets.Get(ctx, s.secretName(path), metav1.GetOptions{})
	if err != nil {
		return nil, translateError("get", path, err)
	}

	ret := &kvstore.Secret{Version: secretVersion(secret)}
	if deleted := secret.Annotations[deletionAnnotation]; deleted != "" {
		ret.DeletionTime, err = time.Parse(time.RFC3339Nano, deleted)
		if err != nil {
			return nil, fmt.Errorf("get %s: invalid deletion time %q: %w", path, deleted, err)
		}
		return ret, nil
	}
	if raw, ok := secret.Data[dataKey]; ok {
		if err := json.Unmarshal(raw, &ret.Data); err != nil {
			return nil, fmt.Errorf("get %s: decoding secret %s: %w", path, secret.Name, err)
		}
	}
	return ret, nil
}

// List finds the store's Secrets by label and derives the entries below
// prefix from their path annotations.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	list, err := s.secrets.List(ctx, metav1.ListOptions{LabelSelector: s.labelSelector()})
	if err != nil {
		return nil, translateError("list", prefix, err)
	}

	dir := strings.Trim(prefix, "/") + "/"
	seen := map[string]struct{}{}
	for _, secret := range list.Items {
		rest, ok := strings.CutPrefix(secret.Annotations[pathAnnotation], dir)
		if !ok || rest == "" {
			continue
		}
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i+1]
		}
		seen[rest] = struct{}{}
	}
	if len(seen) == 0 {
		return nil, kvstore.NewError("list", prefix, kvstore.ErrNotFound, nil)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) DeleteLatest(ctx context.Context, path string) error {
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		current, err := s.secrets.Get(ctx, s.secretName(path), metav1.GetOptions{})
		if err != nil {
			return err
		}
		if current.Annotations[deletionAnnotation] != "" {
			return nil
		}

		next := current.DeepCopy()
		if next.Annotations == nil {
			next.Annotations = map[string]string{}
		}
		next.Annotations[deletionAnnotation] = s.now().UTC().Format(time.RFC3339Nano)
		next.Data = nil
		_, err = s.secrets.Update(ctx, next, metav1.UpdateOptions{})
		return err
	})
	return translateError("delete", path, err)
}

func (s *Store) Create(ctx context.Context, path string, data map[string]any) error {
	raw, err := s.encode("create", path, data)
	if err != nil {
		return err
	}
	_, err = s.secrets.Create(ctx, s.newSecret(path, raw), metav1.CreateOptions{})
	return translateError("create", path, err)
}

func (s *Store) Destroy(ctx context.Context, path string) error {
	err := s.secrets.Delete(ctx, s.secretName(path), metav1.DeleteOptions{})
	return translateError("destroy", path, err)
}
