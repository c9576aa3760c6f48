// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package kubernetes

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/mitchellh/go-homedir"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/opentofu/tofu-vault-backend/internal/httpclient"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
	"github.com/opentofu/tofu-vault-backend/version"
)

// Config describes how to reach the cluster.
type Config struct {
	// ConfigPath is the kubeconfig file. When empty the KUBECONFIG
	// environment variable and ~/.kube/config apply, falling back to the
	// in-cluster service account.
	ConfigPath string

	// Context selects a kubeconfig context other than the current one.
	Context string

	// Namespace holds the Secrets. When empty the context's namespace is
	// used, or "default".
	Namespace string

	// Prefix starts the name of every Secret.
	Prefix string
}

// Dialer creates per-token sessions against one cluster.
type Dialer struct {
	ctx       context.Context
	base      *rest.Config
	namespace string
	prefix    string

	// defaultClient uses the credentials of the kubeconfig. It serves Dial
	// calls without a token.
	defaultClient kubernetes.Interface
}

var _ kvstore.Dialer = (*Dialer)(nil)

// NewDialer returns a Dialer for cfg.
func NewDialer(ctx context.Context, cfg Config) (*Dialer, error) {
	if errs := validation.IsDNS1123Label(cfg.Prefix); len(errs) != 0 {
		return nil, fmt.Errorf("invalid Secret name prefix %q: %s", cfg.Prefix, strings.Join(errs, "; "))
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if cfg.ConfigPath != "" {
		path, err := homedir.Expand(cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("expanding kubeconfig path %q: %w", cfg.ConfigPath, err)
		}
		rules.ExplicitPath = path
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.Context}
	if cfg.Namespace != "" {
		overrides.Context.Namespace = cfg.Namespace
	}
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides)

	base, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("loading Kubernetes client configuration: %w", err)
	}
	namespace, _, err := clientConfig.Namespace()
	if err != nil {
		return nil, fmt.Errorf("resolving Kubernetes namespace: %w", err)
	}

	d := &Dialer{ctx: ctx, namespace: namespace, prefix: cfg.Prefix}
	d.base = d.decorate(base)
	d.defaultClient, err = kubernetes.NewForConfig(d.base)
	if err != nil {
		return nil, fmt.Errorf("creating Kubernetes client: %w", err)
	}

	log.Printf("[DEBUG] Kubernetes dialer for %s, namespace %q, Secret prefix %q", base.Host, namespace, cfg.Prefix)
	return d, nil
}

// decorate sets the backend's User-Agent and tracing on c.
func (d *Dialer) decorate(c *rest.Config) *rest.Config {
	c.UserAgent = httpclient.UserAgent(version.String())
	c.Wrap(func(rt http.RoundTripper) http.RoundTripper {
		return httpclient.WrapTransport(d.ctx, rt)
	})
	return c
}

// Dial returns a session that authenticates with token as a bearer token.
// An empty token uses the credentials of the kubeconfig.
func (d *Dialer) Dial(_ context.Context, token string) (kvstore.Store, error) {
	client := d.defaultClient
	if token != "" {
		c := d.decorate(rest.AnonymousClientConfig(d.base))
		c.BearerToken = token

		var err error
		client, err = kubernetes.NewForConfig(c)
		if err != nil {
			return nil, fmt.Errorf("creating Kubernetes client: %w", err)
		}
	}
	return NewStore(client.CoreV1().Secrets(d.namespace), d.prefix), nil
}
