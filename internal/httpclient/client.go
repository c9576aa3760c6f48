// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package httpclient decorates the HTTP transports used to talk to secret
// stores.
package httpclient

import (
	"context"
	"net/http"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/opentofu/tofu-vault-backend/version"
)

// WrapTransport decorates the transport of a secret store client so that
// every request carries the backend's User-Agent string. A nil transport is
// replaced by the cleanhttp pooled transport.
//
// If the given context has an active OpenTelemetry trace span associated with
// it then the returned transport also collects traces for outgoing requests.
// Those traces will be children of the span associated with the context
// passed in each individual request, rather than of the span in the context
// passed to this function.
func WrapTransport(ctx context.Context, inner http.RoundTripper) http.RoundTripper {
	if inner == nil {
		inner = cleanhttp.DefaultPooledTransport()
	}
	var rt http.RoundTripper = &userAgentRoundTripper{
		userAgent: UserAgent(version.String()),
		inner:     inner,
	}

	if span := otelTrace.SpanFromContext(ctx); span != nil && span.IsRecording() {
		// Only instrument when something upstream is already tracing, since
		// otherwise every request would start its own single-span trace.
		rt = otelhttp.NewTransport(rt)
	}

	return rt
}
