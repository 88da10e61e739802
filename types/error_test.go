package types

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got != "[UPSTREAM_ERROR] upstream failed: root" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrStreamTransport, "read failed").WithCause(context.Canceled)
	wrapped := fmt.Errorf("run aborted: %w", inner)

	if !IsErrorCode(wrapped, ErrStreamTransport) {
		t.Fatalf("expected wrapped error to carry %s", ErrStreamTransport)
	}
	if !errors.Is(wrapped, context.Canceled) {
		t.Fatalf("expected context.Canceled to stay reachable")
	}
	if IsRetryable(wrapped) {
		t.Fatalf("transport errors are not retryable unless marked")
	}
	if _, ok := AsError(errors.New("plain")); ok {
		t.Fatalf("plain errors must not convert")
	}
	if got := NewError(ErrStreamMissing, "no body").Error(); got != "[STREAM_MISSING] no body" {
		t.Fatalf("unexpected error string %q", got)
	}
}
