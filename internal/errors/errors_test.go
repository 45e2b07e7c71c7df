package errors

import (
	"fmt"
	"testing"
)

func TestWrapPreservesKindAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(KindStorageFailure, ReasonQuery, cause)

	if !Is(err, KindStorageFailure) {
		t.Fatalf("expected KindStorageFailure, got %v", err)
	}
	var e *Error
	if !As(err, &e) {
		t.Fatalf("expected As to find *Error")
	}
	if e.Unwrap() != cause {
		t.Fatalf("expected unwrap to return original cause")
	}
}

func TestHTTPErrorCarriesStatus(t *testing.T) {
	err := HTTPError(429, "rate limited")
	var e *Error
	if !As(err, &e) {
		t.Fatalf("expected As to find *Error")
	}
	if e.HTTPStatus != 429 {
		t.Fatalf("expected status 429, got %d", e.HTTPStatus)
	}
	if e.Kind != KindLLMProvider {
		t.Fatalf("expected KindLLMProvider, got %s", e.Kind)
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(fmt.Errorf("plain"), KindStorageFailure) {
		t.Fatal("expected Is to be false for a non-tagged error")
	}
}
