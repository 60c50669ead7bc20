package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	meta := MetadataFor(CodeInsufficientBalance)
	if meta.HTTPStatus != http.StatusUnprocessableEntity {
		t.Fatalf("insufficient balance should map to 422, got %d", meta.HTTPStatus)
	}
	if !meta.DetailsAllowed {
		t.Fatal("insufficient balance details should be allowed")
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_NEW"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unknown codes should map to 500, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("row not found")
	err := Wrap(CodeNotFound, cause, "template missing")
	if err.Unwrap() != cause {
		t.Fatal("wrapped error should expose its cause")
	}
	if got := As(fmt.Errorf("outer: %w", err)); got == nil || got.Code() != CodeNotFound {
		t.Fatalf("As should find the typed error through wrapping, got %v", got)
	}
}

func TestIsCode(t *testing.T) {
	err := New(CodeStateConflict, "instance is not active")
	if !IsCode(err, CodeStateConflict) {
		t.Fatal("IsCode should match the carried code")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatal("IsCode must not match a different code")
	}
	if IsCode(nil, CodeNotFound) {
		t.Fatal("nil error carries no code")
	}
}
