package eventhub

import (
	"errors"
	"testing"
)

func TestIsKind(t *testing.T) {
	err := newErr(KindNotFound, "get_events", nil)
	if !IsKind(err, KindNotFound) {
		t.Fatalf("IsKind should match the wrapped kind")
	}
	if IsKind(err, KindIoError) {
		t.Fatalf("IsKind should not match a different kind")
	}
	if IsKind(errors.New("plain"), KindNotFound) {
		t.Fatalf("IsKind should reject a non-*Error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := newErr(KindIoError, "vibrate", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is should see through Unwrap to the cause")
	}
}

func TestErrorKindString(t *testing.T) {
	cases := map[ErrorKind]string{
		KindNotFound:         "not_found",
		KindPermissionDenied: "permission_denied",
		KindIoError:          "io_error",
		KindUnsupported:      "unsupported",
		KindInvalidArgument:  "invalid_argument",
		KindExhausted:        "exhausted",
		KindAlreadyInState:   "already_in_state",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("%v.String() = %q; want %q", int(kind), got, want)
		}
	}
}
