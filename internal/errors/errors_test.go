package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIndexError_Error(t *testing.T) {
	e := New(ErrCategoryLayout, CodeSymlink, "symlink in data tree")
	want := "[LAYOUT:SYMLINK] symlink in data tree"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}

	cause := errors.New("permission denied")
	wrapped := Wrap(ErrCategoryIO, CodeReadDir, "listing /data", cause)
	want = "[IO:READ_DIR] listing /data: permission denied"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

func TestIndexError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	e := Wrap(ErrCategoryCache, CodeSyncAbort, "sync failed", cause)
	if !errors.Is(e, cause) {
		t.Error("errors.Is failed to find the cause")
	}
}

func TestIndexError_Is(t *testing.T) {
	e := NewLayoutError(CodeNoMeasurements, "empty benchmark directory")
	if !errors.Is(e, New(ErrCategoryLayout, CodeNoMeasurements, "")) {
		t.Error("errors with matching category and code should match")
	}
	if errors.Is(e, New(ErrCategoryLayout, CodeSymlink, "")) {
		t.Error("errors with different codes should not match")
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	e := NewDecodeError(CodeBadCBOR, "measurement record", errors.New("eof"))
	deep := fmt.Errorf("outer: %w", e)

	if GetCategory(deep) != ErrCategoryDecode {
		t.Errorf("GetCategory = %s", GetCategory(deep))
	}
	if GetCode(deep) != CodeBadCBOR {
		t.Errorf("GetCode = %s", GetCode(deep))
	}
	if GetCategory(errors.New("plain")) != "" || GetCode(errors.New("plain")) != "" {
		t.Error("plain errors should yield empty category and code")
	}
}
