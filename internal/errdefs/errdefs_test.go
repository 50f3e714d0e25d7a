package errdefs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(ESourceMissing, "bundle source not found")
	want := "E_SOURCE_MISSING: bundle source not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := os.ErrPermission
	err := Wrap(EPermission, "cannot write target parent", cause)

	if !errors.Is(err, os.ErrPermission) {
		t.Error("wrapped error should match cause via errors.Is")
	}
	if GetCode(err) != EPermission {
		t.Errorf("GetCode = %q, want %q", GetCode(err), EPermission)
	}
}

func TestGetCodeThroughWrapping(t *testing.T) {
	inner := New(EManifestCorrupt, "manifest.json is not valid JSON")
	outer := fmt.Errorf("loading manifest: %w", inner)

	if GetCode(outer) != EManifestCorrupt {
		t.Errorf("GetCode through fmt wrap = %q, want %q", GetCode(outer), EManifestCorrupt)
	}
}

func TestGetCodeNonPackError(t *testing.T) {
	if code := GetCode(errors.New("plain")); code != "" {
		t.Errorf("GetCode(plain error) = %q, want empty", code)
	}
	if code := GetCode(nil); code != "" {
		t.Errorf("GetCode(nil) = %q, want empty", code)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"usage", New(EUsage, "bad flag"), ExitUsage},
		{"interrupted", New(EInterrupted, "signal received"), ExitInterrupted},
		{"generic", New(ESwapFailed, "rename failed"), ExitFailure},
		{"plain error", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, New(ELocked, "installation root is locked"))

	out := buf.String()
	if !strings.Contains(out, "error_code: E_LOCKED") {
		t.Errorf("missing error_code line: %q", out)
	}
	if !strings.Contains(out, "installation root is locked") {
		t.Errorf("missing message line: %q", out)
	}
}
