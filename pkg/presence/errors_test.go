package presence

import (
	"errors"
	"io"
	"testing"
)

func TestDetectorErrorUnwrap(t *testing.T) {
	err := NewError(KindLandmark, "send", Wrap(ErrFrameSubmission, io.ErrUnexpectedEOF))

	if !errors.Is(err, ErrFrameSubmission) {
		t.Error("expected errors.Is(err, ErrFrameSubmission)")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected cause to be preserved")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindLandmark {
		t.Errorf("KindOf: got %q, %v", kind, ok)
	}
	want := "landmark detector: send: presence: frame submission failed: unexpected EOF"
	if err.Error() != want {
		t.Errorf("Error(): got %q, want %q", err.Error(), want)
	}
}

func TestIsDetectorFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"model unavailable", ErrModelUnavailable, true},
		{"configuration", Wrap(ErrModelConfiguration, io.EOF), true},
		{"camera", NewError(KindLandmark, "start", ErrCameraStart), true},
		{"raster", NewError(KindHeuristic, "start", ErrRasterUnavailable), true},
		{"unrelated", io.EOF, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDetectorFailure(tt.err); got != tt.want {
				t.Errorf("IsDetectorFailure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewErrorNil(t *testing.T) {
	if NewError(KindHeuristic, "start", nil) != nil {
		t.Error("NewError with nil cause should return nil")
	}
}
