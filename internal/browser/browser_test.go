package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if !opts.Headless {
		t.Error("Expected headless to be true by default")
	}

	if opts.Timeout != 30*time.Second {
		t.Errorf("Expected timeout to be 30s, got %v", opts.Timeout)
	}

	if opts.ViewportWidth != 1920 || opts.ViewportHeight != 1080 {
		t.Errorf("Expected viewport to be 1920x1080, got %dx%d", opts.ViewportWidth, opts.ViewportHeight)
	}

	if opts.Locale != "en-PH" {
		t.Errorf("Expected locale to be en-PH, got %s", opts.Locale)
	}

	if opts.TimezoneID != "Asia/Manila" {
		t.Errorf("Expected timezone to be Asia/Manila, got %s", opts.TimezoneID)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		connectivity bool
	}{
		{"nil", nil, false},
		{"dns failure", errors.New("page.goto: net::ERR_NAME_NOT_RESOLVED at https://ever.ph"), true},
		{"refused", errors.New("dial tcp 127.0.0.1:9222: connection refused"), true},
		{"target closed", errors.New("Target page, context or browser has been closed"), true},
		{"already tagged", fmt.Errorf("%w: boom", ErrConnectivity), true},
		{"timeout waiting for element", errors.New("Timeout 30000ms exceeded"), false},
		{"cancelled", context.Canceled, false},
		{"missing", fmt.Errorf("%w: .section-header--title", ErrElementMissing), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if tt.err == nil {
				if got != nil {
					t.Fatalf("classify(nil) = %v, want nil", got)
				}
				return
			}
			if errors.Is(got, ErrConnectivity) != tt.connectivity {
				t.Errorf("classify(%q) connectivity = %v, want %v", tt.err, !tt.connectivity, tt.connectivity)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classify(%q) lost the original error", tt.err)
			}
		})
	}
}

func TestClickResultString(t *testing.T) {
	tests := map[ClickResult]string{
		Clicked:          "clicked",
		ClickModalClosed: "modal_closed",
		ClickUnexpected:  "unexpected",
	}

	for result, expected := range tests {
		if got := result.String(); got != expected {
			t.Errorf("ClickResult(%d).String() = %q, want %q", result, got, expected)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := &Session{}

	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
