package gdrive

import (
	"errors"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/Ning0612/Treecmp/internal/domain"
)

func TestMapError(t *testing.T) {
	adapter := &Adapter{}

	tests := []struct {
		name  string
		input error
		want  error
	}{
		{"404 not found", &googleapi.Error{Code: 404}, domain.ErrNotFound},
		{"401 unauthorized", &googleapi.Error{Code: 401}, domain.ErrPermissionDenied},
		{"403 permission denied", &googleapi.Error{Code: 403}, domain.ErrPermissionDenied},
		{"notFound in message", errors.New("file notFound in drive"), domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.mapError(tt.input); !errors.Is(got, tt.want) {
				t.Errorf("mapError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapError_Passthrough(t *testing.T) {
	adapter := &Adapter{}

	if got := adapter.mapError(nil); got != nil {
		t.Errorf("mapError(nil) = %v, want nil", got)
	}

	serverErr := &googleapi.Error{Code: 500, Message: "server error"}
	if got := adapter.mapError(serverErr); got != serverErr {
		t.Errorf("500 should pass through, got %v", got)
	}

	generic := errors.New("generic error")
	if got := adapter.mapError(generic); got != generic {
		t.Errorf("generic error should pass through, got %v", got)
	}
}

func TestMapError_RateLimit(t *testing.T) {
	adapter := &Adapter{}
	input := &googleapi.Error{Code: 429}

	got := adapter.mapError(input)
	if got == nil || !strings.Contains(got.Error(), "rate limit exceeded") {
		t.Fatalf("mapError(429) = %v", got)
	}
	if !errors.Is(got, input) {
		t.Error("rate limit error should wrap the original")
	}
}
