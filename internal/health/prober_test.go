package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: only 2xx status codes classify as healthy, every other code is
// unhealthy regardless of value.
func TestPropertyHealthyClassification(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("2xx is healthy", prop.ForAll(
		func(code int) bool {
			return Healthy(code)
		},
		gen.IntRange(200, 299),
	))

	properties.Property("non-2xx is unhealthy", prop.ForAll(
		func(code int) bool {
			if code >= 200 && code < 300 {
				return true // out of scope for this sub-property
			}
			return !Healthy(code)
		},
		gen.IntRange(100, 599),
	))

	properties.TestingRun(t)
}

func TestCheckRetainsStatusCode(t *testing.T) {
	probe := func(ctx context.Context, url string) (int, error) {
		return http.StatusBadGateway, nil
	}
	result := NewProberWithProbe(probe).Check(context.Background(), "https://app.example.com")
	if result.Healthy {
		t.Errorf("502 classified healthy")
	}
	if result.StatusCode != http.StatusBadGateway {
		t.Errorf("status code %d, want 502", result.StatusCode)
	}
	if result.Error != "" {
		t.Errorf("unexpected error %q", result.Error)
	}
}

func TestCheckTransportErrorIsUnhealthy(t *testing.T) {
	probe := func(ctx context.Context, url string) (int, error) {
		return 0, errors.New("dial tcp: connection refused")
	}
	result := NewProberWithProbe(probe).Check(context.Background(), "https://down.example.com")
	if result.Healthy {
		t.Errorf("transport error classified healthy")
	}
	if result.Error == "" {
		t.Errorf("error detail lost")
	}
}

func TestCheckEmptyURL(t *testing.T) {
	called := false
	probe := func(ctx context.Context, url string) (int, error) {
		called = true
		return http.StatusOK, nil
	}
	result := NewProberWithProbe(probe).Check(context.Background(), "")
	if result.Healthy || called {
		t.Errorf("empty URL must fail without probing (healthy=%v called=%v)", result.Healthy, called)
	}
}

func TestDefaultProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	code, err := DefaultProbe(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("DefaultProbe: %v", err)
	}
	if code != http.StatusNoContent {
		t.Errorf("status %d, want 204", code)
	}
}
