package citations

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-alert-service/internal/papersources"
)

func newClientFor(serverURL string) *Client {
	return NewWithHTTPClient(
		Config{BaseURL: serverURL},
		papersources.NewHTTPClient(papersources.HTTPClientConfig{
			MinInterval: time.Millisecond,
			MaxRetries:  2,
			RetryDelay:  time.Millisecond,
		}),
		zerolog.Nop(),
	)
}

func citationsBody(creations ...string) string {
	body := "["
	for i, c := range creations {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"oci":"oci-%d","citing":"10.1/citing%d","cited":"10.1/cited","creation":"%s"}`, i, i, c)
	}
	return body + "]"
}

func TestTotalCitations(t *testing.T) {
	var requestedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.EscapedPath()
		fmt.Fprint(w, citationsBody("2025-01-10", "2025-02", "2024"))
	}))
	defer server.Close()

	client := newClientFor(server.URL)
	count, err := client.TotalCitations(context.Background(), "10.1038/s41591-025-00001-1")
	require.NoError(t, err)
	require.NotNil(t, count)
	assert.Equal(t, 3, *count)
	assert.Equal(t, "/citations/10.1038%2Fs41591-025-00001-1", requestedPath)
}

func TestTotalCitationsNormalizesDOI(t *testing.T) {
	var requestedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.EscapedPath()
		fmt.Fprint(w, citationsBody("2025-01-10"))
	}))
	defer server.Close()

	client := newClientFor(server.URL)
	_, err := client.TotalCitations(context.Background(), "https://doi.org/10.1038/S41591-025-00001-1")
	require.NoError(t, err)
	assert.Contains(t, requestedPath, "10.1038%2Fs41591-025-00001-1")
}

func TestCoverageAbsence(t *testing.T) {
	t.Run("404 means absent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := newClientFor(server.URL)
		count, err := client.TotalCitations(context.Background(), "10.9999/unknown")
		require.NoError(t, err)
		assert.Nil(t, count, "uncovered DOI must yield nil, not zero")
	})

	t.Run("empty body means absent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := newClientFor(server.URL)
		count, err := client.TotalCitations(context.Background(), "10.9999/unknown")
		require.NoError(t, err)
		assert.Nil(t, count)
	})

	t.Run("empty array means absent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "[]")
		}))
		defer server.Close()

		client := newClientFor(server.URL)
		count, err := client.TotalCitations(context.Background(), "10.9999/unknown")
		require.NoError(t, err)
		assert.Nil(t, count)
	})

	t.Run("invalid DOI means absent without a request", func(t *testing.T) {
		var calls int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
		}))
		defer server.Close()

		client := newClientFor(server.URL)
		count, err := client.TotalCitations(context.Background(), "not-a-doi")
		require.NoError(t, err)
		assert.Nil(t, count)
		assert.Zero(t, calls)
	})
}

func TestSpikeDeltaCountsReferenceMonth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, citationsBody(
			"2025-03-01", // in month
			"2025-03-31", // in month
			"2025-03",    // month precision, resolves to 2025-03-01, in month
			"2025-02-28", // before
			"2025-04-01", // after
			"2025",       // year precision, resolves to 2025-01-01, before
		))
	}))
	defer server.Close()

	client := newClientFor(server.URL)
	refMonth := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	delta, err := client.SpikeDelta(context.Background(), "10.1/test", refMonth)
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.Equal(t, 3, *delta)
}

func TestSpikeDeltaSkipsMalformedCreationDates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, citationsBody("2025-03-10", "garbage", ""))
	}))
	defer server.Close()

	client := newClientFor(server.URL)
	refMonth := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	delta, err := client.SpikeDelta(context.Background(), "10.1/test", refMonth)
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.Equal(t, 1, *delta)
}

func TestSpikeDeltaCoverageAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newClientFor(server.URL)
	delta, err := client.SpikeDelta(context.Background(), "10.9999/unknown", time.Now())
	require.NoError(t, err)
	assert.Nil(t, delta)
}

func TestServerErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newClientFor(server.URL)
	_, err := client.TotalCitations(context.Background(), "10.1/test")
	require.Error(t, err)
}

func TestParseCreation(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"2025-03-15", time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"2025-03", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2025", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"15-03-2025", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseCreation(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
