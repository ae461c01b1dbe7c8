package preview

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadlink/internal/domain"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestClientAgainstServer(t *testing.T) {
	var gotURL string
	fetcher := FetcherFunc(func(ctx context.Context, url string) (domain.LinkPreview, error) {
		gotURL = url
		return domain.LinkPreview{
			URL:         url,
			Title:       "Example Domain",
			Description: "An example.",
			Image:       "https://example.com/og.png",
			Domain:      "example.com",
		}, nil
	})

	srv := httptest.NewServer(NewServer(fetcher, testLogger()))
	defer srv.Close()

	client := NewClient(srv.URL+"/", 5*time.Second)
	p, err := client.Fetch(context.Background(), "https://example.com/a?b=c&d=e")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/a?b=c&d=e", gotURL, "query parameters must survive escaping")
	assert.Equal(t, "Example Domain", p.Title)
	assert.Equal(t, "An example.", p.Description)
	assert.Equal(t, "https://example.com/og.png", p.Image)
	assert.Equal(t, "example.com", p.Domain)
}

func TestClient_ServerFailureCarriesMessage(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context, url string) (domain.LinkPreview, error) {
		return domain.LinkPreview{}, &Error{Message: "That link took too long to respond."}
	})
	srv := httptest.NewServer(NewServer(fetcher, testLogger()))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background(), "https://slow.example.com")
	require.Error(t, err)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "That link took too long to respond.", pe.Message)
}

func TestClient_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background(), "https://example.com")
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, DefaultErrorMessage, pe.Message)
}

func TestClient_Non200WithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background(), "https://example.com")
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, DefaultErrorMessage, pe.Message)
}

func TestClient_FillsDomainFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"title":"t"}`))
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL, time.Second).Fetch(context.Background(), "https://www.Example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "https://www.Example.com/x", p.URL)
	assert.Equal(t, "example.com", p.Domain)
}

func TestServer_BadRequests(t *testing.T) {
	called := false
	fetcher := FetcherFunc(func(ctx context.Context, url string) (domain.LinkPreview, error) {
		called = true
		return domain.LinkPreview{}, nil
	})
	handler := NewServer(fetcher, testLogger())

	for _, target := range []string{"/", "/?url=", "/?url=not%20a%20url"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
	assert.False(t, called)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_NormalizesBareHost(t *testing.T) {
	var gotURL string
	fetcher := FetcherFunc(func(ctx context.Context, url string) (domain.LinkPreview, error) {
		gotURL = url
		return domain.LinkPreview{Title: "ok"}, nil
	})

	rec := httptest.NewRecorder()
	NewServer(fetcher, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?url=example.com", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com", gotURL)
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]domain.LinkPreview
	getErr  error
}

func (m *memoryCache) GetCachedPreview(ctx context.Context, url string) (*domain.LinkPreview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.entries[url]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memoryCache) SetCachedPreview(ctx context.Context, url string, p domain.LinkPreview, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[url] = p
	return nil
}

func TestCachedFetcher(t *testing.T) {
	calls := 0
	fail := false
	next := FetcherFunc(func(ctx context.Context, url string) (domain.LinkPreview, error) {
		calls++
		if fail {
			return domain.LinkPreview{}, &Error{Message: "nope"}
		}
		return domain.LinkPreview{URL: url, Title: "fresh"}, nil
	})
	cache := &memoryCache{entries: map[string]domain.LinkPreview{}}
	f := NewCachedFetcher(next, cache, time.Hour, testLogger())
	ctx := context.Background()

	p, err := f.Fetch(ctx, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "fresh", p.Title)

	_, err = f.Fetch(ctx, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second fetch should be served from cache")

	fail = true
	_, err = f.Fetch(ctx, "https://other.example.com")
	require.Error(t, err)
	assert.NotContains(t, cache.entries, "https://other.example.com")

	// A broken cache degrades to a direct fetch.
	fail = false
	cache.getErr = errors.New("disk on fire")
	_, err = f.Fetch(ctx, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", DomainOf("https://www.example.com/path"))
	assert.Equal(t, "go.dev", DomainOf("https://go.dev:443"))
	assert.Equal(t, "", DomainOf("::not a url"))
}
