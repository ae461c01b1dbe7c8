package preview

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"threadlink/internal/domain"
)

// Cache stores previously fetched previews keyed by URL.
type Cache interface {
	// GetCachedPreview returns nil, nil on a miss.
	GetCachedPreview(ctx context.Context, url string) (*domain.LinkPreview, error)
	SetCachedPreview(ctx context.Context, url string, p domain.LinkPreview, ttl time.Duration) error
}

// CachedFetcher serves previews from a Cache before falling back to the
// wrapped Fetcher. Failures are never cached.
type CachedFetcher struct {
	next  Fetcher
	cache Cache
	ttl   time.Duration
	log   logrus.FieldLogger
}

func NewCachedFetcher(next Fetcher, cache Cache, ttl time.Duration, logger logrus.FieldLogger) *CachedFetcher {
	return &CachedFetcher{
		next:  next,
		cache: cache,
		ttl:   ttl,
		log:   logger.WithField("component", "preview_cache"),
	}
}

func (c *CachedFetcher) Fetch(ctx context.Context, url string) (domain.LinkPreview, error) {
	log := c.log.WithField("url", url)

	cached, err := c.cache.GetCachedPreview(ctx, url)
	if err != nil {
		log.WithError(err).Warn("Preview cache lookup failed")
	} else if cached != nil {
		log.Debug("Preview cache hit")
		return *cached, nil
	}

	p, err := c.next.Fetch(ctx, url)
	if err != nil {
		return domain.LinkPreview{}, err
	}

	if err := c.cache.SetCachedPreview(ctx, url, p, c.ttl); err != nil {
		log.WithError(err).Warn("Failed to cache preview")
	}
	return p, nil
}
