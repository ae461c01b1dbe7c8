package preview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"threadlink/internal/domain"
)

// RodFetcher implements Fetcher by loading the page in a headless browser.
type RodFetcher struct {
	log     logrus.FieldLogger
	timeout time.Duration
}

// NewRodFetcher creates a new scraping fetcher.
func NewRodFetcher(logger logrus.FieldLogger, timeout time.Duration) *RodFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RodFetcher{
		log:     logger.WithField("component", "scraper"),
		timeout: timeout,
	}
}

var (
	titleSelectors = []string{
		`meta[property="og:title"]`,
		`meta[name="twitter:title"]`,
	}
	descriptionSelectors = []string{
		`meta[property="og:description"]`,
		`meta[name="description"]`,
		`meta[name="twitter:description"]`,
	}
	imageSelectors = []string{
		`meta[property="og:image"]`,
		`meta[name="twitter:image"]`,
	}
)

// Fetch loads url and extracts its title, description and preview image.
func (s *RodFetcher) Fetch(ctx context.Context, url string) (p domain.LinkPreview, err error) {
	log := s.log.WithField("url", url)
	log.Info("Attempting to scrape metadata")

	path, exists := launcher.LookPath()
	if !exists {
		log.Error("Cannot find browser executable for rod")
		return domain.LinkPreview{}, newError(errors.New("rod browser dependency not found"))
	}
	controlURL, err := launcher.New().Bin(path).Launch()
	if err != nil {
		log.WithError(err).Error("Failed to launch rod browser")
		return domain.LinkPreview{}, newError(fmt.Errorf("failed to launch browser: %w", err))
	}
	browser := rod.New().ControlURL(controlURL)
	if err = browser.Connect(); err != nil {
		log.WithError(err).Error("Failed to connect to rod browser")
		return domain.LinkPreview{}, newError(fmt.Errorf("failed to connect to browser: %w", err))
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Error closing rod browser instance")
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		log.WithError(err).Error("Failed to create rod page")
		return domain.LinkPreview{}, newError(fmt.Errorf("failed to create page: %w", err))
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			log.WithError(closeErr).Debug("Error closing rod page")
		}
	}()

	pageCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	page = page.Context(pageCtx)

	if err = page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			log.WithError(pageCtx.Err()).Warn("Scraping timed out")
			return domain.LinkPreview{}, &Error{
				Message: "That link took too long to respond.",
				Err:     fmt.Errorf("scraping timed out for %s: %w", url, pageCtx.Err()),
			}
		}
		log.WithError(err).Error("Failed to wait for page load")
		return domain.LinkPreview{}, newError(fmt.Errorf("failed waiting for page load: %w", err))
	}

	p.URL = url
	if info, infoErr := page.Info(); infoErr == nil && info.URL != "" {
		p.URL = info.URL
	}

	p.Title = s.metaContent(page, titleSelectors)
	if p.Title == "" {
		p.Title = s.elementText(page, "title")
	}
	p.Description = s.metaContent(page, descriptionSelectors)
	p.Image = s.metaContent(page, imageSelectors)
	p.Domain = DomainOf(p.URL)

	if p.Title == "" && p.Description == "" {
		log.Warn("Page has no usable metadata")
		return domain.LinkPreview{}, newError(errors.New("no title or description found"))
	}

	log.WithField("title", p.Title).Info("Metadata scraping completed successfully")
	return p, nil
}

// metaContent returns the first non-empty content attribute among selectors.
func (s *RodFetcher) metaContent(page *rod.Page, selectors []string) string {
	for _, selector := range selectors {
		found, el, err := page.Has(selector)
		if err != nil {
			s.log.WithError(err).WithField("selector", selector).Warn("Error searching for meta tag")
			continue
		}
		if !found {
			continue
		}
		content, err := el.Attribute("content")
		if err != nil {
			s.log.WithError(err).WithField("selector", selector).Warn("Failed to get content attribute from meta tag")
			continue
		}
		if content != nil && strings.TrimSpace(*content) != "" {
			return strings.TrimSpace(*content)
		}
	}
	return ""
}

func (s *RodFetcher) elementText(page *rod.Page, selector string) string {
	found, el, err := page.Has(selector)
	if err != nil || !found {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		s.log.WithError(err).Debug("Failed to get element text")
		return ""
	}
	return strings.TrimSpace(text)
}
