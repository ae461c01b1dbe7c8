package preview

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"threadlink/internal/domain"
)

const userAgent = "threadlink-preview/1.0"

// maxResponseSize bounds the metadata response body.
const maxResponseSize = 1 << 20

// Client fetches previews from a remote metadata service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// serviceResponse is the wire format of the metadata service.
type serviceResponse struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Domain      string `json:"domain"`
	Error       string `json:"error,omitempty"`
}

// Fetch asks the service for the preview of rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string) (domain.LinkPreview, error) {
	endpoint := c.baseURL + "/?url=" + url.QueryEscape(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return domain.LinkPreview{}, newError(errors.Wrap(err, "failed to create preview request"))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.LinkPreview{}, newError(errors.Wrap(err, "preview request failed"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return domain.LinkPreview{}, newError(errors.Wrap(err, "failed to read preview response"))
	}

	var out serviceResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode != http.StatusOK {
		e := newError(errors.Errorf("preview service returned status %d", resp.StatusCode))
		if decodeErr == nil && out.Error != "" {
			e.Message = out.Error
		}
		return domain.LinkPreview{}, e
	}
	if decodeErr != nil {
		return domain.LinkPreview{}, newError(errors.Wrap(decodeErr, "malformed preview response"))
	}

	p := domain.LinkPreview{
		URL:         out.URL,
		Title:       out.Title,
		Description: out.Description,
		Image:       out.Image,
		Domain:      out.Domain,
	}
	if p.URL == "" {
		p.URL = rawURL
	}
	if p.Domain == "" {
		p.Domain = DomainOf(p.URL)
	}
	return p, nil
}
