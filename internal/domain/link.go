package domain

import (
	"encoding/json"
	"fmt"
)

// AttachmentLinkPreview is the attachment type carrying a serialized LinkPreview.
const AttachmentLinkPreview = "linkPreview"

// LinkPreview holds the metadata fetched for a URL found in a thread body.
// A thread carries at most one.
type LinkPreview struct {
	// URL is the canonical URL reported by the metadata source.
	URL string `json:"url,omitempty"`

	// Title scraped from og:title or the page's <title> tag.
	Title string `json:"title"`

	// Description scraped from the page's meta description tags.
	Description string `json:"description"`

	// Image is an optional preview image URL (e.g., Open Graph image).
	Image string `json:"image,omitempty"`

	// Domain is the host the preview was fetched from.
	Domain string `json:"domain,omitempty"`

	// TrueURL is the URL the user actually typed, after normalization.
	TrueURL string `json:"trueUrl,omitempty"`
}

// Attachment is auxiliary structured data bound to a thread's content.
type Attachment struct {
	AttachmentType string `json:"attachmentType"`
	Data           string `json:"data"`
}

// NewLinkPreviewAttachment serializes p into a linkPreview attachment.
func NewLinkPreviewAttachment(p LinkPreview) (Attachment, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to marshal link preview: %w", err)
	}
	return Attachment{AttachmentType: AttachmentLinkPreview, Data: string(data)}, nil
}

// LinkPreview decodes the attachment payload. It fails for attachments of any
// other type.
func (a Attachment) LinkPreview() (LinkPreview, error) {
	if a.AttachmentType != AttachmentLinkPreview {
		return LinkPreview{}, fmt.Errorf("attachment type %q is not %q", a.AttachmentType, AttachmentLinkPreview)
	}
	var p LinkPreview
	if err := json.Unmarshal([]byte(a.Data), &p); err != nil {
		return LinkPreview{}, fmt.Errorf("failed to unmarshal link preview: %w", err)
	}
	return p, nil
}

// FirstLinkPreview returns the first decodable linkPreview attachment, or nil.
func FirstLinkPreview(attachments []Attachment) *LinkPreview {
	for _, a := range attachments {
		if a.AttachmentType != AttachmentLinkPreview {
			continue
		}
		p, err := a.LinkPreview()
		if err != nil {
			continue
		}
		return &p
	}
	return nil
}
