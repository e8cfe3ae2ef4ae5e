package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Link is one entry of a HAL _links block.
type Link struct {
	Href string `json:"href"`
}

// Links maps link relations to targets.
type Links map[string]Link

// Href returns the target of a relation, with any URI template suffix
// (for example "{?projection}") stripped.
func (l Links) Href(rel string) (string, bool) {
	link, ok := l[rel]
	if !ok || link.Href == "" {
		return "", false
	}
	href := link.Href
	if i := strings.Index(href, "{"); i >= 0 {
		href = href[:i]
	}
	return href, true
}

// Page is the HAL page block of a paginated collection.
type Page struct {
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	Number        int `json:"number"`
}

// Document is a generic HAL resource: links, embedded sections, and an
// optional page block.
type Document struct {
	Links    Links                      `json:"_links"`
	Embedded map[string]json.RawMessage `json:"_embedded"`
	Page     *Page                      `json:"page"`
}

// GetDocument fetches url as a HAL document.
func (c *Client) GetDocument(ctx context.Context, url string) (*Document, error) {
	var d Document
	if err := c.Get(ctx, url, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Follow fetches the document a relation of d points to.
func (c *Client) Follow(ctx context.Context, d *Document, rel string) (*Document, error) {
	href, ok := d.Links.Href(rel)
	if !ok {
		return nil, &MissingLinkError{Rel: rel}
	}
	c.Log().WithField("rel", rel).Debug("following link")
	return c.GetDocument(ctx, href)
}

// MissingLinkError is returned when a response lacks an expected relation.
type MissingLinkError struct {
	Rel string
}

func (e *MissingLinkError) Error() string {
	return fmt.Sprintf("response has no %q link", e.Rel)
}

// HasNext reports whether d links to a further page.
func (d *Document) HasNext() bool {
	_, ok := d.Links.Href("next")
	return ok
}

// NextPage fetches the page the "next" relation of d points to.
func (c *Client) NextPage(ctx context.Context, d *Document) (*Document, error) {
	return c.Follow(ctx, d, "next")
}

// ErrStopIteration makes EachPage and EachEmbedded return early without an
// error. No further pages are fetched once it is seen.
var ErrStopIteration = stopIteration{}

type stopIteration struct{}

func (stopIteration) Error() string { return "stop iteration" }

// EachPage calls fn for d and every following page. Iteration stops at the
// last page, on error, or when fn returns ErrStopIteration.
func (c *Client) EachPage(ctx context.Context, d *Document, fn func(*Document) error) error {
	for {
		if err := fn(d); err != nil {
			if err == ErrStopIteration {
				return nil
			}
			return err
		}
		if !d.HasNext() {
			return nil
		}
		next, err := c.NextPage(ctx, d)
		if err != nil {
			return err
		}
		d = next
	}
}

// EachEmbedded iterates the named embedded section of d and every following
// page, calling fn with each raw element. A document without the section
// contributes nothing (an empty collection has no _embedded block at all).
func (c *Client) EachEmbedded(ctx context.Context, d *Document, section string, fn func(json.RawMessage) error) error {
	return c.EachPage(ctx, d, func(page *Document) error {
		raw, ok := page.Embedded[section]
		if !ok {
			return nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("embedded %s: %w", section, err)
		}
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	})
}
