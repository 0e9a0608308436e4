package graph

import (
	"net/url"
	"strings"
)

// GetOrAddDomain resolves or creates the Domain node for host, deduped by
// name. New domains default to allowed-to-crawl until
// the Domain processor evaluates robots.txt.
func (e *Engine) GetOrAddDomain(host string) (ExistingOrNew, error) {
	return e.GetOrAddNode(DomainPayload{Name: host, IsAllowedToCrawl: true}, nil, true)
}

// GetOrAddLink resolves or creates a Link node scoped to the Domain owning
// rawURL, creating the Domain first if needed and wiring the OwnerOf/
// BelongsTo edge pair between them.
func (e *Engine) GetOrAddLink(rawURL string, labels []Label) (ExistingOrNew, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ExistingOrNew{}, newGraphError("parse link url %q: %v", rawURL, err)
	}
	host := u.Host
	if host == "" {
		return ExistingOrNew{}, newGraphError("link url %q has no host", rawURL)
	}

	domainResult, err := e.GetOrAddDomain(host)
	if err != nil {
		return ExistingOrNew{}, err
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	linkResult, err := e.GetOrAddNode(LinkPayload{Path: path, Query: u.RawQuery, domainID: domainResult.ID}, labels, true)
	if err != nil {
		return ExistingOrNew{}, err
	}
	if linkResult.State == NodeStateNew {
		e.AddConnection(domainResult.ID, linkResult.ID, EdgeOwnerOf, EdgeBelongsTo)
	}
	return linkResult, nil
}

// fullURLFor renders the absolute URL for a link owned by domain.
func fullURLFor(domainName string, link LinkPayload) string {
	full := link.FullPath()
	if !strings.HasPrefix(full, "/") {
		full = "/" + full
	}
	return "https://" + domainName + full
}
