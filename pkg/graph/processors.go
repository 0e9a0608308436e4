package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// defaultProcessors builds the standard payload-label -> Processor
// dispatch table used by a tick's node-processing pass.
func defaultProcessors() map[Label]Processor {
	return map[Label]Processor{
		LabelLink:                   processLink,
		LabelWebPage:                processWebPage,
		LabelDomain:                 processDomain,
		LabelObjective:              processObjective,
		LabelWebSearch:              processWebSearch,
		LabelClassifierSettings:     processClassifierSettings,
		LabelConclusion:             processConclusion,
		LabelNamedEntitiesToExtract: processNamedEntities,
	}
}

// processLink drives a Link node through fetch -> scrape handoff. It
// fetches only while the owning domain's IsAllowedToCrawl is true; a
// domain whose robots.txt has not been evaluated yet still carries its
// default (allowed), so the link does not wait for the Domain processor.
func processLink(ctx context.Context, eng *Engine, id NodeID) error {
	n, err := eng.GetNodeByID(id)
	if err != nil {
		return err
	}
	link, ok := n.Payload.(LinkPayload)
	if !ok {
		return newGraphError("node %d is not a Link", id)
	}

	if result, ok := eng.takeFetchResult(id); ok {
		return finishLinkFetch(eng, id, link, result)
	}

	if link.IsFetched {
		return eng.ToggleFlag(id, FlagIsProcessed)
	}
	if n.Flags.Has(FlagIsRequesting) {
		return nil // fetch in flight, revisit next tick
	}

	domainID, domainName, ok, err := ownerDomain(eng, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil // not yet connected to its domain, wait for the edge drain
	}
	domainNode, err := eng.GetNodeByID(domainID)
	if err != nil {
		return err
	}
	domain, ok := domainNode.Payload.(DomainPayload)
	if !ok || !domain.IsAllowedToCrawl {
		return nil
	}

	return eng.FetchAPI(ctx, FetchRequest{NodeID: id, Method: "GET", URL: fullURLFor(domainName, link)})
}

func finishLinkFetch(eng *Engine, id NodeID, link LinkPayload, result FetchResult) error {
	pageResult, err := eng.GetOrAddNode(WebPagePayload{Contents: result.Contents}, nil, true)
	if err != nil {
		return err
	}
	eng.AddConnection(id, pageResult.ID, EdgeContentOf, EdgePathOf)
	link.IsFetched = true
	eng.UpdateNode(id, link)
	return eng.ToggleFlag(id, FlagIsProcessed)
}

// ownerDomain resolves the Domain node connected to a Link via BelongsTo.
func ownerDomain(eng *Engine, linkID NodeID) (NodeID, string, bool, error) {
	neighbors, err := eng.GetNodeIDsConnectedWithLabel(linkID, EdgeBelongsTo)
	if err != nil {
		return 0, "", false, err
	}
	if len(neighbors) == 0 {
		return 0, "", false, nil
	}
	domainID := neighbors[0]
	domainNode, err := eng.GetNodeByID(domainID)
	if err != nil {
		return 0, "", false, err
	}
	domain, ok := domainNode.Payload.(DomainPayload)
	if !ok {
		return 0, "", false, nil
	}
	return domainID, domain.Name, true, nil
}

// processDomain evaluates robots.txt the first time a domain is seen. On
// fetch failure it defaults to allowed (fail-open) so a transient network
// error never permanently blocks a domain.
func processDomain(ctx context.Context, eng *Engine, id NodeID) error {
	n, err := eng.GetNodeByID(id)
	if err != nil {
		return err
	}
	domain, ok := n.Payload.(DomainPayload)
	if !ok {
		return newGraphError("node %d is not a Domain", id)
	}

	if result, ok := eng.takeFetchResult(id); ok {
		domain.IsAllowedToCrawl = !disallowsAll(result.Contents)
		eng.UpdateNode(id, domain)
		return eng.ToggleFlag(id, FlagIsProcessed)
	}
	if n.Flags.Has(FlagIsRequesting) {
		return nil
	}

	if eng.fetcher == nil {
		// No fetcher configured: fail open and move on.
		return eng.ToggleFlag(id, FlagIsProcessed)
	}
	return eng.FetchAPI(ctx, FetchRequest{
		NodeID: id,
		Method: "GET",
		URL:    "https://" + domain.Name + "/robots.txt",
	})
}

// disallowsAll reports whether a robots.txt body blocks every path for
// every user agent. A conservative, line-oriented check; a full parser is
// out of scope for this core.
func disallowsAll(body string) bool {
	lines := strings.Split(body, "\n")
	blocking := false
	for _, line := range lines {
		line = strings.TrimSpace(strings.ToLower(line))
		switch {
		case line == "user-agent: *":
			blocking = true
		case strings.HasPrefix(line, "user-agent:"):
			blocking = false
		case blocking && line == "disallow: /":
			return true
		}
	}
	return false
}

// processObjective composes an LLM prompt from the Objective-labeled Text
// node's content, and on response creates WebSearch/CrawlCondition children.
func processObjective(ctx context.Context, eng *Engine, id NodeID) error {
	n, err := eng.GetNodeByID(id)
	if err != nil {
		return err
	}
	objective, ok := n.Payload.(TextPayload)
	if !ok {
		return newGraphError("node %d is not an Objective Text node", id)
	}
	if eng.llm == nil {
		return eng.ToggleFlag(id, FlagIsProcessed)
	}

	if result, ok := eng.takeFetchResult(id); ok {
		var parsed struct {
			CrawlKeywords      []string `json:"crawl_keywords"`
			CrawlContinuations []string `json:"crawl_continuations"`
		}
		if err := eng.llm.ParseResponse([]byte(result.Contents), &parsed); err != nil {
			return err
		}
		for _, kw := range parsed.CrawlKeywords {
			searchResult, err := eng.GetOrAddNode(TextPayload{Content: kw}, []Label{LabelWebSearch}, true)
			if err != nil {
				return err
			}
			eng.AddConnection(id, searchResult.ID, EdgeSuggests, EdgeSuggestedFor)
		}
		for _, cond := range parsed.CrawlContinuations {
			condResult, err := eng.GetOrAddNode(TextPayload{Content: cond}, []Label{LabelCrawlCondition}, true)
			if err != nil {
				return err
			}
			eng.AddConnection(id, condResult.ID, EdgeSuggests, EdgeSuggestedFor)
		}
		return eng.ToggleFlag(id, FlagIsProcessed)
	}
	if n.Flags.Has(FlagIsRequesting) {
		return nil
	}

	prompt := fmt.Sprintf(
		"Given the objective %q, list web search keywords to crawl and conditions to stop crawling, as JSON.",
		objective.Content,
	)
	req, err := eng.llm.BuildRequest(prompt, id)
	if err != nil {
		return err
	}
	return eng.FetchAPI(ctx, req)
}

// processWebPage hands unscraped HTML to the scraper collaborator, which
// creates the page's child structure via the engine API.
func processWebPage(ctx context.Context, eng *Engine, id NodeID) error {
	n, err := eng.GetNodeByID(id)
	if err != nil {
		return err
	}
	page, ok := n.Payload.(WebPagePayload)
	if !ok {
		return newGraphError("node %d is not a WebPage", id)
	}
	if page.IsScraped {
		return eng.ToggleFlag(id, FlagIsProcessed)
	}
	if eng.scraper == nil {
		return eng.ToggleFlag(id, FlagIsProcessed)
	}

	baseURL := ""
	if domainID, domainName, ok, err := ownerPageDomain(eng, id); err == nil && ok {
		_ = domainID
		baseURL = "https://" + domainName
	}
	if err := eng.scraper.Scrape(ctx, eng, id, baseURL, page.Contents); err != nil {
		return err
	}
	page.IsScraped = true
	eng.UpdateNode(id, page)
	return eng.ToggleFlag(id, FlagIsProcessed)
}

// ownerPageDomain resolves the domain owning the Link that a WebPage is
// the content of, by walking PathOf then BelongsTo.
func ownerPageDomain(eng *Engine, pageID NodeID) (NodeID, string, bool, error) {
	links, err := eng.GetNodeIDsConnectedWithLabel(pageID, EdgePathOf)
	if err != nil || len(links) == 0 {
		return 0, "", false, err
	}
	return ownerDomain(eng, links[0])
}

// processWebSearch emits a search-API fetch request and, on response,
// reads the body as a JSON array of URLs and adds a Link node for each.
// The Link nodes are not connected to the WebSearch node.
func processWebSearch(ctx context.Context, eng *Engine, id NodeID) error {
	n, err := eng.GetNodeByID(id)
	if err != nil {
		return err
	}
	term, ok := n.Payload.(TextPayload)
	if !ok {
		return newGraphError("node %d is not a search Text", id)
	}

	if result, ok := eng.takeFetchResult(id); ok {
		var urls []string
		if err := json.Unmarshal([]byte(result.Contents), &urls); err != nil {
			return err
		}
		for _, u := range urls {
			if _, err := eng.GetOrAddLink(u, nil); err != nil {
				eng.log.Printf("web search link %q: %v", u, err)
			}
		}
		return eng.ToggleFlag(id, FlagIsProcessed)
	}
	if n.Flags.Has(FlagIsRequesting) || eng.fetcher == nil {
		return nil
	}
	return eng.FetchAPI(ctx, FetchRequest{
		NodeID: id,
		Method: "GET",
		URL:    "https://duckduckgo.com/html/?q=" + term.Content,
	})
}

// processClassifierSettings aggregates connected text content, asks the
// LLM to classify it, and writes Classification child nodes.
func processClassifierSettings(ctx context.Context, eng *Engine, id NodeID) error {
	n, err := eng.GetNodeByID(id)
	if err != nil {
		return err
	}
	settings, ok := n.Payload.(ClassifierSettingsPayload)
	if !ok {
		return newGraphError("node %d is not ClassifierSettings", id)
	}
	if eng.llm == nil {
		return eng.ToggleFlag(id, FlagIsProcessed)
	}

	if result, ok := eng.takeFetchResult(id); ok {
		classResult, err := eng.GetOrAddNode(TextPayload{Content: result.Contents}, []Label{LabelClassification}, true)
		if err != nil {
			return err
		}
		eng.AddConnection(id, classResult.ID, EdgeClassifies, EdgeClassifies)
		return eng.ToggleFlag(id, FlagIsProcessed)
	}
	if n.Flags.Has(FlagIsRequesting) {
		return nil
	}

	content := aggregateConnectedText(eng, id)
	prompt := fmt.Sprintf("%s\n\nClassify the following content into one of: %s.\n\n%s",
		settings.SystemPrompt, strings.Join(settings.Labels, ", "), content)
	req, err := eng.llm.BuildRequest(prompt, id)
	if err != nil {
		return err
	}
	return eng.FetchAPI(ctx, req)
}

// processConclusion aggregates connected text and asks the LLM to
// synthesize an answer to the project's objective.
func processConclusion(ctx context.Context, eng *Engine, id NodeID) error {
	n, err := eng.GetNodeByID(id)
	if err != nil {
		return err
	}
	conclusion, ok := n.Payload.(ConclusionPayload)
	if !ok {
		return newGraphError("node %d is not a Conclusion", id)
	}
	if eng.llm == nil {
		return eng.ToggleFlag(id, FlagIsProcessed)
	}

	if result, ok := eng.takeFetchResult(id); ok {
		conclusion.Text = result.Contents
		eng.UpdateNode(id, conclusion)
		return eng.ToggleFlag(id, FlagIsProcessed)
	}
	if n.Flags.Has(FlagIsRequesting) {
		return nil
	}

	content := aggregateConnectedText(eng, id)
	prompt := "Summarize a conclusion from the following classified content:\n\n" + content
	req, err := eng.llm.BuildRequest(prompt, id)
	if err != nil {
		return err
	}
	return eng.FetchAPI(ctx, req)
}

// processNamedEntities round-trips a NamedEntitiesToExtract request
// through the NER collaborator into an ExtractedNamedEntities child.
func processNamedEntities(ctx context.Context, eng *Engine, id NodeID) error {
	n, err := eng.GetNodeByID(id)
	if err != nil {
		return err
	}
	req, ok := n.Payload.(NamedEntitiesToExtractPayload)
	if !ok {
		return newGraphError("node %d is not NamedEntitiesToExtract", id)
	}
	if eng.ner == nil {
		return eng.ToggleFlag(id, FlagIsProcessed)
	}

	content := aggregateConnectedText(eng, id)
	entities, err := eng.ner.Extract(ctx, content, req.Types)
	if err != nil {
		return err
	}
	result, err := eng.GetOrAddNode(ExtractedNamedEntitiesPayload{Entities: entities}, nil, true)
	if err != nil {
		return err
	}
	eng.AddConnection(id, result.ID, EdgeRelatedTo, EdgeRelatedTo)
	return eng.ToggleFlag(id, FlagIsProcessed)
}

// aggregateConnectedText walks every RelatedTo/ContentOf/Classifies neighbor of id
// and concatenates any Text or WebPage content found, for processors that
// need a flattened view of a node's subtree before calling the LLM.
func aggregateConnectedText(eng *Engine, id NodeID) string {
	var parts []string
	for _, label := range []EdgeLabel{EdgeRelatedTo, EdgeContentOf, EdgeClassifies} {
		neighbors, err := eng.GetNodeIDsConnectedWithLabel(id, label)
		if err != nil {
			continue
		}
		for _, nid := range neighbors {
			node, err := eng.GetNodeByID(nid)
			if err != nil {
				continue
			}
			switch p := node.Payload.(type) {
			case TextPayload:
				parts = append(parts, p.Content)
			case WebPagePayload:
				parts = append(parts, p.Contents)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}
