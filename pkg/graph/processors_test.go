package graph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixlieai/graphengine/pkg/kv"
)

// fakeFetcher returns a canned response keyed by exact URL match.
type fakeFetcher struct {
	responses map[string]FetchResult
	err       error
}

func (f *fakeFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	if f.err != nil {
		return FetchResult{}, f.err
	}
	return f.responses[req.URL], nil
}

// fakeScraper records what it was asked to scrape and adds one fixed
// Paragraph child, to exercise the WebPage processor's handoff.
type fakeScraper struct {
	calls int
}

func (s *fakeScraper) Scrape(ctx context.Context, eng *Engine, pageID NodeID, baseURL, html string) error {
	s.calls++
	_, err := eng.GetOrAddNode(TextPayload{Content: html}, []Label{LabelParagraph}, true)
	return err
}

// fakeLLM builds a trivial request and replays a fixed JSON response.
type fakeLLM struct {
	response string
}

func (l *fakeLLM) BuildRequest(prompt string, callingNodeID NodeID) (FetchRequest, error) {
	return FetchRequest{NodeID: callingNodeID, Method: "POST", URL: "https://llm.example.com/chat"}, nil
}

func (l *fakeLLM) ParseResponse(data []byte, out any) error {
	return json.Unmarshal([]byte(l.response), out)
}

type fakeNER struct {
	entities []NamedEntity
}

func (n *fakeNER) Extract(ctx context.Context, text string, types []string) ([]NamedEntity, error) {
	return n.entities, nil
}

func newEngineWithOptions(t *testing.T, opts EngineOptions) *Engine {
	t.Helper()
	eng, err := OpenProject("test-project", kv.NewMemStore(), opts)
	require.NoError(t, err)
	return eng
}

func TestProcessDomainFailsOpenWithoutFetcher(t *testing.T) {
	eng := newEngineWithOptions(t, EngineOptions{})
	n, err := eng.GetOrAddNode(DomainPayload{Name: "example.com", IsAllowedToCrawl: true}, nil, true)
	require.NoError(t, err)
	tickUntilDry(t, eng)

	got, err := eng.GetNodeByID(n.ID)
	require.NoError(t, err)
	assert.True(t, got.Flags.Has(FlagIsProcessed))
	assert.True(t, got.Payload.(DomainPayload).IsAllowedToCrawl)
}

func TestProcessDomainAppliesDisallowAllFromRobotsTxt(t *testing.T) {
	robots := "User-agent: *\nDisallow: /\n"
	fetcher := &fakeFetcher{responses: map[string]FetchResult{
		"https://blocked.example.com/robots.txt": {Contents: robots},
	}}
	eng := newEngineWithOptions(t, EngineOptions{Fetcher: fetcher})

	n, err := eng.GetOrAddNode(DomainPayload{Name: "blocked.example.com", IsAllowedToCrawl: true}, nil, true)
	require.NoError(t, err)
	tickUntilDry(t, eng)

	got, err := eng.GetNodeByID(n.ID)
	require.NoError(t, err)
	assert.True(t, got.Flags.Has(FlagIsProcessed))
	assert.False(t, got.Payload.(DomainPayload).IsAllowedToCrawl)
}

func TestProcessLinkFetchesAndCreatesWebPage(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]FetchResult{
		"https://example.com/robots.txt": {Contents: ""},
		"https://example.com/page":       {Contents: "<html>hi</html>"},
	}}
	eng := newEngineWithOptions(t, EngineOptions{Fetcher: fetcher})

	link, err := eng.GetOrAddLink("https://example.com/page", nil)
	require.NoError(t, err)
	tickUntilDry(t, eng)

	linkNode, err := eng.GetNodeByID(link.ID)
	require.NoError(t, err)
	assert.True(t, linkNode.Payload.(LinkPayload).IsFetched)

	pages := eng.GetNodeIDsWithLabel(LabelWebPage)
	require.Len(t, pages, 1)
	pageNode, err := eng.GetNodeByID(pages[0])
	require.NoError(t, err)
	assert.Equal(t, "<html>hi</html>", pageNode.Payload.(WebPagePayload).Contents)
}

func TestProcessWebPageHandsHTMLToScraperOnce(t *testing.T) {
	scraper := &fakeScraper{}
	eng := newEngineWithOptions(t, EngineOptions{Scraper: scraper})

	n, err := eng.GetOrAddNode(WebPagePayload{Contents: "<p>hi</p>"}, nil, true)
	require.NoError(t, err)
	tickUntilDry(t, eng)

	assert.Equal(t, 1, scraper.calls)
	got, err := eng.GetNodeByID(n.ID)
	require.NoError(t, err)
	assert.True(t, got.Payload.(WebPagePayload).IsScraped)
	assert.True(t, got.Flags.Has(FlagIsProcessed))

	paragraphs := eng.GetNodeIDsWithLabel(LabelParagraph)
	assert.Len(t, paragraphs, 1)
}

func TestProcessWebPageWithoutScraperFailsOpen(t *testing.T) {
	eng := newEngineWithOptions(t, EngineOptions{})
	n, err := eng.GetOrAddNode(WebPagePayload{Contents: "<p>hi</p>"}, nil, true)
	require.NoError(t, err)
	tickUntilDry(t, eng)

	got, err := eng.GetNodeByID(n.ID)
	require.NoError(t, err)
	assert.True(t, got.Flags.Has(FlagIsProcessed))
	assert.False(t, got.Payload.(WebPagePayload).IsScraped)
}

func TestProcessObjectiveCreatesSearchAndConditionChildren(t *testing.T) {
	llm := &fakeLLM{response: `{"crawl_keywords":["go modules"],"crawl_continuations":["stop at 10 pages"]}`}
	eng := newEngineWithOptions(t, EngineOptions{LLM: llm, Fetcher: &fakeFetcher{}})

	n, err := eng.GetOrAddNode(TextPayload{Content: "learn Go"}, []Label{LabelObjective}, true)
	require.NoError(t, err)
	tickUntilDry(t, eng)

	got, err := eng.GetNodeByID(n.ID)
	require.NoError(t, err)
	assert.True(t, got.Flags.Has(FlagIsProcessed))

	searches := eng.GetNodeIDsWithLabel(LabelWebSearch)
	assert.Len(t, searches, 1)
	conditions := eng.GetNodeIDsWithLabel(LabelCrawlCondition)
	assert.Len(t, conditions, 1)
}

func TestProcessClassifierSettingsCreatesClassificationChild(t *testing.T) {
	// processClassifierSettings stores the fetch response's raw contents
	// as the classification (it never calls LLMProvider.ParseResponse),
	// so the fake fetcher is what actually supplies "spam" here.
	llm := &fakeLLM{response: `"spam"`}
	fetcher := &fakeFetcher{responses: map[string]FetchResult{
		"https://llm.example.com/chat": {Contents: "spam"},
	}}
	eng := newEngineWithOptions(t, EngineOptions{LLM: llm, Fetcher: fetcher})

	_, err := eng.GetOrAddNode(ClassifierSettingsPayload{Labels: []string{"spam", "ham"}}, nil, true)
	require.NoError(t, err)
	tickUntilDry(t, eng)

	classifications := eng.GetNodeIDsWithLabel(LabelClassification)
	require.Len(t, classifications, 1)
	node, err := eng.GetNodeByID(classifications[0])
	require.NoError(t, err)
	assert.Equal(t, "spam", node.Payload.(TextPayload).Content)
}

func TestProcessConclusionWritesSynthesizedText(t *testing.T) {
	// Same as the classifier case: the conclusion's text is the fetch
	// response's raw contents, not anything routed through ParseResponse.
	fetcher := &fakeFetcher{responses: map[string]FetchResult{
		"https://llm.example.com/chat": {Contents: "the conclusion"},
	}}
	eng := newEngineWithOptions(t, EngineOptions{LLM: &fakeLLM{}, Fetcher: fetcher})

	n, err := eng.GetOrAddNode(ConclusionPayload{}, nil, true)
	require.NoError(t, err)
	tickUntilDry(t, eng)

	got, err := eng.GetNodeByID(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "the conclusion", got.Payload.(ConclusionPayload).Text)
}

func TestProcessNamedEntitiesCreatesExtractedChild(t *testing.T) {
	ner := &fakeNER{entities: []NamedEntity{{Text: "Ada Lovelace", Type: "PERSON"}}}
	eng := newEngineWithOptions(t, EngineOptions{NER: ner})

	n, err := eng.GetOrAddNode(NamedEntitiesToExtractPayload{Types: []string{"PERSON"}}, nil, true)
	require.NoError(t, err)
	tickUntilDry(t, eng)

	got, err := eng.GetNodeByID(n.ID)
	require.NoError(t, err)
	assert.True(t, got.Flags.Has(FlagIsProcessed))

	extracted := eng.GetNodeIDsWithLabel(LabelExtractedNamedEntities)
	require.Len(t, extracted, 1)
	node, err := eng.GetNodeByID(extracted[0])
	require.NoError(t, err)
	entities := node.Payload.(ExtractedNamedEntitiesPayload).Entities
	assert.Equal(t, []NamedEntity{{Text: "Ada Lovelace", Type: "PERSON"}}, entities)
}

func TestDisallowsAllDetectsBlockingBlockAndIgnoresOthers(t *testing.T) {
	assert.True(t, disallowsAll("User-agent: *\nDisallow: /\n"))
	assert.False(t, disallowsAll("User-agent: *\nDisallow: /private\n"))
	assert.False(t, disallowsAll("User-agent: Googlebot\nDisallow: /\n"))
}
