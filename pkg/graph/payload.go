package graph

import "time"

// Payload is a tagged variant carried by a Node. Concrete implementations
// are the structs below; Label reports the variant's own name, which
// doubles as the node's implicit first label.
type Payload interface {
	Label() Label
}

// TextPayload holds a bare string and backs Title, Heading, Paragraph,
// ListItem, Objective, SearchTerm and CrawlCondition nodes — the variant
// is shared, the label attached at creation time disambiguates.
type TextPayload struct {
	Content string `json:"content"`
}

func (TextPayload) Label() Label { return LabelText }

// LinkPayload is a URL path (scoped to an owning Domain node). domainID
// identifies that owning Domain for dedup purposes only — it is never
// part of the wire format (unexported, so encoding/json never touches
// it); on reload rebuildIndexes recovers it from the persisted BelongsTo
// edge instead.
type LinkPayload struct {
	Path      string `json:"path"`
	Query     string `json:"query,omitempty"`
	IsFetched bool   `json:"is_fetched"`

	domainID NodeID
}

func (LinkPayload) Label() Label { return LabelLink }

// FullPath renders the path and optional query as it would be requested.
func (l LinkPayload) FullPath() string {
	if l.Query == "" {
		return l.Path
	}
	return l.Path + "?" + l.Query
}

// DomainPayload tracks a crawled domain's crawl permission and freshness.
type DomainPayload struct {
	Name              string     `json:"name"`
	IsAllowedToCrawl  bool       `json:"is_allowed_to_crawl"`
	LastFetchedAt     *time.Time `json:"last_fetched_at,omitempty"`
}

func (DomainPayload) Label() Label { return LabelDomain }

// WebPagePayload holds fetched HTML and its processing state within the
// scrape/classify/extract pipeline.
type WebPagePayload struct {
	Contents     string `json:"contents"`
	IsScraped    bool   `json:"is_scraped"`
	IsClassified bool   `json:"is_classified"`
	IsExtracted  bool   `json:"is_extracted"`
}

func (WebPagePayload) Label() Label { return LabelWebPage }

// TreePayload is an inner structural marker with no data of its own; it
// groups children under a label such as UnorderedPoints or OrderedPoints.
type TreePayload struct{}

func (TreePayload) Label() Label { return LabelTree }

// TableRowPayload holds one row of a scraped HTML table.
type TableRowPayload struct {
	Cells []string `json:"cells"`
}

func (TableRowPayload) Label() Label { return LabelTableRow }

// ProjectSettingsPayload carries the objective and crawl configuration
// for a project, as entered by the user. No processor reads or updates
// it.
type ProjectSettingsPayload struct {
	Objective          string   `json:"objective"`
	CrawlKeywords      []string `json:"crawl_keywords,omitempty"`
	CrawlContinuations []string `json:"crawl_continuations,omitempty"`
}

func (ProjectSettingsPayload) Label() Label { return LabelProjectSettings }

// ClassifierSettingsPayload configures the classification processor.
type ClassifierSettingsPayload struct {
	Labels       []string `json:"labels"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

func (ClassifierSettingsPayload) Label() Label { return LabelClassifierSettings }

// ConclusionPayload is the LLM-synthesized answer to the project's
// objective, aggregated from classified content.
type ConclusionPayload struct {
	Text string `json:"text"`
}

func (ConclusionPayload) Label() Label { return LabelConclusion }

// NamedEntitiesToExtractPayload requests extraction of the listed entity
// types from connected content nodes.
type NamedEntitiesToExtractPayload struct {
	Types []string `json:"types"`
}

func (NamedEntitiesToExtractPayload) Label() Label { return LabelNamedEntitiesToExtract }

// NamedEntity is one entity recovered by the NER collaborator.
type NamedEntity struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// ExtractedNamedEntitiesPayload is the result of running NER over a
// WebPage or Text node's content.
type ExtractedNamedEntitiesPayload struct {
	Entities []NamedEntity `json:"entities"`
}

func (ExtractedNamedEntitiesPayload) Label() Label { return LabelExtractedNamedEntities }
