package graph

// NodeID uniquely identifies a node within a project. Ids are assigned
// monotonically starting at 1 and are never reused, even across reloads.
type NodeID uint32

// Label tags a node with a role beyond its payload variant. The first
// label recorded against a node is always the payload variant's own
// name (see Payload.Label); additional labels are appended over the
// node's lifetime and are never removed.
type Label string

// Label constants. The payload-variant labels (Text, Link, Domain,
// WebPage, Tree, TableRow, ProjectSettings, ClassifierSettings,
// Conclusion, NamedEntitiesToExtract, ExtractedNamedEntities) double as
// the implicit first label of a node carrying that payload.
const (
	LabelText                   Label = "Text"
	LabelLink                   Label = "Link"
	LabelDomain                 Label = "Domain"
	LabelWebPage                Label = "WebPage"
	LabelTree                   Label = "Tree"
	LabelTableRow               Label = "TableRow"
	LabelProjectSettings        Label = "ProjectSettings"
	LabelClassifierSettings     Label = "ClassifierSettings"
	LabelConclusion             Label = "Conclusion"
	LabelNamedEntitiesToExtract Label = "NamedEntitiesToExtract"
	LabelExtractedNamedEntities Label = "ExtractedNamedEntities"

	LabelAddedByUser     Label = "AddedByUser"
	LabelAddedByAI       Label = "AddedByAI"
	LabelTitle           Label = "Title"
	LabelHeading         Label = "Heading"
	LabelParagraph       Label = "Paragraph"
	LabelListItem        Label = "ListItem"
	LabelUnorderedPoints Label = "UnorderedPoints"
	LabelOrderedPoints   Label = "OrderedPoints"
	LabelPartial         Label = "Partial"
	LabelContent         Label = "Content"
	LabelObjective       Label = "Objective"
	LabelSearchTerm      Label = "SearchTerm"
	LabelCrawlCondition  Label = "CrawlCondition"
	LabelClassification  Label = "Classification"
	LabelWebSearch       Label = "WebSearch"
)

// canonicalTextLabels holds the labels that make a Text node eligible for
// dedup: dedupe only when the insertion site passes one of a small set
// of canonical labels.
var canonicalTextLabels = map[Label]bool{
	LabelObjective:      true,
	LabelSearchTerm:     true,
	LabelCrawlCondition: true,
}

// EdgeLabel is a directed relationship type drawn from a closed set.
// Edges are always created in inverse pairs via AddConnection; see
// edgeInverse for the pairing table.
type EdgeLabel string

const (
	EdgeRelatedTo    EdgeLabel = "RelatedTo"
	EdgeParentOf     EdgeLabel = "ParentOf"
	EdgeChildOf      EdgeLabel = "ChildOf"
	EdgeContentOf    EdgeLabel = "ContentOf"
	EdgePathOf       EdgeLabel = "PathOf"
	EdgeOwnerOf      EdgeLabel = "OwnerOf"
	EdgeBelongsTo    EdgeLabel = "BelongsTo"
	EdgeSuggests     EdgeLabel = "Suggests"
	EdgeSuggestedFor EdgeLabel = "SuggestedFor"
	EdgeClassifies   EdgeLabel = "Classifies"
)

// edgeInverse maps each edge label to its paired inverse. RelatedTo and
// Classifies have no distinct inverse and are treated as self-inverse (a
// RelatedTo edge back is also RelatedTo).
var edgeInverse = map[EdgeLabel]EdgeLabel{
	EdgeRelatedTo:    EdgeRelatedTo,
	EdgeParentOf:     EdgeChildOf,
	EdgeChildOf:      EdgeParentOf,
	EdgeContentOf:    EdgePathOf,
	EdgePathOf:       EdgeContentOf,
	EdgeOwnerOf:      EdgeBelongsTo,
	EdgeBelongsTo:    EdgeOwnerOf,
	EdgeSuggests:     EdgeSuggestedFor,
	EdgeSuggestedFor: EdgeSuggests,
	EdgeClassifies:   EdgeClassifies,
}

// Inverse returns the paired inverse label for l, and whether l is a
// recognized edge label at all.
func (l EdgeLabel) Inverse() (EdgeLabel, bool) {
	inv, ok := edgeInverse[l]
	return inv, ok
}

// Flags is a bitset of per-node processing state.
type Flags uint8

const (
	FlagIsProcessed Flags = 1 << iota
	FlagIsRequesting
	FlagIsBlocked
	FlagHadError
)

// Has reports whether f has the bit b set.
func (f Flags) Has(b Flags) bool { return f&b != 0 }

// Set returns f with bit b set.
func (f Flags) Set(b Flags) Flags { return f | b }

// Clear returns f with bit b cleared.
func (f Flags) Clear(b Flags) Flags { return f &^ b }
