// Package scraper turns a fetched WebPage's HTML into child graph nodes
// (Title, Heading, Paragraph, ListItem, UnorderedPoints, OrderedPoints,
// Link, TableRow) by recursively walking the document with goquery's
// selection API.
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pixlieai/graphengine/pkg/graph"
)

// Scraper implements graph.Scraper using goquery to parse and walk the
// document tree.
type Scraper struct{}

// New constructs a Scraper. It holds no state: every call is independent.
func New() *Scraper { return &Scraper{} }

var whitespaceRun = regexp.MustCompile(`\s+`)

// cleanText trims, folds newlines/tabs to spaces, and collapses runs of
// whitespace to one space.
func cleanText(text string) string {
	folded := strings.NewReplacer("\n", " ", "\t", " ").Replace(text)
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(folded), " ")
}

// Scrape parses html and walks its tree, creating child nodes under
// pageID for the recognized tag set.
func (s *Scraper) Scrape(ctx context.Context, eng *graph.Engine, pageID graph.NodeID, baseURL, html string) error {
	base, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("scraper: parse base url %q: %w", baseURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("scraper: parse html: %w", err)
	}
	t := &traverser{eng: eng, pageID: pageID, base: base}
	t.traverse(doc.Selection, 0, "")
	return nil
}

// traverser walks the parsed document one level of recursion per
// element, carrying the immediate parent's node id and label down so
// "li" can tell whether it sits inside an UnorderedPoints or
// OrderedPoints list.
type traverser struct {
	eng    *graph.Engine
	pageID graph.NodeID
	base   *url.URL
}

func (t *traverser) traverse(sel *goquery.Selection, parentID graph.NodeID, parentLabel graph.Label) {
	sel.Children().Each(func(_ int, el *goquery.Selection) {
		tag := goquery.NodeName(el)
		childID, childLabel := parentID, parentLabel

		switch tag {
		case "title":
			childID, childLabel = t.addText(el, graph.LabelTitle, parentID)
		case "h1", "h2", "h3", "h4", "h5", "h6":
			childID, childLabel = t.addText(el, graph.LabelHeading, parentID)
		case "p":
			childID, childLabel = t.addText(el, graph.LabelParagraph, parentID)
		case "ul":
			childID, childLabel = t.addTree(graph.LabelUnorderedPoints, parentID)
		case "ol":
			childID, childLabel = t.addTree(graph.LabelOrderedPoints, parentID)
		case "li":
			t.addListItem(el, parentID, parentLabel)
		case "a":
			t.addLink(el)
		case "table":
			t.addTable(el)
		}

		if el.Children().Length() > 0 && tag != "table" {
			t.traverse(el, childID, childLabel)
		}
	})
}

// addText creates a Text node tagged with label and Partial, wires it as
// a child of both the WebPage and, if present, parentID.
func (t *traverser) addText(el *goquery.Selection, label graph.Label, parentID graph.NodeID) (graph.NodeID, graph.Label) {
	content := cleanText(el.Text())
	if content == "" {
		return 0, ""
	}
	result, err := t.eng.GetOrAddNode(graph.TextPayload{Content: content}, []graph.Label{label, graph.LabelPartial}, true)
	if err != nil {
		return 0, ""
	}
	t.wireChild(result.ID, parentID)
	return result.ID, label
}

// addTree creates a Tree node (a structural grouping marker, no payload
// data of its own) tagged label and Partial.
func (t *traverser) addTree(label graph.Label, parentID graph.NodeID) (graph.NodeID, graph.Label) {
	result, err := t.eng.GetOrAddNode(graph.TreePayload{}, []graph.Label{label, graph.LabelPartial}, true)
	if err != nil {
		return 0, ""
	}
	t.wireChild(result.ID, parentID)
	return result.ID, label
}

// addListItem records "li" only when its immediate parent is a
// recognized list container.
func (t *traverser) addListItem(el *goquery.Selection, parentID graph.NodeID, parentLabel graph.Label) {
	if parentLabel != graph.LabelUnorderedPoints && parentLabel != graph.LabelOrderedPoints {
		return
	}
	if parentID == 0 {
		return
	}
	content := cleanText(el.Text())
	if content == "" {
		return
	}
	result, err := t.eng.GetOrAddNode(graph.TextPayload{Content: content}, []graph.Label{graph.LabelListItem, graph.LabelPartial}, true)
	if err != nil {
		return
	}
	t.eng.AddConnection(parentID, result.ID, graph.EdgeParentOf, graph.EdgeChildOf)
}

// addLink resolves "a[href]" against the page's base URL and creates a
// Link node, skipping same-page anchors and empty link text.
func (t *traverser) addLink(el *goquery.Selection) {
	href, ok := el.Attr("href")
	if !ok || strings.HasPrefix(href, "#") {
		return
	}
	linkText := strings.TrimSpace(el.Text())
	if linkText == "" {
		return
	}

	var fullURL string
	if strings.HasPrefix(href, "https://") {
		fullURL = href
	} else {
		resolved, err := t.base.Parse(href)
		if err != nil {
			return
		}
		fullURL = resolved.String()
	}

	result, err := t.eng.GetOrAddLink(fullURL, nil)
	if err != nil {
		return
	}
	t.eng.AddConnection(t.pageID, result.ID, graph.EdgeParentOf, graph.EdgeChildOf)
}

// addTable reads a well-formed thead/tbody table into TableRow nodes —
// table-bearing pages are common enough to be worth the rows.
func (t *traverser) addTable(el *goquery.Selection) {
	var head []string
	el.Find("thead th").Each(func(_ int, th *goquery.Selection) {
		head = append(head, cleanText(th.Text()))
	})
	if len(head) == 0 {
		return
	}

	el.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, cleanText(td.Text()))
		})
		if len(cells) != len(head) {
			return
		}
		result, err := t.eng.GetOrAddNode(graph.TableRowPayload{Cells: cells}, nil, true)
		if err != nil {
			return
		}
		t.eng.AddConnection(t.pageID, result.ID, graph.EdgeParentOf, graph.EdgeChildOf)
	})
}

func (t *traverser) wireChild(childID, parentID graph.NodeID) {
	t.eng.AddConnection(t.pageID, childID, graph.EdgeParentOf, graph.EdgeChildOf)
	if parentID != 0 && parentID != t.pageID {
		t.eng.AddConnection(parentID, childID, graph.EdgeParentOf, graph.EdgeChildOf)
	}
}

var _ graph.Scraper = (*Scraper)(nil)
