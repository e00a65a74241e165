// Package opml reads and writes the article feed list as OPML.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is a category or a feed.
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Feed is one subscription with the category it was filed under.
type Feed struct {
	Category string `json:"category,omitempty"` // e.g. "Sleep"
	Title    string `json:"title"`
	URL      string `json:"url"`
}

// Parse reads an OPML document and returns its feeds in document order.
// Nested categories collapse to the outermost one; duplicate URLs are kept once.
func Parse(r io.Reader) ([]Feed, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	var feeds []Feed
	seen := make(map[string]bool)
	var walk func(outlines []Outline, category string)
	walk = func(outlines []Outline, category string) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				if seen[o.XMLURL] {
					continue
				}
				seen[o.XMLURL] = true
				title := o.Title
				if title == "" {
					title = o.Text
				}
				feeds = append(feeds, Feed{Category: category, Title: title, URL: o.XMLURL})
				continue
			}
			if len(o.Outlines) > 0 {
				name := category
				if name == "" {
					name = o.Text
					if name == "" {
						name = o.Title
					}
				}
				walk(o.Outlines, name)
			}
		}
	}
	walk(doc.Body.Outlines, "")
	return feeds, nil
}

// ParseFile parses the OPML file at path.
func ParseFile(path string) ([]Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open opml: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Export renders feeds as an OPML 2.0 document grouped by category.
func Export(title string, feeds []Feed) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: time.Now().UTC().Format(time.RFC1123Z),
		},
	}

	categories := make(map[string]*Outline)
	var order []string
	for _, f := range feeds {
		title := f.Title
		if title == "" {
			title = f.URL
		}
		o := Outline{Text: title, Title: title, Type: "rss", XMLURL: f.URL}
		if f.Category == "" {
			doc.Body.Outlines = append(doc.Body.Outlines, o)
			continue
		}
		cat, ok := categories[f.Category]
		if !ok {
			cat = &Outline{Text: f.Category, Title: f.Category}
			categories[f.Category] = cat
			order = append(order, f.Category)
		}
		cat.Outlines = append(cat.Outlines, o)
	}
	sort.Strings(order)
	for _, name := range order {
		doc.Body.Outlines = append(doc.Body.Outlines, *categories[name])
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode opml: %w", err)
	}
	return append([]byte(xml.Header), output...), nil
}

// URLs returns the feed URLs in order.
func URLs(feeds []Feed) []string {
	out := make([]string, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, f.URL)
	}
	return out
}
