package services

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Lllllllleong/documentsummaryflow/internal/models"
)

// Link is a deep link into a source document.
type Link struct {
	Page int
	URL  string
}

// Entry is one rendered span.
type Entry struct {
	Span    models.Span
	Heading string
	Links   []Link
}

// Group collects the entries of one source file.
type Group struct {
	Name    string // source filename as emitted by the processing service
	Label   string
	Entries []Entry
}

// Display is a rendered result set. Every group starts collapsed; expansion
// state belongs to this Display only and is gone once a new one is rendered.
type Display struct {
	Mode     models.Mode
	Groups   []Group
	Files    []models.FileRef
	expanded map[string]bool
}

// Render groups spans by source filename, in first-seen order, and resolves
// their page links against files. A file with no renderable span gets no group.
func Render(records []models.ResultRecord, files []models.FileRef, mode models.Mode) *Display {
	d := &Display{
		Mode:     mode,
		Files:    files,
		expanded: make(map[string]bool),
	}
	index := make(map[string]int)
	for _, rec := range records {
		for _, span := range rec.Spans {
			entry, ok := renderEntry(span, files, mode)
			if !ok {
				continue
			}
			i, seen := index[span.SourceFilename]
			if !seen {
				i = len(d.Groups)
				index[span.SourceFilename] = i
				d.Groups = append(d.Groups, Group{
					Name:  span.SourceFilename,
					Label: models.DisplayLabel(span.SourceFilename),
				})
			}
			d.Groups[i].Entries = append(d.Groups[i].Entries, entry)
		}
	}
	return d
}

// RenderContent rebuilds a Display from a persisted grouping.
func RenderContent(content models.DisplayedContent) *Display {
	records := make([]models.ResultRecord, 0, len(content.Order))
	for _, name := range content.Order {
		records = append(records, models.ResultRecord{Spans: content.Groups[name]})
	}
	return Render(records, content.Files, content.Mode)
}

func renderEntry(span models.Span, files []models.FileRef, mode models.Mode) (Entry, bool) {
	url := resolveFileURL(span, files)
	entry := Entry{Span: span}

	switch {
	case mode == models.ModeTimeline && (span.Pages.Listed || len(span.Pages.Pages) > 0):
		if len(span.Pages.Pages) == 0 {
			entry.Heading = "Pages unavailable"
			break
		}
		pages := make([]string, len(span.Pages.Pages))
		for i, p := range span.Pages.Pages {
			pages[i] = strconv.Itoa(p)
			if url != "" {
				entry.Links = append(entry.Links, Link{Page: p, URL: pageURL(url, p)})
			}
		}
		entry.Heading = "Pages " + strings.Join(pages, ", ")
	case span.Pages.Range != nil:
		r := span.Pages.Range
		entry.Heading = fmt.Sprintf("Pages %d - %d", r.Start, r.End)
		if url != "" {
			entry.Links = []Link{{Page: r.Start, URL: pageURL(url, r.Start)}}
		}
	default:
		return Entry{}, false
	}
	return entry, true
}

// resolveFileURL finds the document a span came from. An exact correlation key
// match wins; otherwise the first file whose name contains the key is used.
func resolveFileURL(span models.Span, files []models.FileRef) string {
	if span.Key == "" {
		return ""
	}
	for _, f := range files {
		if f.Key == span.Key {
			return f.PDFFileURL
		}
	}
	for _, f := range files {
		if strings.Contains(f.Filename, span.Key) {
			return f.PDFFileURL
		}
	}
	return ""
}

func pageURL(fileURL string, page int) string {
	return fmt.Sprintf("%s#page=%d", fileURL, page)
}

// Toggle flips the expansion of one group and returns its new state.
func (d *Display) Toggle(name string) bool {
	d.expanded[name] = !d.expanded[name]
	return d.expanded[name]
}

// Expanded reports whether the named group is expanded.
func (d *Display) Expanded(name string) bool {
	return d.expanded[name]
}

// ExpandAll expands every group.
func (d *Display) ExpandAll() {
	for _, g := range d.Groups {
		d.expanded[g.Name] = true
	}
}

// Empty reports whether there is nothing to show.
func (d *Display) Empty() bool {
	return d == nil || len(d.Groups) == 0
}

// Content returns the serializable grouping of the display.
func (d *Display) Content() models.DisplayedContent {
	content := models.DisplayedContent{
		Mode:   d.Mode,
		Groups: make(map[string][]models.Span, len(d.Groups)),
		Files:  d.Files,
	}
	for _, g := range d.Groups {
		content.Order = append(content.Order, g.Name)
		spans := make([]models.Span, 0, len(g.Entries))
		for _, e := range g.Entries {
			spans = append(spans, e.Span)
		}
		content.Groups[g.Name] = spans
	}
	return content
}

// WriteText writes a plain-text view. Collapsed groups show only their label.
func (d *Display) WriteText(w io.Writer) error {
	for _, g := range d.Groups {
		marker := "+"
		if d.expanded[g.Name] {
			marker = "-"
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", marker, g.Label); err != nil {
			return err
		}
		if !d.expanded[g.Name] {
			continue
		}
		for _, e := range g.Entries {
			if _, err := fmt.Fprintf(w, "    %s\n", e.Heading); err != nil {
				return err
			}
			for _, line := range strings.Split(e.Span.Text, "\n") {
				if _, err := fmt.Fprintf(w, "    %s\n", line); err != nil {
					return err
				}
			}
			for _, l := range e.Links {
				if _, err := fmt.Fprintf(w, "    View PDF File (Page %d): %s\n", l.Page, l.URL); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
	}
	return nil
}
