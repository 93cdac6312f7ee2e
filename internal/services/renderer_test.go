package services

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/Lllllllleong/documentsummaryflow/internal/models"
)

func span(filename, text string, pages models.PageReference) models.Span {
	return models.Span{
		SourceFilename: filename,
		Key:            models.SpanKey(filename),
		Text:           text,
		Pages:          pages,
	}
}

func pageRange(start, end int) models.PageReference {
	return models.PageReference{Range: &models.PageRange{Start: start, End: end}}
}

var testFiles = []models.FileRef{
	{ID: "1", Filename: "report.pdf", PDFFileURL: "https://files.example/report.pdf", Key: "report"},
	{ID: "2", Filename: "memo.pdf", PDFFileURL: "https://files.example/memo.pdf", Key: "memo"},
}

func TestRenderGroupsByFileInFirstSeenOrder(t *testing.T) {
	records := []models.ResultRecord{{Spans: []models.Span{
		span("job1_report.pdf.json", "one", pageRange(1, 2)),
		span("job1_memo.pdf.json", "two", pageRange(3, 3)),
		span("job1_report.pdf.json", "three", pageRange(4, 5)),
	}}}
	d := Render(records, testFiles, models.ModeBrief)

	if len(d.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(d.Groups))
	}
	if d.Groups[0].Label != "report.pdf" || d.Groups[1].Label != "memo.pdf" {
		t.Fatalf("labels = %q, %q", d.Groups[0].Label, d.Groups[1].Label)
	}
	if len(d.Groups[0].Entries) != 2 {
		t.Fatalf("report entries = %d, want 2", len(d.Groups[0].Entries))
	}

	e := d.Groups[0].Entries[1]
	if e.Heading != "Pages 4 - 5" {
		t.Errorf("heading = %q", e.Heading)
	}
	want := []Link{{Page: 4, URL: "https://files.example/report.pdf#page=4"}}
	if !reflect.DeepEqual(e.Links, want) {
		t.Errorf("links = %+v, want %+v", e.Links, want)
	}
}

func TestRenderTimelineLinksEveryPage(t *testing.T) {
	records := []models.ResultRecord{{Spans: []models.Span{
		span("job1_report.pdf.json", "event", models.PageReference{Pages: []int{2, 7}}),
		span("job1_report.pdf.json", "no pages", models.PageReference{}),
	}}}
	d := Render(records, testFiles, models.ModeTimeline)

	entries := d.Groups[0].Entries
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Heading != "Pages 2, 7" {
		t.Errorf("heading = %q", entries[0].Heading)
	}
	if len(entries[0].Links) != 2 || entries[0].Links[1].URL != "https://files.example/report.pdf#page=7" {
		t.Errorf("links = %+v", entries[0].Links)
	}
}

func TestRenderSkipsSpansWithoutRange(t *testing.T) {
	records := []models.ResultRecord{{Spans: []models.Span{
		span("job1_report.pdf.json", "no range", models.PageReference{}),
	}}}
	d := Render(records, testFiles, models.ModeDetailed)
	if len(d.Groups) != 0 {
		t.Fatalf("groups = %+v, want none", d.Groups)
	}
}

func TestRenderOmitsFilesWithoutRenderableSpans(t *testing.T) {
	records := []models.ResultRecord{{Spans: []models.Span{
		span("job1_memo.pdf.json", "no range", models.PageReference{}),
		span("job1_report.pdf.json", "kept", pageRange(2, 2)),
		span("job1_memo.pdf.json", "still no range", models.PageReference{}),
	}}}
	d := Render(records, testFiles, models.ModeBrief)
	if len(d.Groups) != 1 || d.Groups[0].Label != "report.pdf" {
		t.Fatalf("groups = %+v, want only report.pdf", d.Groups)
	}
}

func TestRenderTimelineWithoutUsablePages(t *testing.T) {
	records := []models.ResultRecord{{Spans: []models.Span{
		span("job1_report.pdf.json", "undated event", models.PageReference{Listed: true}),
		span("job1_report.pdf.json", "ranged event", pageRange(5, 6)),
	}}}
	d := Render(records, testFiles, models.ModeTimeline)

	entries := d.Groups[0].Entries
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Heading != "Pages unavailable" || len(entries[0].Links) != 0 {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Heading != "Pages 5 - 6" || len(entries[1].Links) != 1 {
		t.Errorf("second entry = %+v", entries[1])
	}
}

func TestRenderUnmatchedFileHasNoLink(t *testing.T) {
	records := []models.ResultRecord{{Spans: []models.Span{
		span("job1_unknown.pdf.json", "orphan", pageRange(1, 1)),
	}}}
	d := Render(records, testFiles, models.ModeBrief)

	e := d.Groups[0].Entries[0]
	if len(e.Links) != 0 {
		t.Fatalf("links = %+v, want none", e.Links)
	}
	if e.Heading != "Pages 1 - 1" {
		t.Fatalf("heading = %q", e.Heading)
	}
}

func TestResolveFileURLFallsBackToSubstring(t *testing.T) {
	files := []models.FileRef{{Filename: "2024 report final.pdf", PDFFileURL: "u", Key: "2024 report final"}}
	s := models.Span{Key: "report"}
	if got := resolveFileURL(s, files); got != "u" {
		t.Fatalf("resolveFileURL = %q, want u", got)
	}
}

func TestDisplayToggleIsPerGroup(t *testing.T) {
	records := []models.ResultRecord{{Spans: []models.Span{
		span("job1_report.pdf.json", "one", pageRange(1, 1)),
		span("job1_memo.pdf.json", "two", pageRange(2, 2)),
	}}}
	d := Render(records, testFiles, models.ModeBrief)
	report, memo := d.Groups[0].Name, d.Groups[1].Name

	if d.Expanded(report) || d.Expanded(memo) {
		t.Fatal("groups should start collapsed")
	}
	if !d.Toggle(report) {
		t.Fatal("toggle should expand")
	}
	if d.Expanded(memo) {
		t.Fatal("toggling one group expanded another")
	}
	if d.Toggle(report) {
		t.Fatal("second toggle should collapse")
	}

	fresh := Render(records, testFiles, models.ModeBrief)
	d.Toggle(memo)
	if fresh.Expanded(memo) {
		t.Fatal("expansion leaked into a new display")
	}
}

func TestDisplayWriteText(t *testing.T) {
	records := []models.ResultRecord{{Spans: []models.Span{
		span("job1_report.pdf.json", "line one\nline two", pageRange(3, 4)),
		span("job1_memo.pdf.json", "hidden", pageRange(1, 1)),
	}}}
	d := Render(records, testFiles, models.ModeBrief)
	d.Toggle(d.Groups[0].Name)

	var buf bytes.Buffer
	if err := d.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"- report.pdf\n",
		"    Pages 3 - 4\n",
		"    line two\n",
		"    View PDF File (Page 3): https://files.example/report.pdf#page=3\n",
		"+ memo.pdf\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("collapsed group content was written:\n%s", out)
	}
}

func TestRenderContentRoundTrip(t *testing.T) {
	records := []models.ResultRecord{{Spans: []models.Span{
		span("job1_report.pdf.json", "one", pageRange(1, 2)),
		span("job1_memo.pdf.json", "two", pageRange(3, 3)),
	}}}
	d := Render(records, testFiles, models.ModeBrief)
	again := RenderContent(d.Content())

	if !reflect.DeepEqual(again.Groups, d.Groups) {
		t.Fatalf("groups differ after round trip:\n%+v\n%+v", again.Groups, d.Groups)
	}
	if !(&Display{}).Empty() || d.Empty() {
		t.Fatal("Empty is wrong")
	}
}
