package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// UploadRecord is one document the processing service writes to Firestore per
// submitted file. All records of a job share the same ID.
type UploadRecord struct {
	ID               string    `firestore:"id"`
	Filename         string    `firestore:"filename"`
	PDFFileURL       string    `firestore:"pdfFileUrl"`
	JSONFileURL      string    `firestore:"jsonFileUrl,omitempty"`
	ProcessedFileURL string    `firestore:"processedFileUrl,omitempty"`
	PDFSummaryURL    string    `firestore:"pdfSummaryUrl,omitempty"`
	ProcessedData    string    `firestore:"processedData"`
	UploadedAt       time.Time `firestore:"uploadedAt,omitempty"`
}

// Ready reports whether the record carries output that can be displayed.
func (r *UploadRecord) Ready() bool {
	return r.PDFFileURL != "" && r.ProcessedData != ""
}

// ProcessedDataItem is one element of the serialized processedData array.
type ProcessedDataItem struct {
	Files []ProcessedSpan `json:"files"`
}

// ProcessedSpan is a span as the processing service emits it. Page values come
// from a language model and are decoded leniently: an unusable value drops that
// page, never the record.
type ProcessedSpan struct {
	Filename    string    `json:"filename"`
	Sentence    string    `json:"sentence"`
	StartPage   Page      `json:"start_page"`
	EndPage     Page      `json:"end_page"`
	PageNumbers *PageList `json:"page_numbers,omitempty"`
}

// Page is an optional page number given as a JSON number or a numeric string.
// Valid is false when the value is absent, null or not a whole number.
type Page struct {
	Value int
	Valid bool
}

func (p *Page) UnmarshalJSON(data []byte) error {
	p.Value, p.Valid = parsePage(data)
	return nil
}

// PageList holds the page numbers of a timeline span. Entries that are not page
// numbers ("", "3-4", null) are counted in Invalid and otherwise ignored. A
// single comma separated string is accepted as well.
type PageList struct {
	Pages   []int
	Invalid int
}

func (p *PageList) UnmarshalJSON(data []byte) error {
	*p = PageList{}
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var raw []json.RawMessage
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var joined string
		if err := json.Unmarshal(trimmed, &joined); err != nil {
			return fmt.Errorf("page_numbers: %w", err)
		}
		for _, part := range strings.Split(joined, ",") {
			item, _ := json.Marshal(part)
			raw = append(raw, item)
		}
	} else if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("page_numbers: %w", err)
	}

	for _, item := range raw {
		if n, ok := parsePage(item); ok {
			p.Pages = append(p.Pages, n)
		} else {
			p.Invalid++
		}
	}
	return nil
}

func parsePage(data []byte) (int, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return 0, false
		}
		return int(f), true
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// PageRange is an inclusive span of pages.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// PageReference points a span at its source pages: a range for the summary
// modes, a list of discrete pages for timelines. Listed is set when the service
// sent a page list, even if none of its entries were usable.
type PageReference struct {
	Range  *PageRange `json:"range,omitempty"`
	Pages  []int      `json:"pages,omitempty"`
	Listed bool       `json:"listed,omitempty"`
}

// Span is one unit of summarized text.
type Span struct {
	SourceFilename string        `json:"sourceFilename"`
	Key            string        `json:"key"`
	Text           string        `json:"text"`
	Pages          PageReference `json:"pages"`
}

// FileRef locates an original document so page links can be built.
type FileRef struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	PDFFileURL string `json:"pdfFileUrl"`
	Key        string `json:"key"`
}

// ResultRecord is the processed output for one submitted file.
type ResultRecord struct {
	DocumentID string  `json:"documentId"`
	File       FileRef `json:"file"`
	Spans      []Span  `json:"spans"`
}

// NewResultRecord converts a Firestore record into its display form. Timeline
// spans keep their page list; every span keeps a range when both ends are usable.
func NewResultRecord(documentID string, rec UploadRecord, mode Mode) (ResultRecord, error) {
	var items []ProcessedDataItem
	if err := json.Unmarshal([]byte(rec.ProcessedData), &items); err != nil {
		return ResultRecord{}, fmt.Errorf("failed to decode processedData for %s: %w", documentID, err)
	}

	out := ResultRecord{
		DocumentID: documentID,
		File: FileRef{
			ID:         documentID,
			Filename:   rec.Filename,
			PDFFileURL: rec.PDFFileURL,
			Key:        FileKey(rec.Filename),
		},
	}
	for _, item := range items {
		for _, ps := range item.Files {
			span := Span{
				SourceFilename: ps.Filename,
				Key:            SpanKey(ps.Filename),
				Text:           ps.Sentence,
			}
			if mode == ModeTimeline && ps.PageNumbers != nil {
				span.Pages.Pages = ps.PageNumbers.Pages
				span.Pages.Listed = true
			}
			if ps.StartPage.Valid && ps.EndPage.Valid {
				span.Pages.Range = &PageRange{Start: ps.StartPage.Value, End: ps.EndPage.Value}
			}
			out.Spans = append(out.Spans, span)
		}
	}
	return out, nil
}

// StripServerPrefix removes the "<jobId>_" prefix the processing service puts
// in front of every output filename. Names without such a prefix are returned
// unchanged.
func StripServerPrefix(name string) string {
	if len(name) < 2 {
		return name
	}
	// The prefix is at least one character, so a leading "_" belongs to it.
	idx := strings.Index(name[1:], "_")
	if idx < 0 {
		return name
	}
	idx++
	if strings.IndexFunc(name[:idx], unicode.IsSpace) >= 0 {
		return name
	}
	return name[idx+1:]
}

// DisplayLabel is the group heading for a span filename.
func DisplayLabel(spanFilename string) string {
	return strings.Replace(StripServerPrefix(spanFilename), ".json", "", 1)
}

// SpanKey derives the correlation key of a span's source filename
// ("<jobId>_report.pdf.json" -> "report").
func SpanKey(spanFilename string) string {
	return FileKey(strings.TrimSuffix(StripServerPrefix(spanFilename), ".json"))
}

// FileKey derives the correlation key of an original filename ("report.pdf" -> "report").
func FileKey(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}

// DisplayedContent is the last rendered grouping, persisted so a reopened
// workspace can show it again. Order keeps the group order stable.
type DisplayedContent struct {
	Mode   Mode              `json:"mode"`
	Order  []string          `json:"order"`
	Groups map[string][]Span `json:"groupedSentencePagePairs"`
	Files  []FileRef         `json:"files"`
}
