package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Wire format column positions. Rater precedes the texts on the wire but
// follows them in Record.
const (
	ColSystem = iota
	ColDoc
	ColDocSegID
	ColGlobalSegID
	ColRater
	ColSource
	ColTarget
	ColCategory
	ColSeverity
	ColMetadata
)

// MinRowFields is the smallest number of tab-separated fields in a rating row.
const MinRowFields = ColMetadata

// Span markers delimiting the rated error inside source or target text.
const (
	SpanOpen  = "<v>"
	SpanClose = "</v>"
)

// Highlight classes derived from the severity of a record.
const (
	HighlightCritical = "mqm-critical"
	HighlightMajor    = "mqm-major"
	HighlightMinor    = "mqm-minor"
	HighlightTrivial  = "mqm-trivial"
	HighlightNeutral  = "mqm-neutral"
)

// TimingEvent accumulates how often an annotation UI event fired and how
// long it took in total.
type TimingEvent struct {
	Count  int     `json:"count"`
	TimeMS float64 `json:"timeMS"`
}

// Metadata is the optional tenth column of a rating row.
type Metadata struct {
	// Timestamp is the rating time in milliseconds since the epoch, if known.
	Timestamp int64 `json:"timestamp,omitempty"`

	// Note is a free-form comment left by the rater.
	Note string `json:"note,omitempty"`

	// Timing maps UI event names to their accumulated timings.
	Timing map[string]TimingEvent `json:"timing,omitempty"`
}

// UnmarshalJSON decodes metadata written by annotation tools, some of which
// store the timestamp as a string. A string timestamp contributes its leading
// integer; one with no leading digits is treated as absent.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	var aux struct {
		plain
		Timestamp json.RawMessage `json:"timestamp,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Metadata(aux.plain)
	m.Timestamp = parseTimestamp(aux.Timestamp)
	return nil
}

func parseTimestamp(raw json.RawMessage) int64 {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if ts, err := n.Int64(); err == nil {
			return ts
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	return leadingInt(strings.TrimSpace(s))
}

// leadingInt parses the optionally signed run of digits at the start of s.
func leadingInt(s string) int64 {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	ts, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// IsZero reports whether no metadata was supplied.
func (m Metadata) IsZero() bool {
	return m.Timestamp == 0 && m.Note == "" && len(m.Timing) == 0
}

// ParseMetadata interprets the metadata column. A JSON object is decoded
// into its fields; any other non-blank text becomes the note.
func ParseMetadata(raw string) Metadata {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Metadata{}
	}
	if strings.HasPrefix(raw, "{") {
		var m Metadata
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			return m
		}
	}
	return Metadata{Note: raw}
}

// String renders metadata for the wire format: a bare note when that is all
// there is, JSON otherwise.
func (m Metadata) String() string {
	if m.IsZero() {
		return ""
	}
	if m.Timestamp == 0 && len(m.Timing) == 0 && !strings.HasPrefix(m.Note, "{") {
		return m.Note
	}
	b, err := json.Marshal(m)
	if err != nil {
		return m.Note
	}
	return string(b)
}

// Record is one rating: a single error (or absence of error) that one rater
// found in one system's translation of one segment.
type Record struct {
	System      string `json:"system"`
	Doc         string `json:"doc"`
	DocSegID    string `json:"docSegId"`
	GlobalSegID string `json:"globalSegId"`

	// Source and Target hold the wire text, including any span markers.
	Source string `json:"source"`
	Target string `json:"target"`

	Rater    string   `json:"rater"`
	Category string   `json:"category"`
	Severity string   `json:"severity"`
	Metadata Metadata `json:"metadata"`

	// SrcLen and TgtLen count characters with span markers removed.
	SrcLen int `json:"srcLen"`
	TgtLen int `json:"tgtLen"`

	HighlightClass string `json:"highlightClass"`
}

// NewRecord builds a Record from wire-order fields. The caller guarantees at
// least MinRowFields entries; a missing metadata column is allowed.
func NewRecord(fields []string) Record {
	r := Record{
		System:      fields[ColSystem],
		Doc:         fields[ColDoc],
		DocSegID:    fields[ColDocSegID],
		GlobalSegID: fields[ColGlobalSegID],
		Rater:       fields[ColRater],
		Source:      fields[ColSource],
		Target:      fields[ColTarget],
		Category:    fields[ColCategory],
		Severity:    fields[ColSeverity],
	}
	if len(fields) > ColMetadata {
		r.Metadata = ParseMetadata(fields[ColMetadata])
	}
	r.SrcLen = utf8.RuneCountInString(StripSpanMarkers(r.Source))
	r.TgtLen = utf8.RuneCountInString(StripSpanMarkers(r.Target))
	r.HighlightClass = HighlightClassFor(r.Severity)
	return r
}

// Fields returns the record in wire column order.
func (r Record) Fields() []string {
	return []string{
		r.System, r.Doc, r.DocSegID, r.GlobalSegID, r.Rater,
		r.Source, r.Target, r.Category, r.Severity, r.Metadata.String(),
	}
}

// Validate checks that a record can be written in the wire format: the
// identifying fields are present and no field contains a tab or newline.
func (r Record) Validate() error {
	verr := NewValidationError("record")
	required := []struct{ name, value string }{
		{"system", r.System},
		{"doc", r.Doc},
		{"docSegId", r.DocSegID},
		{"globalSegId", r.GlobalSegID},
		{"rater", r.Rater},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			verr.AddError(f.name + ": " + ErrEmptyValue.Error())
		}
	}
	names := []string{"system", "doc", "docSegId", "globalSegId", "rater", "source", "target", "category", "severity", "metadata"}
	for i, v := range r.Fields() {
		if strings.ContainsAny(v, "\t\n\r") {
			verr.AddError(names[i] + ": contains a tab or line break")
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// TSV renders the record as one wire-format line without a trailing newline.
func (r Record) TSV() string { return strings.Join(r.Fields(), "\t") }

// Key returns the segment this record belongs to.
func (r Record) Key() SegmentKey {
	return SegmentKey{Doc: r.Doc, DocSegID: r.DocSegID, GlobalSegID: r.GlobalSegID}
}

// MarkedSource returns the source text with its span markers replaced by a
// highlight tag.
func (r Record) MarkedSource() string { return MarkSpan(r.Source, r.HighlightClass) }

// MarkedTarget returns the target text with its span markers replaced by a
// highlight tag.
func (r Record) MarkedTarget() string { return MarkSpan(r.Target, r.HighlightClass) }

// SpanLength is the number of characters inside the marked error spans of
// the source and target together. Only major and minor highlights count.
func (r Record) SpanLength() int {
	if r.HighlightClass != HighlightMajor && r.HighlightClass != HighlightMinor {
		return 0
	}
	return spanLength(r.Source) + spanLength(r.Target)
}

// HighlightClassFor maps a severity to its highlight class.
func HighlightClassFor(severity string) string {
	lsev := strings.ToLower(severity)
	switch {
	case lsev == "major" || isNonTranslation(lsev):
		return HighlightMajor
	case lsev == "minor":
		return HighlightMinor
	case lsev == "trivial":
		return HighlightTrivial
	case lsev == "critical":
		return HighlightCritical
	default:
		return HighlightNeutral
	}
}

func isNonTranslation(s string) bool {
	return strings.HasPrefix(s, "non-translation") || strings.HasPrefix(s, "non_translation")
}

// StripSpanMarkers removes every span marker from text.
func StripSpanMarkers(text string) string {
	if !strings.Contains(text, "<") {
		return text
	}
	return strings.NewReplacer(SpanOpen, "", SpanClose, "").Replace(text)
}

// MarkSpan replaces the first open and close span markers with a span
// element of the given class.
func MarkSpan(text, class string) string {
	text = strings.Replace(text, SpanOpen, `<span class="`+class+`">`, 1)
	return strings.Replace(text, SpanClose, "</span>", 1)
}

func spanLength(text string) int {
	start := strings.Index(text, SpanOpen)
	if start < 0 {
		return 0
	}
	rest := text[start+len(SpanOpen):]
	end := strings.Index(rest, SpanClose)
	if end < 0 {
		return 0
	}
	return utf8.RuneCountInString(rest[:end])
}

// JoinSources concatenates the raw text of several inputs, inserting a
// newline between them when the previous one does not already end in one.
func JoinSources(texts []string) string {
	var b strings.Builder
	for _, t := range texts {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
		b.WriteString(t)
	}
	return b.String()
}
