// Package indexfile parses the fixed-width company.idx files published in the
// EDGAR full-index and daily-index trees.
package indexfile

import (
	"bytes"
	"iter"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/edgar-index/internal/model"
)

// DefaultArchivesURL is the base that filenames in an index are relative to.
const DefaultArchivesURL = "https://www.sec.gov/Archives"

// DefaultFormTypes is the form allow-list used when none is configured.
var DefaultFormTypes = []string{"10-K", "10-Q", "8-K"}

// Column is a half-open byte range [Start, End). End < 0 runs to end of line.
type Column struct {
	Start int
	End   int
}

// Columns locates the five fields of a data row.
type Columns struct {
	CompanyName Column
	FormType    Column
	CIK         Column
	DateFiled   Column
	Filename    Column
}

// DefaultColumns is the company.idx layout.
var DefaultColumns = Columns{
	CompanyName: Column{0, 62},
	FormType:    Column{62, 74},
	CIK:         Column{74, 86},
	DateFiled:   Column{86, 98},
	Filename:    Column{98, -1},
}

// ColumnsFromStarts builds a layout from the five field start offsets; each
// field ends where the next begins and the last runs to end of line.
func ColumnsFromStarts(starts []int) (Columns, error) {
	if len(starts) != 5 {
		return Columns{}, eris.Errorf("indexfile: need 5 column starts, got %d", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if starts[i] <= starts[i-1] || starts[i-1] < 0 {
			return Columns{}, eris.Errorf("indexfile: column starts must be ascending: %v", starts)
		}
	}
	return Columns{
		CompanyName: Column{starts[0], starts[1]},
		FormType:    Column{starts[1], starts[2]},
		CIK:         Column{starts[2], starts[3]},
		DateFiled:   Column{starts[3], starts[4]},
		Filename:    Column{starts[4], -1},
	}, nil
}

// dateLayouts are tried in order. Daily indexes use YYYYMMDD, the quarterly
// full-index uses YYYY-MM-DD.
var dateLayouts = []string{"20060102", "2006-01-02"}

// Options configures a Parser. Zero values take the defaults.
type Options struct {
	Columns     Columns
	FormTypes   []string
	MinDashes   int
	CIKWidth    int
	ArchivesURL string
}

// Parser turns raw index file bytes into filing records.
type Parser struct {
	cols      Columns
	forms     map[string]bool
	minDashes int
	cikWidth  int
	baseURL   string
}

// NewParser creates a Parser, filling unset options with defaults.
func NewParser(opts Options) *Parser {
	if opts.Columns == (Columns{}) {
		opts.Columns = DefaultColumns
	}
	if len(opts.FormTypes) == 0 {
		opts.FormTypes = DefaultFormTypes
	}
	if opts.MinDashes <= 0 {
		opts.MinDashes = 100
	}
	if opts.CIKWidth <= 0 {
		opts.CIKWidth = model.CIKWidth
	}
	if opts.ArchivesURL == "" {
		opts.ArchivesURL = DefaultArchivesURL
	}

	forms := make(map[string]bool, len(opts.FormTypes))
	for _, f := range opts.FormTypes {
		forms[strings.TrimSpace(f)] = true
	}

	return &Parser{
		cols:      opts.Columns,
		forms:     forms,
		minDashes: opts.MinDashes,
		cikWidth:  opts.CIKWidth,
		baseURL:   strings.TrimRight(opts.ArchivesURL, "/"),
	}
}

// ParseError reports that an index file could not be parsed at all.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "indexfile: " + e.Reason
}

// Stats counts what happened to each data row. Skipped counts are the
// per-file signal for rows that were silently dropped.
type Stats struct {
	Rows           int `json:"rows"`
	Records        int `json:"records"`
	SkippedForm    int `json:"skipped_form"`
	SkippedMissing int `json:"skipped_missing"`
	SkippedCIK     int `json:"skipped_cik"`
	SkippedDate    int `json:"skipped_date"`
}

// Malformed returns the number of rows dropped because they were malformed.
// Rows outside the form allow-list are not malformed.
func (s Stats) Malformed() int {
	return s.SkippedMissing + s.SkippedCIK + s.SkippedDate
}

// Document is a parsed index file whose records are produced lazily.
type Document struct {
	p     *Parser
	rows  [][]byte
	stats Stats
}

// Parse locates the separator line and returns a Document over the data rows
// that follow it. It fails with a *ParseError when there is no separator.
func (p *Parser) Parse(raw []byte) (*Document, error) {
	lines := bytes.Split(raw, []byte("\n"))
	for i, line := range lines {
		if p.isSeparator(line) {
			return &Document{p: p, rows: lines[i+1:]}, nil
		}
	}
	return nil, &ParseError{Reason: "no separator"}
}

func (p *Parser) isSeparator(line []byte) bool {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) < p.minDashes {
		return false
	}
	for _, b := range trimmed {
		if b != '-' {
			return false
		}
	}
	return true
}

// Records yields one filing per well-formed, allow-listed row. A bad row is
// counted and skipped; it never stops the rows after it. Stats are updated
// as the sequence is consumed.
func (d *Document) Records() iter.Seq[model.Filing] {
	return func(yield func(model.Filing) bool) {
		for _, line := range d.rows {
			line = bytes.TrimRight(line, "\r")
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			d.stats.Rows++

			f, ok := d.p.parseRow(line, &d.stats)
			if !ok {
				continue
			}
			d.stats.Records++
			if !yield(f) {
				return
			}
		}
	}
}

// Stats returns the counters accumulated so far.
func (d *Document) Stats() Stats {
	return d.stats
}

func (p *Parser) parseRow(line []byte, st *Stats) (model.Filing, bool) {
	name := field(line, p.cols.CompanyName)
	form := field(line, p.cols.FormType)
	cik := field(line, p.cols.CIK)
	date := field(line, p.cols.DateFiled)
	filename := field(line, p.cols.Filename)

	if !p.forms[form] {
		st.SkippedForm++
		return model.Filing{}, false
	}
	if name == "" || form == "" || cik == "" || date == "" || filename == "" {
		st.SkippedMissing++
		return model.Filing{}, false
	}
	if !isDigits(cik) || len(cik) > p.cikWidth {
		st.SkippedCIK++
		return model.Filing{}, false
	}
	filed, ok := parseDateFiled(date)
	if !ok {
		st.SkippedDate++
		return model.Filing{}, false
	}

	return model.Filing{
		CIK:         model.PadCIK(cik, p.cikWidth),
		CompanyName: name,
		FormType:    form,
		DateFiled:   filed,
		Filename:    filename,
		URL:         p.baseURL + "/" + filename,
	}, true
}

// field slices one column out of a row and decodes it as ISO-8859-1, which
// maps every byte to a rune and so never fails. A column that is out of
// range or inverted reads as empty.
func field(line []byte, c Column) string {
	if c.Start < 0 || c.Start >= len(line) {
		return ""
	}
	end := c.End
	if end < 0 || end > len(line) {
		end = len(line)
	}
	if end <= c.Start {
		return ""
	}
	raw := bytes.TrimSpace(line[c.Start:end])
	if len(raw) == 0 {
		return ""
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return strings.TrimSpace(string(decoded))
}

func parseDateFiled(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if len(s) != len(layout) {
			continue
		}
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
