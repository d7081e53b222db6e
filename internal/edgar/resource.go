// Package edgar schedules downloads of EDGAR company index files: one daily
// index per calendar day and one full index per calendar quarter.
package edgar

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sells-group/edgar-index/internal/model"
)

// Kind distinguishes daily from quarterly (full) index resources.
type Kind int

const (
	Daily Kind = iota + 1
	Quarterly
)

func (k Kind) String() string {
	switch k {
	case Daily:
		return "daily"
	case Quarterly:
		return "quarterly"
	default:
		return "unknown"
	}
}

// Quarter returns the calendar quarter (1-4) containing month m.
func Quarter(m time.Month) int {
	return (int(m)-1)/3 + 1
}

// Resource is one remote index file.
type Resource struct {
	Kind    Kind
	Date    time.Time // daily only
	Year    int
	Quarter int
}

// DailyResource returns the daily index resource for the calendar date of d.
func DailyResource(d time.Time) Resource {
	d = model.Day(d)
	return Resource{Kind: Daily, Date: d, Year: d.Year(), Quarter: Quarter(d.Month())}
}

// QuarterlyResource returns the full-index resource for year and quarter.
func QuarterlyResource(year, quarter int) Resource {
	return Resource{Kind: Quarterly, Year: year, Quarter: quarter}
}

// URL returns the remote location under the archives base URL.
func (r Resource) URL(base string) string {
	base = strings.TrimRight(base, "/")
	switch r.Kind {
	case Daily:
		return fmt.Sprintf("%s/edgar/daily-index/%d/QTR%d/company.%s.idx",
			base, r.Year, r.Quarter, r.Date.Format("20060102"))
	default:
		return fmt.Sprintf("%s/edgar/full-index/%d/QTR%d/company.idx",
			base, r.Year, r.Quarter)
	}
}

// LocalPath returns where the resource is stored under dir, grouped by year.
func (r Resource) LocalPath(dir string) string {
	return filepath.Join(dir, fmt.Sprint(r.Year), r.FileName())
}

// FileName is the local base name, which is also the ledger key.
func (r Resource) FileName() string {
	if r.Kind == Daily {
		return "company_" + r.Date.Format("20060102") + ".idx"
	}
	return fmt.Sprintf("company_%d_QTR%d.idx", r.Year, r.Quarter)
}

func (r Resource) String() string {
	if r.Kind == Daily {
		return "daily " + r.Date.Format(model.DateLayout)
	}
	return fmt.Sprintf("quarterly %d Q%d", r.Year, r.Quarter)
}

// DailyRange returns one daily resource per calendar day in [start, end],
// ascending. It is empty when start is after end.
func DailyRange(start, end time.Time) []Resource {
	start, end = model.Day(start), model.Day(end)
	var out []Resource
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, DailyResource(d))
	}
	return out
}

// QuarterlyRange returns one full-index resource per quarter from fromYear
// through toYear inclusive, ascending. Quarters that begin after now are
// omitted.
func QuarterlyRange(fromYear, toYear int, now time.Time) []Resource {
	curYear, curQ := now.Year(), Quarter(now.Month())
	var out []Resource
	for y := fromYear; y <= toYear; y++ {
		for q := 1; q <= 4; q++ {
			if y > curYear || (y == curYear && q > curQ) {
				return out
			}
			out = append(out, QuarterlyResource(y, q))
		}
	}
	return out
}
