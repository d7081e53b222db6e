// Package model defines the records that flow from EDGAR index files into the store.
package model

import (
	"strings"
	"time"
)

// CIKWidth is the canonical width of a zero-padded Central Index Key.
const CIKWidth = 10

// DateLayout is the calendar date layout used for markers and SQL date columns.
const DateLayout = "2006-01-02"

// Company is a filer identified by its CIK.
type Company struct {
	CIK  string `json:"cik"`
	Name string `json:"company_name"`
}

// Filing is one row of an index file that passed the form allow-list.
// (CIK, FormType, DateFiled, Filename) is unique in the store.
type Filing struct {
	CIK         string    `json:"cik"`
	CompanyName string    `json:"company_name"`
	FormType    string    `json:"form_type"`
	DateFiled   time.Time `json:"date_filed"`
	Filename    string    `json:"filename"`
	URL         string    `json:"url"`
}

// Company returns the parent company described by the filing row.
func (f Filing) Company() Company {
	return Company{CIK: f.CIK, Name: f.CompanyName}
}

// Key returns the de-duplication tuple rendered as a single string.
func (f Filing) Key() string {
	return strings.Join([]string{f.CIK, f.FormType, f.DateFiled.Format(DateLayout), f.Filename}, "|")
}

// PadCIK left-pads a numeric CIK with zeros to width. Values already at or
// beyond width are returned unchanged.
func PadCIK(cik string, width int) string {
	cik = strings.TrimSpace(cik)
	if len(cik) >= width {
		return cik
	}
	return strings.Repeat("0", width-len(cik)) + cik
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a calendar date.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}
