package sheets

import (
	"fmt"
	"strings"
)

// AnalysisStartColumn is column V, the first column analysis is written to.
const AnalysisStartColumn = 22

// Applicant is one application row. Column positions follow the
// application form export.
type Applicant struct {
	Row                 int    `json:"row_number"`
	FirstName           string `json:"first_name"`          // C
	Surname             string `json:"surname"`             // D
	Email               string `json:"email"`               // E
	University          string `json:"university"`          // H
	Course              string `json:"course"`              // I
	RightToWork         string `json:"right_to_work"`       // K
	VisaSponsorship     string `json:"visa_sponsorship"`    // L
	GCSEMaths           string `json:"gcse_maths"`          // M
	Available           string `json:"available_sept_2026"` // N
	UnderstandingOfRole string `json:"understanding_of_role"`
	WhyCompany          string `json:"why_edf"`
	WhatStandsOut       string `json:"what_stands_out"`
	RegistrationDate    string `json:"registration_date"` // T
	// Analysis holds the cells from the analysis start column onwards.
	Analysis []string `json:"analysis,omitempty"`
}

// Name is "First Surname".
func (a Applicant) Name() string {
	return strings.TrimSpace(a.FirstName + " " + a.Surname)
}

// Prompt is the subset of an applicant sent to the completion service.
type Prompt struct {
	Row                 int    `json:"Row"`
	Name                string `json:"Name"`
	University          string `json:"University"`
	Course              string `json:"Course"`
	RightToWork         string `json:"Right_to_work"`
	VisaSponsorship     string `json:"Visa_sponsorship"`
	GCSEMaths           string `json:"GCSE_maths"`
	Available           string `json:"Available"`
	UnderstandingOfRole string `json:"Understanding_of_role"`
	WhyCompany          string `json:"Why_company"`
	WhatStandsOut       string `json:"What_stands_out"`
}

// PromptData converts an applicant for the analysis prompt.
func (a Applicant) PromptData() Prompt {
	return Prompt{
		Row:                 a.Row,
		Name:                a.Name(),
		University:          a.University,
		Course:              a.Course,
		RightToWork:         a.RightToWork,
		VisaSponsorship:     a.VisaSponsorship,
		GCSEMaths:           a.GCSEMaths,
		Available:           a.Available,
		UnderstandingOfRole: a.UnderstandingOfRole,
		WhyCompany:          a.WhyCompany,
		WhatStandsOut:       a.WhatStandsOut,
	}
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// ApplicantFromRow maps a sheet row; rowNum is its 1-based sheet row.
func ApplicantFromRow(row []string, rowNum, startCol int) Applicant {
	a := Applicant{
		Row:                 rowNum,
		FirstName:           cell(row, 2),
		Surname:             cell(row, 3),
		Email:               cell(row, 4),
		University:          cell(row, 7),
		Course:              cell(row, 8),
		RightToWork:         cell(row, 10),
		VisaSponsorship:     cell(row, 11),
		GCSEMaths:           cell(row, 12),
		Available:           cell(row, 13),
		UnderstandingOfRole: cell(row, 14),
		WhyCompany:          cell(row, 15),
		WhatStandsOut:       cell(row, 16),
		RegistrationDate:    cell(row, 19),
	}
	if startCol >= 1 && len(row) >= startCol {
		a.Analysis = append([]string(nil), row[startCol-1:]...)
	}
	return a
}

// analyzed reports whether row has a value in the analysis start column.
func analyzed(row []string, startCol int) bool {
	return cell(row, startCol-1) != ""
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Unanalyzed lists the applicants below the header row whose analysis
// start column is empty. Blank rows are skipped.
func Unanalyzed(rows [][]string, startCol int) []Applicant {
	out := []Applicant{}
	for i := 1; i < len(rows); i++ {
		if blank(rows[i]) || analyzed(rows[i], startCol) {
			continue
		}
		out = append(out, ApplicantFromRow(rows[i], i+1, startCol))
	}
	return out
}

// Analyzed lists the applicants below the header row that already carry
// an analysis.
func Analyzed(rows [][]string, startCol int) []Applicant {
	out := []Applicant{}
	for i := 1; i < len(rows); i++ {
		if !analyzed(rows[i], startCol) {
			continue
		}
		out = append(out, ApplicantFromRow(rows[i], i+1, startCol))
	}
	return out
}

// Select returns the applicants on the given 1-based sheet rows, in the
// order requested, skipping duplicates. The header row and rows beyond the
// sheet are errors.
func Select(rows [][]string, selected []int, startCol int) ([]Applicant, error) {
	seen := make(map[int]bool, len(selected))
	out := make([]Applicant, 0, len(selected))
	for _, n := range selected {
		if n < 2 || n > len(rows) {
			return nil, fmt.Errorf("sheets: row %d is not an application row (sheet has %d rows)", n, len(rows))
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, ApplicantFromRow(rows[n-1], n, startCol))
	}
	return out, nil
}
