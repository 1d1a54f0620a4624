// Package parser extracts structured violation data from free-text SMS
// bodies returned by the JPJ traffic-violation query service. Messages arrive
// in Bahasa Malaysia, English, or a mix of both, with no stable format, so
// extraction is keyword and pattern based. The keyword tables are data:
// adding a locale or phrase is a table edit, not a code change.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"jpjgate/internal/models"
)

// Malaysian plate format: 1-3 letters, 1-4 digits, optional trailing letter,
// optional internal spaces (e.g. "ABC1234", "W 6168 F").
var plateRe = regexp.MustCompile(`(?i)\b([A-Z]{1,3}\s?\d{1,4}\s?[A-Z]?)\b`)

// Currency amounts, e.g. "RM150.00", "RM 50".
var fineRe = regexp.MustCompile(`(?i)RM\s?(\d+\.?\d*)`)

// Phrases indicating a clean record. Checked before fine extraction so that
// unrelated numeric content in a "no summons" reply never produces a
// violation.
var noViolationPhrases = []string{
	"TIADA SAMAN",
	"NO SUMMON",
	"CLEAR",
	"BERSIH",
	"TIDAK ADA",
	"TIADA",
}

// Keywords marking a message as a traffic-authority response.
var jpjKeywords = []string{"JPJ", "SAMAN", "KOMPAUN", "SUMMON", "KESALAHAN"}

// violationTypeKeywords maps body keywords to a violation type, bilingual.
// Order matters: the first matching entry wins.
var violationTypeKeywords = []struct {
	keywords []string
	label    string
}{
	{[]string{"LAJU", "SPEED"}, "Speeding"},
	{[]string{"LAMPU MERAH", "RED LIGHT"}, "Red Light Violation"},
	{[]string{"PARK"}, "Parking Violation"},
}

const genericViolationType = "Traffic Violation"

// Parser is a pure text parser; it holds only a clock so tests can pin the
// synthesized placeholder dates.
type Parser struct {
	now func() time.Time
}

func New() *Parser {
	return &Parser{now: time.Now}
}

func NewWithClock(now func() time.Time) *Parser {
	return &Parser{now: now}
}

// Parse extracts a plate number and violation records from an SMS body. It is
// total over any input: unparseable text yields an empty result, never an
// error. No plate and no fines is a common, valid outcome.
func (p *Parser) Parse(body string) *models.ParsedViolationData {
	result := &models.ParsedViolationData{
		Violations: []models.ViolationRecord{},
		RawMessage: body,
	}

	if body == "" {
		return result
	}

	if m := plateRe.FindStringSubmatch(body); m != nil {
		plate := strings.ToUpper(strings.ReplaceAll(m[1], " ", ""))
		result.PlateNumber = &plate
	}

	upper := strings.ToUpper(body)
	for _, phrase := range noViolationPhrases {
		if strings.Contains(upper, phrase) {
			return result
		}
	}

	matches := fineRe.FindAllStringSubmatch(body, -1)
	for i, m := range matches {
		amount, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}

		violation := models.ViolationRecord{
			Type:        p.detectViolationType(upper),
			Date:        p.now().AddDate(0, 0, -14).Format("2006-01-02"),
			Location:    "As per SMS",
			FineAmount:  amount,
			Status:      "pending",
			Reference:   fmt.Sprintf("REF%06d", i+1),
			DueDate:     p.now().AddDate(0, 0, 30).Format("2006-01-02"),
			Description: strings.TrimSpace(body),
		}

		result.Violations = append(result.Violations, violation)
		result.TotalFinesAmount += amount
	}

	if len(result.Violations) > 0 {
		result.HasViolations = true
		result.HasPendingViolations = true
	}

	return result
}

// Classify determines the message intent. It runs independently of Parse.
func (p *Parser) Classify(body string) models.MessageType {
	upper := strings.ToUpper(body)
	for _, keyword := range jpjKeywords {
		if strings.Contains(upper, keyword) {
			return models.MessageTypeJPJResponse
		}
	}
	return models.MessageTypeGeneral
}

func (p *Parser) detectViolationType(upperBody string) string {
	for _, entry := range violationTypeKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(upperBody, keyword) {
				return entry.label
			}
		}
	}
	return genericViolationType
}
