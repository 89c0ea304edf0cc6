package agent

import (
	"context"
	"fmt"
	"strings"

	"campusai/pkg/ai"
	"campusai/pkg/domain"
)

// amendmentKeywords mark a message as a correction to an existing timetable
// rather than a request for a fresh one.
var amendmentKeywords = []string{"modify", "change", "remove", "drop", "swap"}

const timetableInstruction = `[Strict constraints]
1. Include every required course for the stated major, year, and term from the reference documents.
2. Only place courses whose listed target year and exact name match the course-offering listing.
3. Output a single HTML table, full width, period of day as rows and weekday as columns. Give cells of the same course a shared pastel background color.
4. Collect online or unscheduled courses into one final full-width row.`

// isAmendment reports whether a message reads as a correction to a
// previously generated timetable.
func isAmendment(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range amendmentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// generateTimetable asks the model for a schedule and returns the cleaned
// fragment plus its display kind. A response without a table element is
// demoted to plain text rather than rendered as a timetable.
func (a *Agent) generateTimetable(ctx context.Context, session *Session, message string) (string, domain.MessageKind, error) {
	profile := session.Profile
	requirements := profile.Requirements
	if session.LastTimetable != "" && isAmendment(message) {
		requirements = fmt.Sprintf("%s (amendment request: %s)", requirements, message)
	}

	blocked := "no blocked days"
	if len(profile.BlockedDays) > 0 {
		blocked = strings.Join(profile.BlockedDays, ", ") + " free"
	}

	var b strings.Builder
	b.WriteString("As an academic advisor, build a course timetable.\n")
	fmt.Fprintf(&b, "Student: %s, year %d, term %d, target %d credits.\n", profile.Major, profile.Year, profile.Term, profile.TargetCredits)
	fmt.Fprintf(&b, "Blocked days: %s. Additional requirements: %s.\n\n", blocked, requirements)
	b.WriteString(timetableInstruction)
	b.WriteString("\n\n[Reference documents]\n")
	b.WriteString(a.kb.Text())

	raw, err := ai.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return a.text.GenerateText(ctx, "", b.String())
	})
	if err != nil {
		return "", domain.KindText, err
	}

	cleaned := CleanOutput(raw)
	if !HasTable(cleaned) {
		return cleaned, domain.KindText, nil
	}
	session.LastTimetable = cleaned
	return cleaned, domain.KindHTML, nil
}
