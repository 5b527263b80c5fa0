package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize/english"
)

const markerPrefix = "<!-- cdk-drift-report:"

// Marker is the hidden first line of every rendered report. It identifies
// the comment to replace on the next run with the same title.
func Marker(title string) string {
	return markerPrefix + title + " -->"
}

// Render serializes a report to Markdown. It only formats; the same report
// always renders to the same text.
func Render(r *Report) string {
	var b strings.Builder

	b.WriteString(Marker(r.Title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "## %s\n\n", r.Title)
	b.WriteString(banner(r))

	for _, s := range r.Stacks {
		b.WriteString("\n")
		renderStack(&b, s, r.DriftDetection)
	}

	if r.Commit != "" {
		fmt.Fprintf(&b, "\n<sub>Commit %s</sub>\n", r.Commit)
	}
	return b.String()
}

func banner(r *Report) string {
	var b strings.Builder
	if r.EditedCount == 0 {
		b.WriteString("**No stack has differences.**")
	} else {
		fmt.Fprintf(&b, "**%s with differences.**", english.Plural(r.EditedCount, "stack", ""))
	}

	if r.DriftDetection {
		if r.Drifted {
			b.WriteString(" :rotating_light: Drift detected.")
		} else {
			b.WriteString(" :white_check_mark: No drift detected.")
		}
	}
	b.WriteString("\n")
	return b.String()
}

func renderStack(b *strings.Builder, s StackReport, driftColumn bool) {
	fmt.Fprintf(b, "### %s (%s)", code(s.Name), heading(s))
	if s.DriftedOverall {
		b.WriteString(" :rotating_light: drifted")
	}
	b.WriteString("\n\n")

	if len(s.Rows) == 0 {
		b.WriteString("_No resources._\n")
		return
	}

	if driftColumn {
		b.WriteString("| Resource | Type | Diff | Drift |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
	} else {
		b.WriteString("| Resource | Type | Diff |\n")
		b.WriteString("| --- | --- | --- |\n")
	}

	for _, row := range s.Rows {
		fmt.Fprintf(b, "| %s | %s | %s |", code(cell(row.LogicalID)), typeCell(row.ResourceType), cell(string(row.DiffLabel)))
		if driftColumn {
			fmt.Fprintf(b, " %s |", driftCell(row))
		}
		b.WriteString("\n")
	}
}

func heading(s StackReport) string {
	if s.Classification == Changed && s.Diff != nil {
		return fmt.Sprintf("changed, %s", english.Plural(s.Diff.DifferenceCount, "difference", ""))
	}
	return s.Classification.String()
}

func typeCell(t string) string {
	if t == "" {
		return ""
	}
	return code(cell(t))
}

func driftCell(row ResourceRow) string {
	switch row.DriftLabel {
	case DriftWarning:
		return ":warning: not checked"
	case DriftAlert:
		if row.DriftLink == "" {
			return ":x: modified"
		}
		return fmt.Sprintf("[:x: modified](%s)", row.DriftLink)
	case DriftSuccess:
		return ":white_check_mark: in sync"
	}
	return ""
}

// code wraps s in an inline code span whose backtick fence is longer than
// any backtick run inside s.
func code(s string) string {
	fence := "`"
	for strings.Contains(s, fence) {
		fence += "`"
	}
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		s = " " + s + " "
	}
	return fence + s + fence
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
