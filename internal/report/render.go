package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/famline/famline/internal/usage"
)

// Format selects the rendering of a FamilyReport.
type Format string

const (
	// FormatHuman is a fixed-order, line-by-line summary with a totals row.
	FormatHuman Format = "human"
	// FormatMachine is a complete JSON encoding of the report, round-trippable
	// back into the FamilyReport structure.
	FormatMachine Format = "machine"
)

// RenderError reports an internal formatting failure.
type RenderError struct {
	Format Format
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("unsupported output format %q", string(e.Format))
}

// Render produces the textual form of a report. It performs no network or
// session access; the only failure mode is an unsupported format.
func Render(rep usage.FamilyReport, format Format) (string, error) {
	switch format {
	case FormatHuman:
		return renderHuman(rep), nil
	case FormatMachine:
		return renderMachine(rep)
	default:
		return "", &RenderError{Format: format}
	}
}

func renderMachine(rep usage.FamilyReport) (string, error) {
	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		// A FamilyReport contains only marshalable fields.
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	return string(out) + "\n", nil
}

func renderHuman(rep usage.FamilyReport) string {
	header := color.New(color.Bold)
	dim := color.New(color.Faint)
	warn := color.New(color.FgRed)
	flag := color.New(color.FgCyan)

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 2, 4, 2, ' ', 0)

	fmt.Fprintln(w, header.Sprint("LINE\tTYPE\tDATA\tVOICE\tSMS\tCYCLE END"))

	for _, entry := range rep.Lines {
		if entry.Unavailable {
			reason := entry.Reason
			if reason == "" {
				reason = "unknown"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t\t\t\n",
				entry.Line.Number, entry.Line.Type,
				warn.Sprintf("unavailable (%s)", reason))
			continue
		}

		rec := entry.Record
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.Line.Number, entry.Line.Type,
			formatQuantity(rec.Data, formatBytes, flag),
			formatQuantity(rec.Voice, formatCount, flag),
			formatQuantity(rec.SMS, formatCount, flag),
			rec.CycleEnd)
	}

	available := rep.Totals.Lines - rep.Totals.Unavailable
	fmt.Fprintf(w, "%s\t\t%s\t%s\t%s\t\n",
		header.Sprintf("TOTAL (%d/%d lines)", available, rep.Totals.Lines),
		formatTotal(rep.Totals.Data, rep.Totals.UnlimitedData, formatBytes, flag),
		formatTotal(rep.Totals.Voice, rep.Totals.UnlimitedVoice, formatCount, flag),
		formatTotal(rep.Totals.SMS, rep.Totals.UnlimitedSMS, formatCount, flag))

	w.Flush()

	if rep.Totals.Unavailable > 0 {
		sb.WriteString(dim.Sprintf("%d line(s) could not be retrieved this run\n", rep.Totals.Unavailable))
	}

	return sb.String()
}

// formatQuantity renders "used / allowance", with the unlimited sentinel
// spelled out instead of a number.
func formatQuantity(q usage.Quantity, fmtVal func(int64) string, flag *color.Color) string {
	if q.IsUnlimited() {
		return fmtVal(q.Used) + " / " + flag.Sprint("unlimited")
	}
	return fmtVal(q.Used) + " / " + fmtVal(q.Allowance)
}

// formatTotal renders the family-wide sum, annotating it when unlimited lines
// were excluded from the numeric part.
func formatTotal(q usage.Quantity, hasUnlimited bool, fmtVal func(int64) string, flag *color.Color) string {
	s := fmtVal(q.Used) + " / " + fmtVal(q.Allowance)
	if hasUnlimited {
		s += " " + flag.Sprint("(+unlimited)")
	}
	return s
}

func formatCount(v int64) string {
	return fmt.Sprintf("%d", v)
}

// formatBytes renders a byte count in binary units with one decimal,
// matching how the portal presents data volumes.
func formatBytes(v int64) string {
	switch {
	case v >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(v)/float64(1<<30))
	case v >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(v)/float64(1<<20))
	case v >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(v)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", v)
	}
}
