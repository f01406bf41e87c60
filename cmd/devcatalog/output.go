package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

var (
	successColor = lipgloss.AdaptiveColor{Light: "#2E8B57", Dark: "#73F59F"}
	warningColor = lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FECA57"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF8787"}
	mutedColor   = lipgloss.AdaptiveColor{Light: "#888888", Dark: "#696969"}

	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
)

func verdictStyle(t types.CompatibilityType) lipgloss.Style {
	switch t {
	case types.CompatibilityFull:
		return successStyle.Bold(true)
	case types.CompatibilityPartial:
		return warningStyle.Bold(true)
	default:
		return errorStyle.Bold(true)
	}
}

func severityStyle(s types.Severity) lipgloss.Style {
	switch s {
	case types.SeverityHigh:
		return errorStyle
	case types.SeverityMedium:
		return warningStyle
	default:
		return successStyle
	}
}

// emit writes v as indented JSON in --json mode and calls human otherwise.
func (a *app) emit(w io.Writer, v any, human func(io.Writer)) error {
	if a.jsonOut {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}
	human(w)
	return nil
}

func renderTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("(none)"))
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}

// sortRows orders rows by their first cell.
func sortRows(rows [][]string) {
	slices.SortFunc(rows, func(a, b []string) int { return cmp.Compare(a[0], b[0]) })
}

func renderList(w io.Writer, title string, items []string, style lipgloss.Style) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(w, titleStyle.Render(title))
	for _, it := range items {
		fmt.Fprintln(w, "  "+style.Render("• "+it))
	}
}

func renderSchema(w io.Writer, s *types.CategorySchema) {
	head := fmt.Sprintf("%s@%s  %s", s.CategoryID, s.Version, s.Name)
	fmt.Fprintln(w, titleStyle.Render(head))
	if s.ParentID != "" {
		fmt.Fprintln(w, mutedStyle.Render("parent: "+s.ParentID))
	}
	if s.Deprecated {
		fmt.Fprintln(w, warningStyle.Render("deprecated: "+s.DeprecationMessage))
	}
	inherited := make(map[string]bool, len(s.InheritedFields))
	for _, f := range s.InheritedFields {
		inherited[f] = true
	}
	rows := make([][]string, 0, len(s.Fields))
	for _, name := range s.FieldNames() {
		f := s.Fields[name]
		var flags []string
		if s.IsRequired(name) {
			flags = append(flags, "required")
		}
		if inherited[name] {
			flags = append(flags, "inherited")
		}
		rows = append(rows, []string{name, string(f.Type), strings.Join(flags, ","), f.Label()})
	}
	renderTable(w, []string{"FIELD", "TYPE", "FLAGS", "LABEL"}, rows)
}

func renderMigration(w io.Writer, m *types.Migration) {
	fmt.Fprintf(w, "%s  %s %s -> %s  %s\n", titleStyle.Render(m.MigrationID), m.CategoryID, m.FromVersion, m.ToVersion, m.Status())
	if m.RollbackOf != "" {
		fmt.Fprintln(w, mutedStyle.Render("rolls back "+m.RollbackOf))
	}
	for _, op := range m.Operations {
		fmt.Fprintln(w, "  "+op.Description)
	}
	renderList(w, "Warnings", m.Warnings, warningStyle)
}

func renderResult(w io.Writer, r *types.CompatibilityResult) {
	verdict := verdictStyle(r.CompatibilityType).Render(strings.ToUpper(string(r.CompatibilityType)))
	fmt.Fprintf(w, "%s -> %s: %s\n", r.SourceDeviceID, r.TargetDeviceID, verdict)
	if r.Message != "" {
		fmt.Fprintln(w, "  "+r.Message)
	}
	renderList(w, "Limitations", r.Limitations, warningStyle)
	renderList(w, "Recommendations", r.Recommendations, mutedStyle)
	rows := make([][]string, 0, len(r.EvaluatedRules))
	for _, ev := range r.EvaluatedRules {
		var notes []string
		if ev.Reversed {
			notes = append(notes, "reversed")
		}
		if ev.Stale {
			notes = append(notes, "stale")
		}
		if ev.Error != "" {
			notes = append(notes, ev.Error)
		}
		rows = append(rows, []string{ev.RuleID, string(ev.Outcome), fmt.Sprint(ev.Matched), strings.Join(notes, "; ")})
	}
	if len(rows) > 0 {
		renderTable(w, []string{"RULE", "OUTCOME", "MATCHED", "NOTES"}, rows)
	}
}
