// Package ui renders sqlforge command output.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/satishbabariya/sqlforge/migrate"
	"github.com/satishbabariya/sqlforge/migrate/introspect"
)

var (
	PrimaryColor   = lipgloss.Color("#00D9FF")
	SuccessColor   = lipgloss.Color("#00FF88")
	WarningColor   = lipgloss.Color("#FFB800")
	ErrorColor     = lipgloss.Color("#FF4444")
	SecondaryColor = lipgloss.Color("#6C757D")

	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	SecondaryStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)
)

// Out is where messages are written.
var Out io.Writer = os.Stdout

// PrintHeader prints a boxed title.
func PrintHeader(title, subtitle string) {
	header := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Padding(0, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render(title), SecondaryStyle.Render(subtitle)))
	fmt.Fprintln(Out, header)
}

// PrintSuccess prints a success message.
func PrintSuccess(format string, args ...any) {
	fmt.Fprintln(Out, SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// PrintWarning prints a warning.
func PrintWarning(format string, args ...any) {
	fmt.Fprintln(Out, WarningStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// PrintInfo prints an informational message.
func PrintInfo(format string, args ...any) {
	fmt.Fprintln(Out, SecondaryStyle.Render("ℹ "+fmt.Sprintf(format, args...)))
}

// PrintStep prints a step counter followed by message.
func PrintStep(step, total int, message string) {
	fmt.Fprintf(Out, "%s %s\n", SecondaryStyle.Render(fmt.Sprintf("[%d/%d]", step, total)), message)
}

// PrintSection prints an underlined section title.
func PrintSection(title string) {
	section := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(SecondaryColor).
		Render(title)
	fmt.Fprintln(Out, section)
}

// PrintTable prints rows under headers.
func PrintTable(headers []string, rows [][]string) error {
	data := pterm.TableData{headers}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithWriter(Out).WithData(data).Render()
}

// PrintMarkdown renders markdown for the terminal.
func PrintMarkdown(content string) error {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return err
	}
	out, err := r.Render(content)
	if err != nil {
		return err
	}
	fmt.Fprint(Out, out)
	return nil
}

// PlanMarkdown describes a plan as markdown: the strategy, the changes and the SQL.
func PlanMarkdown(p *migrate.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", p.Table)
	fmt.Fprintf(&b, "Strategy: **%s**\n\n", p.Strategy)
	if p.Strategy == migrate.NoOp {
		b.WriteString("Already up to date.\n")
		return b.String()
	}
	if changes := p.Changes(); len(changes) > 0 {
		for _, c := range changes {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}
	if p.Archived != "" {
		fmt.Fprintf(&b, "A leftover aside table is archived as `%s`.\n\n", p.Archived)
	}
	if p.DroppedAside {
		b.WriteString("A leftover aside table is dropped.\n\n")
	}
	b.WriteString("```sql\n")
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "-- %s\n%s;\n", s.Name, s.SQL)
	}
	b.WriteString("```\n")
	return b.String()
}

// Destructive reports whether applying p can lose data or drop objects.
func Destructive(p *migrate.Plan) bool {
	if p.Strategy == migrate.Recreate || p.DroppedAside {
		return true
	}
	return p.Diff != nil && len(p.Diff.Obsolete) > 0
}

// PrintChanges prints the plan's changes, colored by whether they add or remove.
func PrintChanges(p *migrate.Plan) {
	add := color.New(color.FgGreen)
	drop := color.New(color.FgRed)
	alter := color.New(color.FgYellow)
	for _, c := range p.Changes() {
		switch {
		case strings.HasPrefix(c, "drop"):
			drop.Fprintln(Out, "- "+c)
		case strings.HasPrefix(c, "add"), strings.HasPrefix(c, "create"):
			add.Fprintln(Out, "+ "+c)
		default:
			alter.Fprintln(Out, "~ "+c)
		}
	}
}

// SchemaRows flattens a live table into rows for PrintTable.
func SchemaRows(t *introspect.TableSchema) [][]string {
	rows := make([][]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		var flags []string
		if c.PrimaryKey {
			flags = append(flags, "pk")
		}
		if c.AutoIncrement {
			flags = append(flags, "autoincrement")
		}
		if c.NotNull {
			flags = append(flags, "not null")
		}
		if c.Unique {
			flags = append(flags, "unique")
		}
		def := ""
		if c.Default != nil {
			def = *c.Default
		}
		rows = append(rows, []string{c.Name, c.Type, strings.Join(flags, ", "), def})
	}
	return rows
}

// IndexRows flattens a live table's indices and unique constraints.
func IndexRows(t *introspect.TableSchema) [][]string {
	rows := make([][]string, 0, len(t.Indices)+len(t.Uniques))
	for _, ix := range append(append([]introspect.IndexSchema{}, t.Indices...), t.Uniques...) {
		kind := "index"
		if ix.Unique {
			kind = "unique"
		}
		rows = append(rows, []string{ix.Name, kind, strings.Join(ix.Columns, ", ")})
	}
	return rows
}
