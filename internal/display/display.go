// Package display renders CLI output: colorized status lines and plain text
// tables, with graceful fallback to uncolored output on dumb terminals and
// pipes.
package display

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"gopkg.in/yaml.v3"
)

// Format selects how command results are rendered
type Format string

const (
	FormatTable   Format = "table"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatCompact Format = "compact"
)

// ParseFormat maps a flag value to a Format. The empty value means table.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(value)) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	case FormatCompact:
		return FormatCompact, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (expected table, json, yaml, or compact)", value)
	}
}

// Service writes user-facing output. It is separate from logging: logs are
// for operators and files, display is for the person at the terminal.
type Service struct {
	out     io.Writer
	colored bool

	success *color.Color
	failure *color.Color
	warning *color.Color
	muted   *color.Color
	heading *color.Color
}

// Options controls display behavior
type Options struct {
	Output  io.Writer
	NoColor bool
}

// NewService creates a display service. Color is enabled only on real
// terminals that advertise color support, and never when NoColor is set.
func NewService(opts Options) *Service {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	colored := !opts.NoColor && supportsColor(out)

	s := &Service{
		out:     out,
		colored: colored,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed, color.Bold),
		warning: color.New(color.FgYellow),
		muted:   color.New(color.Faint),
		heading: color.New(color.Bold),
	}

	if !colored {
		for _, c := range []*color.Color{s.success, s.failure, s.warning, s.muted, s.heading} {
			c.DisableColor()
		}
	}

	return s
}

// supportsColor checks for a color-capable terminal on the writer
func supportsColor(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(file.Fd()) && !isatty.IsCygwinTerminal(file.Fd()) {
		return false
	}
	return termenv.NewOutput(file).ColorProfile() != termenv.Ascii
}

// Printf writes formatted plain output
func (s *Service) Printf(format string, args ...interface{}) {
	fmt.Fprintf(s.out, format, args...)
}

// Println writes a plain line
func (s *Service) Println(line string) {
	fmt.Fprintln(s.out, line)
}

// Success writes a green status line
func (s *Service) Success(format string, args ...interface{}) {
	s.success.Fprintf(s.out, format+"\n", args...)
}

// Failure writes a red status line
func (s *Service) Failure(format string, args ...interface{}) {
	s.failure.Fprintf(s.out, format+"\n", args...)
}

// Warning writes a yellow status line
func (s *Service) Warning(format string, args ...interface{}) {
	s.warning.Fprintf(s.out, format+"\n", args...)
}

// Muted writes a dimmed line for secondary detail
func (s *Service) Muted(format string, args ...interface{}) {
	s.muted.Fprintf(s.out, format+"\n", args...)
}

// Heading writes a bold section heading
func (s *Service) Heading(text string) {
	s.heading.Fprintln(s.out, text)
}

// JSON writes v as indented JSON, for machine-readable output modes
func (s *Service) JSON(v interface{}) error {
	encoder := json.NewEncoder(s.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// YAML writes v as a YAML document
func (s *Service) YAML(v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.out.Write(data)
	return err
}

// CompactJSON writes v as a single JSON line
func (s *Service) CompactJSON(v interface{}) error {
	return json.NewEncoder(s.out).Encode(v)
}

// Table renders rows under a header with column-aligned plain text. Good
// enough for plan listings and backup catalogs without a table dependency
// pulling in box drawing.
func (s *Service) Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
			}
		}
		b.WriteString("\n")
	}

	writeRow(header)
	separators := make([]string, len(header))
	for i := range header {
		separators[i] = strings.Repeat("-", widths[i])
	}
	writeRow(separators)
	for _, row := range rows {
		writeRow(row)
	}

	fmt.Fprint(s.out, b.String())
}
