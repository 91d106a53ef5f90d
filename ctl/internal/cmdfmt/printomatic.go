// Package cmdfmt prints structured command output as a table or JSON depending on the global
// output flags.
package cmdfmt

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mitchellh/go-wordwrap"
	"github.com/relaydeck/deploykit/ctl/pkg/config"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

type rowPrinter interface {
	SetColumnConfigs([]table.ColumnConfig)
	AppendRow(table.Row, ...table.RowConfig)
	ResetRows()
	Render() string
}

// Printomatic buffers rows and prints them as a table or as JSON. Rows are flushed every page-size
// rows and by PrintRemaining.
type Printomatic struct {
	columns  []string
	printer  rowPrinter
	out      io.Writer
	pageSize uint
	buffered uint
	// wrapAt is the width long string cells are wrapped at, zero disables wrapping.
	wrapAt uint
}

// NewPrintomatic returns a printer for allColumns. The columns listed by --columns are printed, or
// defaultColumns if the flag was not set.
func NewPrintomatic(allColumns []string, defaultColumns []string) Printomatic {
	return newPrintomatic(os.Stdout, allColumns, selectColumns(allColumns, defaultColumns), config.Output(), viper.GetUint(config.PageSizeKey))
}

func selectColumns(allColumns []string, defaultColumns []string) []string {
	selected := viper.GetStringSlice(config.ColumnsKey)
	if len(selected) == 0 {
		return defaultColumns
	}
	if slices.Contains(selected, "all") {
		return allColumns
	}
	return selected
}

func newPrintomatic(out io.Writer, allColumns []string, visible []string, output config.OutputType, pageSize uint) Printomatic {
	configs := make([]table.ColumnConfig, 0, len(allColumns))
	for _, c := range allColumns {
		configs = append(configs, table.ColumnConfig{Name: c, Hidden: !slices.Contains(visible, c)})
	}

	p := Printomatic{
		columns:  allColumns,
		out:      out,
		pageSize: pageSize,
	}
	switch output {
	case config.OutputJSON, config.OutputJSONPretty:
		p.printer = newJSONPrinter(output == config.OutputJSONPretty, pageSize == 0)
	default:
		tbl := table.NewWriter()
		tbl.SetStyle(table.StyleLight)
		tbl.Style().Options.DrawBorder = false
		tbl.Style().Options.SeparateColumns = false
		tbl.Style().Options.SeparateHeader = false
		if pageSize > 0 {
			header := table.Row{}
			for _, c := range allColumns {
				header = append(header, c)
			}
			tbl.AppendHeader(header)
		}
		p.printer = tbl
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 40 {
				p.wrapAt = uint(width / 2)
			}
		}
	}
	p.printer.SetColumnConfigs(configs)
	return p
}

// AddItem adds one row. The number of items must match the number of columns.
func (p *Printomatic) AddItem(items ...any) {
	row := make(table.Row, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && p.wrapAt > 0 && uint(len(s)) > p.wrapAt {
			item = wordwrap.WrapString(s, p.wrapAt)
		}
		row = append(row, item)
	}
	p.printer.AppendRow(row)
	p.buffered++
	if p.pageSize == 0 || p.buffered >= p.pageSize {
		p.flush()
	}
}

// PrintRemaining prints any rows that have not been printed yet.
func (p *Printomatic) PrintRemaining() {
	if p.buffered > 0 {
		p.flush()
	}
}

func (p *Printomatic) flush() {
	if rendered := p.printer.Render(); strings.TrimSpace(rendered) != "" {
		fmt.Fprintln(p.out, rendered)
	}
	p.printer.ResetRows()
	p.buffered = 0
}

// Printf prints informational text. It goes to stderr when JSON is printed so stdout stays valid JSON.
func Printf(format string, a ...any) {
	if config.Output() == config.OutputTable {
		fmt.Printf(format, a...)
		return
	}
	fmt.Fprintf(os.Stderr, format, a...)
}

// Wrap wraps long text to the terminal width when stdout is a terminal.
func Wrap(s string) string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return s
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 20 {
		return s
	}
	return wordwrap.WrapString(s, uint(width))
}
