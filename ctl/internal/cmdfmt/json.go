package cmdfmt

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
)

// jsonPrinter renders the same rows as a table.Writer as a list of JSON objects keyed by column
// name. Hidden columns are omitted.
type jsonPrinter struct {
	columns []table.ColumnConfig
	rows    []map[string]any
	pretty  bool
	// ndjson renders one object per line instead of a list.
	ndjson bool
}

func newJSONPrinter(pretty bool, ndjson bool) *jsonPrinter {
	return &jsonPrinter{
		rows:   []map[string]any{},
		pretty: pretty,
		ndjson: ndjson,
	}
}

func (p *jsonPrinter) SetColumnConfigs(configs []table.ColumnConfig) {
	p.columns = configs
}

func (p *jsonPrinter) AppendRow(row table.Row, configs ...table.RowConfig) {
	if len(p.columns) != len(row) {
		panic(fmt.Sprintf("unable to print json, the number of keys %d does not match the number of values %d (this is likely a bug)", len(p.columns), len(row)))
	}
	item := make(map[string]any, len(row))
	for i, col := range p.columns {
		if col.Hidden {
			continue
		}
		item[col.Name] = row[i]
	}
	p.rows = append(p.rows, item)
}

func (p *jsonPrinter) ResetRows() {
	p.rows = []map[string]any{}
}

func (p *jsonPrinter) Render() string {
	if p.ndjson {
		out := ""
		for i, row := range p.rows {
			if i > 0 {
				out += "\n"
			}
			out += marshal(row, false)
		}
		return out
	}
	return marshal(p.rows, p.pretty)
}

func marshal(v any, pretty bool) string {
	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		panic("unable to marshal json (this is likely a bug): " + err.Error())
	}
	return string(data)
}
