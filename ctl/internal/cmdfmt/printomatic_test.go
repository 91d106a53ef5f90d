package cmdfmt

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/relaydeck/deploykit/ctl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintomaticJSON(t *testing.T) {
	var out bytes.Buffer
	p := newPrintomatic(&out, []string{"step", "status", "message"}, []string{"step", "status"}, config.OutputJSON, 100)
	p.AddItem("acquire", "success", "cloned")
	p.AddItem("install_dependencies", "failed", "npm install failed")
	p.PrintRemaining()

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"step": "acquire", "status": "success"}, rows[0])
}

func TestPrintomaticNDJSON(t *testing.T) {
	var out bytes.Buffer
	p := newPrintomatic(&out, []string{"name"}, []string{"name"}, config.OutputJSON, 0)
	p.AddItem("a")
	p.AddItem("b")
	p.PrintRemaining()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{`{"name":"a"}`, `{"name":"b"}`}, lines)
}

func TestPrintomaticTablePaging(t *testing.T) {
	var out bytes.Buffer
	p := newPrintomatic(&out, []string{"name", "healthy"}, []string{"name", "healthy"}, config.OutputTable, 2)
	p.AddItem("web", true)
	p.AddItem("api", false)
	p.AddItem("worker", true)
	p.PrintRemaining()

	text := out.String()
	assert.Equal(t, 2, strings.Count(strings.ToUpper(text), "HEALTHY"), "the header is repeated for every page")
	assert.Contains(t, text, "worker")
}

func TestPrintomaticHiddenColumns(t *testing.T) {
	var out bytes.Buffer
	p := newPrintomatic(&out, []string{"name", "stdout"}, []string{"name"}, config.OutputTable, 10)
	p.AddItem("web", "very secret output")
	p.PrintRemaining()
	assert.NotContains(t, out.String(), "very secret output")
	assert.Contains(t, out.String(), "web")
}
