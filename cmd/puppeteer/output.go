package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/puppeteer/agent"
	"github.com/GoCodeAlone/puppeteer/task"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var titleCase = cases.Title(language.English)

// encode writes v as JSON or YAML. It reports false for the table format,
// which callers render themselves.
func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		// Round-trip through JSON so YAML keys match the API's field names.
		data, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return true, err
		}
		return true, enc.Close()
	case formatTable, "":
		return false, nil
	}
	return true, fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

// statusLabel renders a status in title case, coloured by state.
func statusLabel(status string) string {
	label := titleCase.String(strings.ReplaceAll(strings.ToLower(status), "_", " "))
	switch status {
	case string(task.StatusDone), string(agent.StatusIdle):
		return color.GreenString(label)
	case string(task.StatusInProgress), string(agent.StatusWorking):
		return color.YellowString(label)
	case string(agent.StatusPaused):
		return color.MagentaString(label)
	}
	return label
}

func priorityLabel(p task.Priority) string {
	label := titleCase.String(strings.ToLower(string(p)))
	if p == task.PriorityHigh {
		return color.RedString(label)
	}
	return label
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
