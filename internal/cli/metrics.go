package cli

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
)

// renderMetrics prints the store operation counters gathered from reg.
func renderMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err //nolint:wrapcheck // pass through
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Collection", "Operation", "Result", "Count"})
	for _, mf := range families {
		if !strings.HasSuffix(mf.GetName(), "operations_total") {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			t.AppendRow(table.Row{labels["collection"], labels["operation"], labels["result"], m.GetCounter().GetValue()})
		}
	}
	t.Render()
	return nil
}
