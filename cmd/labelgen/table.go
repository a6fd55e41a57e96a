package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ryabkov82/um-label-server/internal/ingest"
)

// renderFailures formats row failures as a table
func renderFailures(failures []ingest.Failure) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Row", "Stage", "Code", "Field", "Value", "Message"})
	for _, f := range failures {
		tw.AppendRow(table.Row{
			strconv.FormatInt(f.RowNo, 10),
			string(f.Stage),
			string(f.Kind),
			string(f.Field),
			f.Value,
			f.Message,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 6, WidthMax: 60},
	})
	return tw.Render()
}
