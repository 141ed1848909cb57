package writer

import (
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

func (k EventKind) String() string {
	switch k {
	case EventErased:
		return "erased"
	case EventBadSkipped:
		return "bad, skipped"
	case EventWritten:
		return "written"
	case EventWriteFailed:
		return "write failed"
	case EventMarkedBad:
		return "marked bad"
	default:
		return "unknown"
	}
}

// Report renders the run's per-PEB events as a human-readable table
// for verbose-mode output.
func Report(res Result, ebSize uint32) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"PEB", "Status", "Detail"})
	for _, ev := range res.Events {
		t.AppendRow(table.Row{ev.PEB, ev.Kind.String(), ev.Note})
	}
	t.AppendFooter(table.Row{"", "blocks written", res.BlocksWritten})
	t.AppendFooter(table.Row{"", "PEB size", humanize.Bytes(uint64(ebSize))})
	return t.Render()
}
