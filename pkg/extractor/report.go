package extractor

import (
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

// VolumeTable renders vols as a human-readable listing.
func VolumeTable(vols []VolumeInfo, lebSize uint32) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Index", "Name", "Reserved LEBs", "Volume size"})
	for _, v := range vols {
		t.AppendRow(table.Row{v.Index, v.Name, v.ReservedPEBs, humanize.Bytes(uint64(v.ReservedPEBs) * uint64(lebSize))})
	}
	return t.Render()
}
