package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gregLibert/xtrace/internal/iccid"
)

var iccidCmd = &cobra.Command{
	Use:   "iccid <file>",
	Short: "Print every SELECT EF_ICCID / READ BINARY ICCID decoded from a trace file",
	Args:  cobra.ExactArgs(1),
	RunE:  runICCID,
}

type iccidView struct {
	ICCID           string `json:"iccid"`
	SelectIndex     int    `json:"select_index"`
	ReadBinaryIndex int    `json:"read_binary_index"`
	ResponseIndex   int    `json:"response_index"`
}

func runICCID(cmd *cobra.Command, args []string) error {
	a, err := loadAnalysis(args[0])
	if err != nil {
		return err
	}

	format, err := resolveFormat()
	if err != nil {
		return err
	}
	return writeOutput(format, toICCIDViews(a.iccids), func(w io.Writer) error {
		return renderICCIDText(w, a.iccids)
	})
}

func toICCIDViews(detections []iccid.Detection) []iccidView {
	out := make([]iccidView, len(detections))
	for i, d := range detections {
		out[i] = iccidView{
			ICCID:           d.ICCID,
			SelectIndex:     d.SelectIndex,
			ReadBinaryIndex: d.ReadBinaryIndex,
			ResponseIndex:   d.ResponseIndex,
		}
	}
	return out
}

func renderICCIDText(w io.Writer, detections []iccid.Detection) error {
	for _, d := range detections {
		if _, err := fmt.Fprintf(w, "%s  (select=#%d read_binary=#%d response=#%d)\n",
			d.ICCID, d.SelectIndex, d.ReadBinaryIndex, d.ResponseIndex); err != nil {
			return err
		}
	}
	return nil
}
