package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"go.viam.com/camcalib/rimage/calibrate"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with a bold yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	if _, err := color.New(color.Bold, color.FgYellow).Fprint(w, "Warning: "); err != nil {
		return
	}
	printf(w, format, a...)
}

// successf prints a message prefixed with a bold green "Done: ".
func successf(w io.Writer, format string, a ...interface{}) {
	if _, err := color.New(color.Bold, color.FgGreen).Fprint(w, "Done: "); err != nil {
		return
	}
	printf(w, format, a...)
}

func printResult(w io.Writer, res *calibrate.Result) {
	model := res.Model

	intrinsics := table.NewWriter()
	intrinsics.SetOutputMirror(w)
	intrinsics.SetTitle("Camera matrix")
	intrinsics.AppendHeader(table.Row{"fx", "fy", "cx", "cy", "width", "height"})
	intrinsics.AppendRow(table.Row{
		fmt.Sprintf("%.4f", model.Fx),
		fmt.Sprintf("%.4f", model.Fy),
		fmt.Sprintf("%.4f", model.Ppx),
		fmt.Sprintf("%.4f", model.Ppy),
		model.Width,
		model.Height,
	})
	intrinsics.Render()

	names := []string{"k1", "k2", "p1", "p2", "k3", "k4", "k5", "k6"}
	coeffs := model.DistortionCoefficients()
	header := table.Row{}
	row := table.Row{}
	for i, v := range coeffs {
		name := fmt.Sprintf("d%d", i)
		if i < len(names) {
			name = names[i]
		}
		header = append(header, name)
		row = append(row, fmt.Sprintf("%.6f", v))
	}
	distortion := table.NewWriter()
	distortion.SetOutputMirror(w)
	distortion.SetTitle("Distortion")
	distortion.AppendHeader(header)
	distortion.AppendRow(row)
	distortion.Render()

	views := table.NewWriter()
	views.SetOutputMirror(w)
	views.SetTitle("Views")
	views.AppendHeader(table.Row{"#", "Image", "Rotation", "Translation", "RMS (px)"})
	for i, idx := range res.ImageIndices {
		pose := res.Extrinsics[i]
		rms := ""
		if i < len(res.PerViewErrors) {
			rms = fmt.Sprintf("%.4f", res.PerViewErrors[i])
		}
		views.AppendRow(table.Row{
			i + 1,
			idx,
			fmt.Sprintf("(%.4f, %.4f, %.4f)", pose.Rotation.X, pose.Rotation.Y, pose.Rotation.Z),
			fmt.Sprintf("(%.4f, %.4f, %.4f)", pose.Translation.X, pose.Translation.Y, pose.Translation.Z),
			rms,
		})
	}
	views.AppendFooter(table.Row{"", "", "", "Overall", fmt.Sprintf("%.4f", res.ReprojectionError)})
	views.Render()

	if summary, err := res.Summarize(); err == nil {
		printf(w, "mean %.4f px, median %.4f px, p90 %.4f px, worst view %d (%.4f px)",
			summary.Mean, summary.Median, summary.P90, summary.WorstView, summary.Max)
	}
}
