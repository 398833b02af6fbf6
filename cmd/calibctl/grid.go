package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/grid"
)

// gridInput 离线计算输入
//
//	decimal_places: 3
//	uncertainty: "±0.01"
//	points:
//	  - standard: 10
//	    measured: 10.004
//	  - standard: 50
//	    measured: 50.2
//	    status: Fail
type gridInput struct {
	DecimalPlaces int          `yaml:"decimal_places"`
	Uncertainty   string       `yaml:"uncertainty"`
	Points        []pointInput `yaml:"points"`
}

type pointInput struct {
	Standard    float64  `yaml:"standard"`
	Measured    *float64 `yaml:"measured"`
	Uncertainty string   `yaml:"uncertainty"`
	Status      string   `yaml:"status"`
	Notes       string   `yaml:"notes"`
}

// gridOutput --json 输出
type gridOutput struct {
	Readings      []grid.Reading  `json:"readings"`
	Statistics    grid.Statistics `json:"statistics"`
	OverallStatus string          `json:"overall_status"`
	Display       [][]string      `json:"display"`
}

func newGridCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "校准测量表工具",
	}

	var file string
	var asJSON bool
	compute := &cobra.Command{
		Use:   "compute",
		Short: "按 YAML 中的测量点计算误差、判定与统计",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			out, err := computeGrid(in)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			return printGrid(cmd.OutOrStdout(), out)
		},
	}
	compute.Flags().StringVarP(&file, "file", "f", "-", "输入 YAML 文件，- 表示标准输入")
	compute.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	cmd.AddCommand(compute)

	return cmd
}

func computeGrid(r io.Reader) (*gridOutput, error) {
	var in gridInput
	if err := yaml.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("解析 YAML 失败: %w", err)
	}
	if len(in.Points) == 0 {
		return nil, grid.ErrNoPoints
	}

	standards := make([]float64, len(in.Points))
	for i, p := range in.Points {
		standards[i] = p.Standard
	}

	var opts []grid.Option
	if in.DecimalPlaces != 0 {
		opts = append(opts, grid.WithDecimalPlaces(in.DecimalPlaces))
	}
	if in.Uncertainty != "" {
		opts = append(opts, grid.WithUncertainty(in.Uncertainty))
	}
	g, err := grid.New(standards, opts...)
	if err != nil {
		return nil, err
	}

	for i, p := range in.Points {
		row := i + 1
		if p.Measured != nil {
			g.SetCell(row, grid.ColMeasured, *p.Measured)
		}
		if p.Uncertainty != "" {
			g.SetCell(row, grid.ColUncertainty, p.Uncertainty)
		}
		if p.Status != "" && !g.SetCell(row, grid.ColStatus, p.Status) {
			return nil, fmt.Errorf("第 %d 个点的 status 无效: %q", row, p.Status)
		}
		if p.Notes != "" {
			g.SetCell(row, grid.ColNotes, p.Notes)
		}
	}

	readings := g.Readings()
	display := make([][]string, g.Rows())
	for r := range display {
		display[r] = make([]string, g.Cols())
		for c := range display[r] {
			display[r][c] = g.Display(r, c)
		}
	}
	return &gridOutput{
		Readings:      readings,
		Statistics:    g.Statistics(),
		OverallStatus: grid.OverallStatus(readings),
		Display:       display,
	}, nil
}

func printGrid(w io.Writer, out *gridOutput) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, row := range out.Display {
		for c, cell := range row {
			if c > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nOverall: %s\n", out.OverallStatus)
	return err
}
