package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/grid"
)

const sampleYAML = `
decimal_places: 3
uncertainty: "±0.01"
points:
  - standard: 10
    measured: 10.004
  - standard: 50
    measured: 50.2
  - standard: 100
`

func TestComputeGrid(t *testing.T) {
	out, err := computeGrid(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("computeGrid 失败: %v", err)
	}

	if len(out.Readings) != 3 {
		t.Fatalf("readings = %d", len(out.Readings))
	}
	if got := out.Readings[0].Status; got != grid.StatusPass {
		t.Errorf("第 1 点状态 = %q，期望 Pass", got)
	}
	if got := out.Readings[1].Status; got != grid.StatusFail {
		t.Errorf("第 2 点状态 = %q，期望 Fail", got)
	}
	if out.Readings[2].Measured() {
		t.Error("第 3 点未录入测量值")
	}
	if out.OverallStatus != grid.OverallFail {
		t.Errorf("overall = %q", out.OverallStatus)
	}
	if got := out.Display[1][grid.ColError]; got != "0.004" {
		t.Errorf("误差显示 = %q", got)
	}
}

func TestComputeGrid_StatusOverride(t *testing.T) {
	in := `
points:
  - standard: 0
    measured: 5
    status: pass
`
	out, err := computeGrid(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if out.Readings[0].Status != grid.StatusPass {
		t.Errorf("手动判定应覆盖自动判定，实际 %q", out.Readings[0].Status)
	}
}

func TestComputeGrid_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no points", "points: []\n"},
		{"bad yaml", "points: [\n"},
		{"bad status", "points:\n  - standard: 1\n    status: Maybe\n"},
		{"bad precision", "decimal_places: 9\npoints:\n  - standard: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := computeGrid(strings.NewReader(tt.in)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGridComputeCommand_JSON(t *testing.T) {
	var stdout bytes.Buffer
	rootCmd.SetIn(strings.NewReader(sampleYAML))
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"grid", "compute", "--json"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	var out gridOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("输出不是 JSON: %v\n%s", err, stdout.String())
	}
	if out.OverallStatus != grid.OverallFail || len(out.Readings) != 3 {
		t.Errorf("输出异常: %+v", out)
	}
}
