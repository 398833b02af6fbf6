package grid

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/formula"
)

func approx(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s 为空，期望 %v", name, want)
	}
	if math.Abs(*got-want) > 1e-9 {
		t.Errorf("%s = %v，期望 %v", name, *got, want)
	}
}

// ────────────────────── 布局 ──────────────────────

func TestNewDefault_Layout(t *testing.T) {
	g := NewDefault()

	if g.Rows() != 13 || g.Cols() != 7 {
		t.Fatalf("期望 13x7，实际 %dx%d", g.Rows(), g.Cols())
	}
	if g.Display(0, ColError) != "Error" {
		t.Errorf("表头错误: %q", g.Display(0, ColError))
	}
	if f, ok := g.Formula(1, ColError); !ok || f != "=C2-B2" {
		t.Errorf("D2 公式错误: %q", f)
	}
	if f, ok := g.Formula(12, ColError); !ok || f != "=STDEV(D2:D7)" {
		t.Errorf("D13 公式错误: %q", f)
	}
	if g.Display(8, ColPoint) != "Statistics" {
		t.Errorf("统计标题错误: %q", g.Display(8, ColPoint))
	}
	if g.Display(6, ColStandard) != "1000.000" {
		t.Errorf("标准值显示错误: %q", g.Display(6, ColStandard))
	}
	if g.Value(3, ColUncertainty) != DefaultUncertainty {
		t.Errorf("默认不确定度错误: %v", g.Value(3, ColUncertainty))
	}

	want := []Merge{
		{Row: 8, Col: 0, RowSpan: 1, ColSpan: 2},
		{Row: 9, Col: 0, RowSpan: 1, ColSpan: 2},
		{Row: 10, Col: 0, RowSpan: 1, ColSpan: 2},
		{Row: 11, Col: 0, RowSpan: 1, ColSpan: 2},
		{Row: 12, Col: 0, RowSpan: 1, ColSpan: 2},
	}
	if diff := cmp.Diff(want, g.Merges()); diff != "" {
		t.Errorf("默认合并区不一致 (-want +got):\n%s", diff)
	}
}

func TestNew_CustomPoints(t *testing.T) {
	g, err := New([]float64{1, 2, 3}, WithDecimalPlaces(2))
	if err != nil {
		t.Fatalf("New 失败: %v", err)
	}
	if g.Rows() != 10 {
		t.Errorf("期望 10 行，实际 %d", g.Rows())
	}
	if f, _ := g.Formula(g.Rows()-4, ColError); f != "=MAX(D2:D4)" {
		t.Errorf("统计区间应随点数变化，实际 %q", f)
	}
	if g.DecimalPlaces() != 2 {
		t.Errorf("精度未生效")
	}

	if _, err := New(nil); err != ErrNoPoints {
		t.Errorf("空点集期望 ErrNoPoints，实际 %v", err)
	}
	if _, err := New([]float64{1}, WithDecimalPlaces(9)); err != ErrInvalidPrecision {
		t.Errorf("非法精度期望 ErrInvalidPrecision，实际 %v", err)
	}
}

// ────────────────────── 计算 ──────────────────────

func TestErrorColumn_EqualsMeasuredMinusStandard(t *testing.T) {
	g := NewDefault()
	measured := []float64{0.0004, 10.002, 49.999, 100.01, 499.5, 1000.0}
	for i, m := range measured {
		if !g.SetCell(i+1, ColMeasured, m) {
			t.Fatalf("写入第 %d 行失败", i+1)
		}
	}

	for i, rd := range g.Readings() {
		approx(t, "error", rd.Error, measured[i]-DefaultPoints[i])
	}
}

func TestStatistics(t *testing.T) {
	g := NewDefault()
	// 误差分别为 0.001、-0.002、0.003
	g.SetCell(1, ColMeasured, 0.001)
	g.SetCell(2, ColMeasured, "9.998")
	g.SetCell(3, ColMeasured, 50.003)

	errs := []float64{0.001, -0.002, 0.003}
	mean := (errs[0] + errs[1] + errs[2]) / 3
	var ss float64
	for _, e := range errs {
		ss += (e - mean) * (e - mean)
	}

	st := g.Statistics()
	approx(t, "max", st.MaxError, 0.003)
	approx(t, "min", st.MinError, -0.002)
	approx(t, "avg", st.AverageError, mean)
	approx(t, "stdev", st.StdDev, math.Sqrt(ss/2))
}

func TestStatistics_NoReadingsAreUnavailable(t *testing.T) {
	g := NewDefault()

	st := g.Statistics()
	if st.MaxError != nil || st.MinError != nil || st.AverageError != nil || st.StdDev != nil {
		t.Errorf("无读数时统计应不可用: %+v", st)
	}
	base := g.Rows() - 4
	if d := g.Display(base, ColError); d != string(formula.ErrNA) {
		t.Errorf("MAX 期望显示 #N/A，实际 %q", d)
	}
	if d := g.Display(base+2, ColError); d != string(formula.ErrDivZero) {
		t.Errorf("AVERAGE 期望显示 #DIV/0!，实际 %q", d)
	}
	if d := g.Display(1, ColError); d != "" {
		t.Errorf("未录入行误差应为空，实际 %q", d)
	}
}

func TestTextMeasurement_YieldsValueError(t *testing.T) {
	g := NewDefault()
	g.SetCell(1, ColMeasured, "abc")
	if v := g.Value(1, ColError); v != formula.ErrValue {
		t.Errorf("期望 #VALUE!，实际 %v", v)
	}
	if v := g.Value(9, ColError); v != formula.ErrValue {
		t.Errorf("统计区应传递错误，实际 %v", v)
	}
}

func TestRecompute_Idempotent(t *testing.T) {
	g := NewDefault()
	g.SetCell(1, ColMeasured, 0.5)
	g.SetCell(4, ColMeasured, 99.75)

	before := g.Data()
	g.Recompute()
	g.Recompute()
	if diff := cmp.Diff(before, g.Data()); diff != "" {
		t.Errorf("重算结果不一致 (-before +after):\n%s", diff)
	}
}

// ────────────────────── 只读 ──────────────────────

func TestSetCell_ReadOnlyLeavesGridUnchanged(t *testing.T) {
	g := NewDefault()
	g.SetCell(1, ColMeasured, 0.01)
	before := g.Data()

	cases := []struct {
		name     string
		row, col int
		v        any
	}{
		{"error formula", 1, ColError, 5.0},
		{"stats formula", 9, ColError, 1.0},
		{"header", 0, ColMeasured, "x"},
		{"statistics label", 8, ColPoint, "x"},
		{"statistics label merged cell", 8, ColStandard, "x"},
		{"out of range", 99, 0, "x"},
		{"formula injection", 2, ColNotes, "=C2-B2"},
		{"bad status", 2, ColStatus, "Maybe"},
	}
	for _, tc := range cases {
		if g.SetCell(tc.row, tc.col, tc.v) {
			t.Errorf("%s: 期望被拒绝", tc.name)
		}
	}
	if diff := cmp.Diff(before, g.Data()); diff != "" {
		t.Errorf("拒绝的编辑修改了表格 (-before +after):\n%s", diff)
	}
}

func TestSetCell_StatisticsAndSeparatorLiteralsEditable(t *testing.T) {
	g := NewDefault()

	cases := []struct {
		name     string
		row, col int
		v        any
	}{
		{"separator notes", 7, ColNotes, "环境温度 20.1℃"},
		{"max error notes", 9, ColNotes, "超差点复测"},
		{"max error uncertainty", 9, ColUncertainty, "±0.002"},
		{"stddev measured", 12, ColMeasured, 1.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !g.SetCell(tc.row, tc.col, tc.v) {
				t.Fatalf("(%d,%d) 应可编辑", tc.row, tc.col)
			}
			if got := g.Value(tc.row, tc.col); got != tc.v {
				t.Errorf("值 = %v，期望 %v", got, tc.v)
			}
		})
	}

	restored, err := Restore(g.State())
	if err != nil {
		t.Fatalf("Restore 失败: %v", err)
	}
	if diff := cmp.Diff(g.Data(), restored.Data()); diff != "" {
		t.Errorf("统计区字面量未恢复 (-orig +restored):\n%s", diff)
	}
}

func TestSetCell_StatusIsCanonicalized(t *testing.T) {
	g := NewDefault()
	if !g.SetCell(1, ColStatus, "fail") {
		t.Fatal("状态写入失败")
	}
	if g.Value(1, ColStatus) != StatusFail {
		t.Errorf("期望 Fail，实际 %v", g.Value(1, ColStatus))
	}
	if !g.SetCell(1, ColStatus, "") || g.Value(1, ColStatus) != nil {
		t.Error("空字符串应清空状态")
	}
}

// ────────────────────── 精度 ──────────────────────

func TestDecimalPlaces_DisplayOnly(t *testing.T) {
	g := NewDefault()
	g.SetCell(2, ColMeasured, 10.0123456)
	before := g.Data()

	if got := g.Display(2, ColMeasured); got != "10.012" {
		t.Errorf("3 位精度显示错误: %q", got)
	}
	if err := g.SetDecimalPlaces(5); err != nil {
		t.Fatalf("SetDecimalPlaces 失败: %v", err)
	}
	if got := g.Display(2, ColMeasured); got != "10.01235" {
		t.Errorf("5 位精度显示错误: %q", got)
	}
	if diff := cmp.Diff(before, g.Data()); diff != "" {
		t.Errorf("修改精度改变了存储值 (-before +after):\n%s", diff)
	}

	if err := g.SetDecimalPlaces(0); err != ErrInvalidPrecision {
		t.Errorf("期望 ErrInvalidPrecision，实际 %v", err)
	}
	if g.DecimalPlaces() != 5 {
		t.Error("非法精度不应生效")
	}
}

// ────────────────────── 合并 ──────────────────────

func TestMergeUnmerge_RoundTrip(t *testing.T) {
	g := NewDefault()
	g.SetCell(2, ColNotes, "keep me")
	before := g.Merges()

	sel := Selection{StartRow: 3, StartCol: ColNotes, EndRow: 1, EndCol: ColStatus}
	if !g.Merge(sel) {
		t.Fatal("合并失败")
	}
	if r, c := g.Resolve(2, ColNotes); r != 1 || c != ColStatus {
		t.Errorf("合并区锚点错误: (%d,%d)", r, c)
	}
	if g.SetCell(2, ColNotes, "hidden") || g.SetCell(1, ColNotes, "hidden") {
		t.Error("合并区内非锚点单元格应拒绝写入")
	}
	if !g.SetCell(1, ColStatus, "Pass") {
		t.Error("合并区锚点应可写入")
	}

	if !g.Unmerge(1, ColStatus) {
		t.Fatal("取消合并失败")
	}
	if r, c := g.Resolve(2, ColNotes); r != 2 || c != ColNotes {
		t.Errorf("取消合并后应恢复独立寻址: (%d,%d)", r, c)
	}
	if g.Value(2, ColNotes) != "keep me" {
		t.Errorf("合并区内的值丢失: %v", g.Value(2, ColNotes))
	}
	if !g.SetCell(2, ColNotes, "edited") || g.Value(2, ColNotes) != "edited" {
		t.Error("取消合并后单元格应恢复可写")
	}
	if diff := cmp.Diff(before, g.Merges()); diff != "" {
		t.Errorf("合并区未还原 (-before +after):\n%s", diff)
	}
}

func TestMerge_NoOps(t *testing.T) {
	g := NewDefault()
	n := len(g.Merges())

	if g.Merge(Selection{StartRow: 1, StartCol: 1, EndRow: 1, EndCol: 1}) {
		t.Error("单格合并应为空操作")
	}
	if g.Merge(Selection{StartRow: 9, StartCol: 1, EndRow: 10, EndCol: 2}) {
		t.Error("与已有合并区重叠应为空操作")
	}
	if g.Merge(Selection{StartRow: 0, StartCol: 0, EndRow: 0, EndCol: 20}) {
		t.Error("越界选区应为空操作")
	}
	if g.Unmerge(1, 1) {
		t.Error("未合并位置取消合并应返回 false")
	}
	if len(g.Merges()) != n {
		t.Error("空操作改变了合并区")
	}
}

// ────────────────────── 读数与结论 ──────────────────────

func TestReadings_AutoStatus(t *testing.T) {
	g := NewDefault()
	g.SetCell(1, ColMeasured, 0.0005) // 在 ±0.001 内
	g.SetCell(2, ColMeasured, 10.01)  // 超差
	g.SetCell(3, ColMeasured, 50.2)
	g.SetCell(3, ColUncertainty, "±0.5%") // 0.25 容差
	g.SetCell(4, ColMeasured, 200.0)
	g.SetCell(4, ColStatus, "N/A") // 人工判定优先

	rs := g.Readings()
	want := []string{StatusPass, StatusFail, StatusPass, StatusNA, "", ""}
	for i, w := range want {
		if rs[i].Status != w {
			t.Errorf("第 %d 点状态 = %q，期望 %q", i+1, rs[i].Status, w)
		}
	}

	g.SetAutoStatus(false)
	if g.Readings()[0].Status != "" {
		t.Error("关闭自动判定后状态应为空")
	}
}

func TestParseTolerance(t *testing.T) {
	tests := []struct {
		in   string
		std  float64
		want float64
		ok   bool
	}{
		{"±0.001", 10, 0.001, true},
		{"+/- 0.02", 10, 0.02, true},
		{"0.5%", 200, 1, true},
		{"±1 %", -50, 0.5, true},
		{"n/a", 1, 0, false},
		{"", 1, 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseTolerance(tt.in, tt.std)
		if ok != tt.ok || math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("ParseTolerance(%q) = %v,%v，期望 %v,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestOverallStatus(t *testing.T) {
	r := func(st string) Reading { return Reading{Status: st} }
	tests := []struct {
		name string
		in   []Reading
		want string
	}{
		{"none determined", []Reading{r(""), r("")}, ""},
		{"all pass", []Reading{r(StatusPass), r(StatusPass)}, OverallPass},
		{"any fail", []Reading{r(StatusPass), r(StatusFail), r(StatusNA)}, OverallFail},
		{"na is limited", []Reading{r(StatusPass), r(StatusNA)}, OverallLimited},
		{"unmeasured is limited", []Reading{r(StatusPass), r("")}, OverallLimited},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		if got := OverallStatus(tt.in); got != tt.want {
			t.Errorf("%s: 期望 %q，实际 %q", tt.name, tt.want, got)
		}
	}
}

func TestOverallStatus_NeverPassWithFailure(t *testing.T) {
	g := NewDefault()
	for i := range DefaultPoints {
		g.SetCell(i+1, ColMeasured, DefaultPoints[i])
	}
	if got := OverallStatus(g.Readings()); got != OverallPass {
		t.Fatalf("全部在容差内期望 Pass，实际 %q", got)
	}
	g.SetCell(6, ColMeasured, 1001.0)
	if got := OverallStatus(g.Readings()); got != OverallFail {
		t.Errorf("存在超差点期望 Fail，实际 %q", got)
	}
}

// ────────────────────── 状态恢复 ──────────────────────

func TestStateRestore(t *testing.T) {
	g := NewDefault()
	g.SetCell(1, ColMeasured, 0.002)
	g.SetCell(2, ColNotes, "sensor replaced")
	g.SetCell(3, ColStatus, "Fail")
	g.SetDecimalPlaces(4)
	g.Merge(Selection{StartRow: 1, StartCol: ColNotes, EndRow: 2, EndCol: ColNotes})

	restored, err := Restore(g.State())
	if err != nil {
		t.Fatalf("Restore 失败: %v", err)
	}
	if diff := cmp.Diff(g.State(), restored.State()); diff != "" {
		t.Errorf("恢复后的状态不一致 (-orig +restored):\n%s", diff)
	}
	if !restored.IsFormula(1, ColError) {
		t.Error("恢复后公式单元格丢失")
	}

	if _, err := Restore(State{Data: [][]any{{"x"}}}); err != ErrInvalidState {
		t.Errorf("非法数据期望 ErrInvalidState，实际 %v", err)
	}
}
