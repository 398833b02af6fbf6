package grid

import (
	"math"
	"strconv"
	"strings"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/formula"
)

// 整体结论
const (
	OverallPass    = "Pass"
	OverallFail    = "Fail"
	OverallLimited = "Limited"
)

// Reading 单个校准点读数
type Reading struct {
	Point         string   `json:"point"`
	StandardValue *float64 `json:"standard_value"`
	MeasuredValue *float64 `json:"measured_value"`
	Error         *float64 `json:"error"`
	Uncertainty   string   `json:"uncertainty"`
	Status        string   `json:"status"`
	Notes         string   `json:"notes,omitempty"`
}

// Measured 是否已录入测量值
func (r Reading) Measured() bool { return r.MeasuredValue != nil }

// Statistics 误差统计；不可用的项为 nil
type Statistics struct {
	MaxError     *float64 `json:"max_error"`
	MinError     *float64 `json:"min_error"`
	AverageError *float64 `json:"average_error"`
	StdDev       *float64 `json:"std_dev"`
}

// Readings 提取全部数据行
//
// 状态列为空且开启自动判定时，按不确定度判定：|误差| ≤ 容差为 Pass，否则 Fail。
// 容差支持 "±0.001" 与 "±0.5%"（相对标准值）两种写法。
func (g *Grid) Readings() []Reading {
	out := make([]Reading, 0, g.points)
	for r := 1; r <= g.points; r++ {
		rd := Reading{
			Point:         text(g.Value(r, ColPoint)),
			StandardValue: number(g.Value(r, ColStandard)),
			MeasuredValue: number(g.Value(r, ColMeasured)),
			Error:         number(g.Value(r, ColError)),
			Uncertainty:   text(g.Value(r, ColUncertainty)),
			Status:        text(g.Value(r, ColStatus)),
			Notes:         text(g.Value(r, ColNotes)),
		}
		if rd.Status == "" && g.autoStatus {
			rd.Status = deriveStatus(rd)
		}
		out = append(out, rd)
	}
	return out
}

func deriveStatus(rd Reading) string {
	if rd.Error == nil || rd.StandardValue == nil {
		return ""
	}
	tol, ok := ParseTolerance(rd.Uncertainty, *rd.StandardValue)
	if !ok {
		return ""
	}
	// 浮点减法的舍入误差不应导致边界值判为 Fail
	if math.Abs(*rd.Error) <= tol+1e-12 {
		return StatusPass
	}
	return StatusFail
}

// ParseTolerance 解析不确定度文本为绝对容差
func ParseTolerance(u string, standard float64) (float64, bool) {
	s := strings.TrimSpace(u)
	for _, prefix := range []string{"±", "+/-", "+-"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimSpace(s)

	pct := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	if pct {
		return math.Abs(standard) * f / 100, true
	}
	return f, true
}

// Statistics 读取统计区结果
func (g *Grid) Statistics() Statistics {
	base := g.statsLabelRow() + 1
	return Statistics{
		MaxError:     number(g.Value(base, ColError)),
		MinError:     number(g.Value(base+1, ColError)),
		AverageError: number(g.Value(base+2, ColError)),
		StdDev:       number(g.Value(base+3, ColError)),
	}
}

// OverallStatus 按最差结果推导整体结论
//
// 任一点 Fail 即 Fail；存在 N/A 或未判定的点为 Limited；全部 Pass 才是 Pass。
// 没有任何已判定的点时返回 ""。
func OverallStatus(readings []Reading) string {
	determined, fail, limited := 0, false, false
	for _, r := range readings {
		switch r.Status {
		case StatusFail:
			determined++
			fail = true
		case StatusPass:
			determined++
		case StatusNA:
			determined++
			limited = true
		default:
			limited = true
		}
	}
	switch {
	case determined == 0:
		return ""
	case fail:
		return OverallFail
	case limited:
		return OverallLimited
	default:
		return OverallPass
	}
}

func number(v formula.Value) *float64 {
	if formula.IsError(v) {
		return nil
	}
	f, ok := formula.AsNumber(v)
	if !ok {
		return nil
	}
	return &f
}

func text(v formula.Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case formula.ErrorValue:
		return string(x)
	default:
		return ""
	}
}
