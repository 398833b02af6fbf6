package grid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/formula"
)

// ── 列定义 ──

const (
	ColPoint = iota
	ColStandard
	ColMeasured
	ColError
	ColUncertainty
	ColStatus
	ColNotes

	NumCols
)

// 数据区之外的固定行：表头、分隔行、统计标题行、4 行统计
const fixedRows = 7

const (
	MinDecimalPlaces     = 1
	MaxDecimalPlaces     = 5
	DefaultDecimalPlaces = 3
	DefaultUncertainty   = "±0.001"
)

// 单点状态取值
const (
	StatusPass = "Pass"
	StatusFail = "Fail"
	StatusNA   = "N/A"
)

var (
	ErrNoPoints         = errors.New("至少需要一个校准点")
	ErrInvalidPrecision = errors.New("小数位数必须在 1 到 5 之间")
	ErrInvalidState     = errors.New("无效的表格数据")
)

// DefaultPoints 默认校准点的标准值
var DefaultPoints = []float64{0, 10, 50, 100, 500, 1000}

// Headers 表头
var Headers = [NumCols]string{"Point", "Standard Value", "Measured Value", "Error", "Uncertainty", "Status", "Notes"}

var statLabels = [4]string{"Max Error", "Min Error", "Average Error", "Standard Deviation"}
var statFuncs = [4]string{"MAX", "MIN", "AVERAGE", "STDEV"}

// Grid 校准测量表
//
// 单元格分为字面量与公式两类；公式单元格只读，
// 每次字面量修改后立即按依赖顺序重算，读取时总是最新结果。
// Grid 不做并发保护，由 session.Controller 串行访问。
type Grid struct {
	points      int
	cells       [][]formula.Value
	sheet       *formula.Sheet
	decimals    int
	uncertainty string
	autoStatus  bool
	merges      []Merge
}

// Option 构造选项
type Option func(*Grid) error

// WithEvaluator 替换公式求值器
func WithEvaluator(e formula.Evaluator) Option {
	return func(g *Grid) error {
		g.sheet = formula.NewSheet(e)
		return nil
	}
}

// WithDecimalPlaces 设置初始显示精度
func WithDecimalPlaces(n int) Option {
	return func(g *Grid) error {
		if n < MinDecimalPlaces || n > MaxDecimalPlaces {
			return ErrInvalidPrecision
		}
		g.decimals = n
		return nil
	}
}

// WithUncertainty 设置各点默认不确定度
func WithUncertainty(u string) Option {
	return func(g *Grid) error {
		g.uncertainty = u
		return nil
	}
}

// NewDefault 按默认六点布局创建表格
func NewDefault() *Grid {
	g, _ := New(DefaultPoints)
	return g
}

// New 按给定标准值创建表格，每个标准值对应一个数据行
func New(points []float64, opts ...Option) (*Grid, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}

	g := &Grid{
		points:      len(points),
		decimals:    DefaultDecimalPlaces,
		uncertainty: DefaultUncertainty,
		autoStatus:  true,
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	if g.sheet == nil {
		g.sheet = formula.NewSheet(nil)
	}

	rows := len(points) + fixedRows
	g.cells = make([][]formula.Value, rows)
	for r := range g.cells {
		g.cells[r] = make([]formula.Value, NumCols)
	}

	for c, h := range Headers {
		g.cells[0][c] = h
	}
	for i, std := range points {
		r := i + 1
		g.cells[r][ColPoint] = strconv.Itoa(i + 1)
		g.cells[r][ColStandard] = std
		g.cells[r][ColUncertainty] = g.uncertainty
		g.sheet.Register(formula.Address{Row: r, Col: ColError}, fmt.Sprintf("=C%d-B%d", r+1, r+1))
	}

	labelRow := g.statsLabelRow()
	g.cells[labelRow][ColPoint] = "Statistics"
	errRange := fmt.Sprintf("D2:D%d", len(points)+1)
	for i := range statFuncs {
		r := labelRow + 1 + i
		g.cells[r][ColPoint] = statLabels[i]
		g.sheet.Register(formula.Address{Row: r, Col: ColError}, fmt.Sprintf("=%s(%s)", statFuncs[i], errRange))
	}

	// 统计区标签默认横向合并 A:B
	for r := labelRow; r < rows; r++ {
		g.merges = append(g.merges, Merge{Row: r, Col: ColPoint, RowSpan: 1, ColSpan: 2})
	}

	g.Recompute()
	return g, nil
}

// ── 布局 ──

// Rows 总行数
func (g *Grid) Rows() int { return len(g.cells) }

// Cols 总列数
func (g *Grid) Cols() int { return NumCols }

// Points 校准点数量
func (g *Grid) Points() int { return g.points }

func (g *Grid) isDataRow(row int) bool { return row >= 1 && row <= g.points }

func (g *Grid) statsLabelRow() int { return g.points + 2 }

func (g *Grid) inBounds(row, col int) bool {
	return row >= 0 && row < len(g.cells) && col >= 0 && col < NumCols
}

// IsFormula 判断是否为公式单元格
func (g *Grid) IsFormula(row, col int) bool {
	return g.sheet.IsFormula(formula.Address{Row: row, Col: col})
}

// Formula 返回公式原文
func (g *Grid) Formula(row, col int) (string, bool) {
	return g.sheet.Formula(formula.Address{Row: row, Col: col})
}

// locked 表头、统计标题区（A:B）与公式单元格，不考虑合并
func (g *Grid) locked(row, col int) bool {
	if row == 0 {
		return true
	}
	if row == g.statsLabelRow() && col <= ColStandard {
		return true
	}
	return g.IsFormula(row, col)
}

// IsReadOnly 表头、统计标题区、公式单元格以及被合并区覆盖的非锚点单元格只读
func (g *Grid) IsReadOnly(row, col int) bool {
	if !g.inBounds(row, col) || g.locked(row, col) {
		return true
	}
	r, c := g.Resolve(row, col)
	return r != row || c != col
}

// ── 编辑 ──

// SetCell 修改字面量单元格并重算
//
// 只读单元格、越界坐标、以 "=" 开头的文本以及不在下拉选项中的状态值都会被拒绝，
// 返回 false 且表格保持不变。
func (g *Grid) SetCell(row, col int, v any) bool {
	if g.IsReadOnly(row, col) {
		return false
	}
	nv, ok := normalize(col, v)
	if !ok {
		return false
	}
	g.cells[row][col] = nv
	g.Recompute()
	return true
}

func normalize(col int, v any) (formula.Value, bool) {
	switch x := v.(type) {
	case nil:
		return nil, true
	case float64, float32, int, int64:
		if col == ColStandard || col == ColMeasured {
			f, _ := formula.AsNumber(x)
			return f, true
		}
		return fmt.Sprint(x), col != ColStatus
	case string:
		s := strings.TrimSpace(x)
		if strings.HasPrefix(s, "=") {
			return nil, false
		}
		if s == "" {
			return nil, true
		}
		switch col {
		case ColStandard, ColMeasured:
			if f, ok := formula.AsNumber(s); ok {
				return f, true
			}
			return s, true
		case ColStatus:
			st, ok := canonicalStatus(s)
			return st, ok
		}
		return x, true
	default:
		return nil, false
	}
}

func canonicalStatus(s string) (string, bool) {
	for _, st := range []string{StatusPass, StatusFail, StatusNA} {
		if strings.EqualFold(s, st) {
			return st, true
		}
	}
	return "", false
}

// Recompute 按依赖顺序重算全部公式
func (g *Grid) Recompute() {
	g.sheet.Recompute(g.literal)
}

func (g *Grid) literal(a formula.Address) formula.Value {
	if !g.inBounds(a.Row, a.Col) {
		return nil
	}
	return g.cells[a.Row][a.Col]
}

// ── 读取 ──

// Value 返回单元格当前值：nil、float64、string 或 formula.ErrorValue
func (g *Grid) Value(row, col int) formula.Value {
	if !g.inBounds(row, col) {
		return nil
	}
	a := formula.Address{Row: row, Col: col}
	if g.sheet.IsFormula(a) {
		return g.sheet.Value(a)
	}
	return g.cells[row][col]
}

// Display 返回按当前精度格式化后的显示文本
func (g *Grid) Display(row, col int) string {
	v := g.Value(row, col)
	switch x := v.(type) {
	case nil:
		return ""
	case formula.ErrorValue:
		return string(x)
	case float64:
		if isNumericCol(col) && row > 0 {
			return strconv.FormatFloat(x, 'f', g.decimals, 64)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func isNumericCol(col int) bool {
	return col == ColStandard || col == ColMeasured || col == ColError
}

// SetDecimalPlaces 修改显示精度，不影响存储值
func (g *Grid) SetDecimalPlaces(n int) error {
	if n < MinDecimalPlaces || n > MaxDecimalPlaces {
		return ErrInvalidPrecision
	}
	g.decimals = n
	return nil
}

// DecimalPlaces 当前显示精度
func (g *Grid) DecimalPlaces() int { return g.decimals }

// SetAutoStatus 开关状态自动判定
func (g *Grid) SetAutoStatus(on bool) { g.autoStatus = on }

// AutoStatus 是否自动判定状态
func (g *Grid) AutoStatus() bool { return g.autoStatus }

// Data 返回整张表的当前内容（公式单元格取计算结果，空单元格为 ""）
func (g *Grid) Data() [][]any {
	out := make([][]any, len(g.cells))
	for r := range g.cells {
		row := make([]any, NumCols)
		for c := 0; c < NumCols; c++ {
			switch v := g.Value(r, c).(type) {
			case nil:
				row[c] = ""
			case formula.ErrorValue:
				row[c] = string(v)
			default:
				row[c] = v
			}
		}
		out[r] = row
	}
	return out
}
