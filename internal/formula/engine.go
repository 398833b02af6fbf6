package formula

import (
	"errors"
	"math"
)

// CellLookup 按坐标读取单元格当前取值
type CellLookup func(addr Address) Value

// Evaluator 公式求值能力
//
// 网格只依赖该接口：声明哪些单元格为公式，并在输入变化后请求重新求值。
// 求值失败不会返回 Go error，而是以 ErrorValue 标记写入结果。
type Evaluator interface {
	Evaluate(expr string, lookup CellLookup) Value
	References(expr string) ([]Address, error)
}

// Engine 内置求值器
//
// 数值语义：
//   - 减法任一操作数为空时结果为空（未录入的校准点不产生误差值）
//   - 区域聚合跳过空单元格与文本，区域内出现错误标记时原样传递
//   - MAX / MIN 无数值时返回 #N/A，AVERAGE 无数值时返回 #DIV/0!
//   - STDEV 为样本标准差（分母 n-1），少于两个数值时返回 #DIV/0!
type Engine struct{}

// NewEngine 创建内置求值器
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate 对公式求值
func (e *Engine) Evaluate(expr string, lookup CellLookup) (result Value) {
	defer func() {
		if r := recover(); r != nil {
			result = ErrSyntax
		}
	}()

	n, err := parse(expr)
	if err != nil {
		return errorCode(err)
	}
	return n.eval(lookup)
}

// References 返回公式引用的全部单元格（区域按单元格展开）
func (e *Engine) References(expr string) ([]Address, error) {
	n, err := parse(expr)
	if err != nil {
		return nil, err
	}
	return n.refs(nil), nil
}

func errorCode(err error) ErrorValue {
	var pe *parseError
	if errors.As(err, &pe) {
		return pe.code
	}
	return ErrSyntax
}

// ── 语法树节点 ──

type numNode struct{ v float64 }

func (n *numNode) eval(CellLookup) Value           { return n.v }
func (n *numNode) refs(dst []Address) []Address { return dst }

type refNode struct{ addr Address }

func (n *refNode) eval(lookup CellLookup) Value {
	v := lookup(n.addr)
	if k, f := classify(v); k == kindNumber {
		return f
	}
	return v
}

func (n *refNode) refs(dst []Address) []Address { return append(dst, n.addr) }

type subNode struct{ left, right node }

func (n *subNode) eval(lookup CellLookup) Value {
	lv := n.left.eval(lookup)
	rv := n.right.eval(lookup)

	lk, lf := classify(lv)
	rk, rf := classify(rv)
	switch {
	case lk == kindError:
		return lv
	case rk == kindError:
		return rv
	case lk == kindEmpty || rk == kindEmpty:
		return nil
	case lk == kindText || rk == kindText:
		return ErrValue
	}

	d := lf - rf
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return ErrValue
	}
	return d
}

func (n *subNode) refs(dst []Address) []Address {
	return n.right.refs(n.left.refs(dst))
}

type aggregateFunc func(nums []float64) Value

type aggNode struct {
	name string
	fn   aggregateFunc
	rng  Range
}

func (n *aggNode) eval(lookup CellLookup) Value {
	nums := make([]float64, 0, len(n.rng.Cells()))
	for _, addr := range n.rng.Cells() {
		v := lookup(addr)
		k, f := classify(v)
		switch k {
		case kindError:
			return v
		case kindNumber:
			nums = append(nums, f)
		}
	}
	return n.fn(nums)
}

func (n *aggNode) refs(dst []Address) []Address {
	return append(dst, n.rng.Cells()...)
}

var aggregates = map[string]aggregateFunc{
	"MAX":     aggMax,
	"MIN":     aggMin,
	"AVERAGE": aggAverage,
	"STDEV":   aggStdev,
}

func aggMax(nums []float64) Value {
	if len(nums) == 0 {
		return ErrNA
	}
	m := nums[0]
	for _, f := range nums[1:] {
		m = math.Max(m, f)
	}
	return m
}

func aggMin(nums []float64) Value {
	if len(nums) == 0 {
		return ErrNA
	}
	m := nums[0]
	for _, f := range nums[1:] {
		m = math.Min(m, f)
	}
	return m
}

func aggAverage(nums []float64) Value {
	if len(nums) == 0 {
		return ErrDivZero
	}
	sum := 0.0
	for _, f := range nums {
		sum += f
	}
	return sum / float64(len(nums))
}

// aggStdev Welford 单遍算法计算样本标准差
func aggStdev(nums []float64) Value {
	if len(nums) < 2 {
		return ErrDivZero
	}
	var mean, m2 float64
	for i, f := range nums {
		delta := f - mean
		mean += delta / float64(i+1)
		m2 += delta * (f - mean)
	}
	return math.Sqrt(m2 / float64(len(nums)-1))
}
