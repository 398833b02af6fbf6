package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// Address 单元格坐标（0 起始），与 A1 记法互转
type Address struct {
	Row int
	Col int
}

// ColumnName 0 → "A"，25 → "Z"，26 → "AA"
func ColumnName(col int) string {
	name := ""
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		name = string(rune('A'+(n-1)%26)) + name
	}
	return name
}

// String 返回 A1 记法
func (a Address) String() string {
	return ColumnName(a.Col) + strconv.Itoa(a.Row+1)
}

// Less 行优先排序
func (a Address) Less(b Address) bool {
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Col < b.Col
}

// ParseAddress 解析 "C2" 形式的坐标
func ParseAddress(s string) (Address, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(s) || i > 3 {
		return Address{}, fmt.Errorf("无效的单元格地址 %q", s)
	}

	col := 0
	for _, ch := range s[:i] {
		col = col*26 + int(ch-'A'+1)
	}
	row, err := strconv.Atoi(s[i:])
	if err != nil || row < 1 {
		return Address{}, fmt.Errorf("无效的单元格地址 %q", s)
	}
	return Address{Row: row - 1, Col: col - 1}, nil
}

// Range 矩形区域，From 为左上角，To 为右下角
type Range struct {
	From Address
	To   Address
}

// NewRange 构造并规范化区域
func NewRange(a, b Address) Range {
	r := Range{From: a, To: b}
	if r.From.Row > r.To.Row {
		r.From.Row, r.To.Row = r.To.Row, r.From.Row
	}
	if r.From.Col > r.To.Col {
		r.From.Col, r.To.Col = r.To.Col, r.From.Col
	}
	return r
}

// ParseRange 解析 "D2:D7" 形式的区域
func ParseRange(s string) (Range, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Range{}, fmt.Errorf("无效的区域 %q", s)
	}
	a, err := ParseAddress(parts[0])
	if err != nil {
		return Range{}, err
	}
	b, err := ParseAddress(parts[1])
	if err != nil {
		return Range{}, err
	}
	return NewRange(a, b), nil
}

// Cells 按行优先顺序展开区域内所有坐标
func (r Range) Cells() []Address {
	out := make([]Address, 0, (r.To.Row-r.From.Row+1)*(r.To.Col-r.From.Col+1))
	for row := r.From.Row; row <= r.To.Row; row++ {
		for col := r.From.Col; col <= r.To.Col; col++ {
			out = append(out, Address{Row: row, Col: col})
		}
	}
	return out
}

// Contains 判断坐标是否在区域内
func (r Range) Contains(a Address) bool {
	return a.Row >= r.From.Row && a.Row <= r.To.Row &&
		a.Col >= r.From.Col && a.Col <= r.To.Col
}

func (r Range) String() string {
	return r.From.String() + ":" + r.To.String()
}
