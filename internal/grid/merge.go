package grid

import "sort"

// Selection 矩形选区（含首尾，0 起始）
type Selection struct {
	StartRow int `json:"start_row"`
	StartCol int `json:"start_col"`
	EndRow   int `json:"end_row"`
	EndCol   int `json:"end_col"`
}

// Normalize 调整为左上到右下
func (s Selection) Normalize() Selection {
	if s.StartRow > s.EndRow {
		s.StartRow, s.EndRow = s.EndRow, s.StartRow
	}
	if s.StartCol > s.EndCol {
		s.StartCol, s.EndCol = s.EndCol, s.StartCol
	}
	return s
}

// Merge 合并区域，(Row, Col) 为锚点
type Merge struct {
	Row     int `json:"row"`
	Col     int `json:"col"`
	RowSpan int `json:"rowspan"`
	ColSpan int `json:"colspan"`
}

func (m Merge) contains(row, col int) bool {
	return row >= m.Row && row < m.Row+m.RowSpan && col >= m.Col && col < m.Col+m.ColSpan
}

func (m Merge) overlaps(o Merge) bool {
	return m.Row < o.Row+o.RowSpan && o.Row < m.Row+m.RowSpan &&
		m.Col < o.Col+o.ColSpan && o.Col < m.Col+m.ColSpan
}

// Merge 将选区合并为一个逻辑单元格
//
// 单格选区、越界或与已有合并区重叠时不做任何修改并返回 false。
// 被覆盖单元格的值保留，取消合并后恢复可见。
func (g *Grid) Merge(sel Selection) bool {
	sel = sel.Normalize()
	if !g.inBounds(sel.StartRow, sel.StartCol) || !g.inBounds(sel.EndRow, sel.EndCol) {
		return false
	}
	m := Merge{
		Row:     sel.StartRow,
		Col:     sel.StartCol,
		RowSpan: sel.EndRow - sel.StartRow + 1,
		ColSpan: sel.EndCol - sel.StartCol + 1,
	}
	if m.RowSpan == 1 && m.ColSpan == 1 {
		return false
	}
	for _, existing := range g.merges {
		if existing.overlaps(m) {
			return false
		}
	}
	g.merges = append(g.merges, m)
	sort.Slice(g.merges, func(i, j int) bool {
		if g.merges[i].Row != g.merges[j].Row {
			return g.merges[i].Row < g.merges[j].Row
		}
		return g.merges[i].Col < g.merges[j].Col
	})
	return true
}

// Unmerge 取消覆盖 (row, col) 的合并区
func (g *Grid) Unmerge(row, col int) bool {
	for i, m := range g.merges {
		if m.contains(row, col) {
			g.merges = append(g.merges[:i], g.merges[i+1:]...)
			return true
		}
	}
	return false
}

// Merges 返回当前合并区副本
func (g *Grid) Merges() []Merge {
	out := make([]Merge, len(g.merges))
	copy(out, g.merges)
	return out
}

// Resolve 返回 (row, col) 所在逻辑单元格的锚点；未合并时返回自身
func (g *Grid) Resolve(row, col int) (int, int) {
	for _, m := range g.merges {
		if m.contains(row, col) {
			return m.Row, m.Col
		}
	}
	return row, col
}
