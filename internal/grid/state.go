package grid

// State 表格的可持久化状态
type State struct {
	Data          [][]any `json:"data"`
	Merges        []Merge `json:"merges"`
	DecimalPlaces int     `json:"decimal_places"`
	AutoStatus    bool    `json:"auto_status"`
}

// State 导出当前状态
func (g *Grid) State() State {
	return State{
		Data:          g.Data(),
		Merges:        g.Merges(),
		DecimalPlaces: g.decimals,
		AutoStatus:    g.autoStatus,
	}
}

// Restore 从快照数据重建表格
//
// 布局（公式位置）由数据行数决定并重新生成，快照中公式单元格的计算结果被忽略，
// 表头与统计标题区按布局重建，其余字面量单元格（含分隔行、统计行的备注等）原样恢复。
func Restore(st State, opts ...Option) (*Grid, error) {
	n := len(st.Data) - fixedRows
	if n < 1 {
		return nil, ErrInvalidState
	}
	for _, row := range st.Data {
		if len(row) != NumCols {
			return nil, ErrInvalidState
		}
	}

	points := make([]float64, n)
	for i := range points {
		if f := number(st.Data[i+1][ColStandard]); f != nil {
			points[i] = *f
		}
	}

	if st.DecimalPlaces != 0 {
		opts = append([]Option{WithDecimalPlaces(st.DecimalPlaces)}, opts...)
	}
	g, err := New(points, opts...)
	if err != nil {
		return nil, err
	}

	for r := 1; r < len(st.Data); r++ {
		for c := 0; c < NumCols; c++ {
			if g.locked(r, c) || (c == ColStandard && g.isDataRow(r)) {
				continue
			}
			v := st.Data[r][c]
			if s, ok := v.(string); ok && s == "" {
				v = nil
			}
			if nv, ok := normalize(c, v); ok {
				g.cells[r][c] = nv
			}
		}
		// 标准值为非数字时原样保留
		if g.isDataRow(r) && number(st.Data[r][ColStandard]) == nil {
			if nv, ok := normalize(ColStandard, st.Data[r][ColStandard]); ok {
				g.cells[r][ColStandard] = nv
			}
		}
	}

	if st.Merges != nil {
		g.merges = nil
		for _, m := range st.Merges {
			g.Merge(Selection{StartRow: m.Row, StartCol: m.Col, EndRow: m.Row + m.RowSpan - 1, EndCol: m.Col + m.ColSpan - 1})
		}
	}
	g.autoStatus = st.AutoStatus
	g.Recompute()
	return g, nil
}
