package formula

import "sort"

// Sheet 公式依赖图
//
// 记录哪些坐标是公式单元格，Recompute 按依赖拓扑序对全部公式求值；
// 处于循环引用中的公式（及依赖它们的公式）得到 #CYCLE!。
// Sheet 不做并发保护，由持有者串行调用。
type Sheet struct {
	eval     Evaluator
	formulas map[Address]string
	values   map[Address]Value
}

// NewSheet 创建公式依赖图；eval 为 nil 时使用内置求值器
func NewSheet(eval Evaluator) *Sheet {
	if eval == nil {
		eval = NewEngine()
	}
	return &Sheet{
		eval:     eval,
		formulas: make(map[Address]string),
		values:   make(map[Address]Value),
	}
}

// Register 声明 addr 为公式单元格
func (s *Sheet) Register(addr Address, expr string) {
	s.formulas[addr] = expr
	delete(s.values, addr)
}

// Unregister 取消公式声明
func (s *Sheet) Unregister(addr Address) {
	delete(s.formulas, addr)
	delete(s.values, addr)
}

// IsFormula 判断坐标是否为公式单元格
func (s *Sheet) IsFormula(addr Address) bool {
	_, ok := s.formulas[addr]
	return ok
}

// Formula 返回公式原文
func (s *Sheet) Formula(addr Address) (string, bool) {
	f, ok := s.formulas[addr]
	return f, ok
}

// Addresses 返回全部公式坐标（行优先排序）
func (s *Sheet) Addresses() []Address {
	out := make([]Address, 0, len(s.formulas))
	for a := range s.formulas {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Value 返回最近一次 Recompute 的结果
func (s *Sheet) Value(addr Address) Value {
	return s.values[addr]
}

// Recompute 按依赖顺序对全部公式求值，literals 提供非公式单元格的取值
func (s *Sheet) Recompute(literals CellLookup) {
	order, cyclic := s.order()

	values := make(map[Address]Value, len(s.formulas))
	lookup := func(a Address) Value {
		if _, ok := s.formulas[a]; ok {
			return values[a]
		}
		return literals(a)
	}

	for _, a := range cyclic {
		values[a] = ErrCycle
	}
	for _, a := range order {
		values[a] = s.eval.Evaluate(s.formulas[a], lookup)
	}
	s.values = values
}

// order Kahn 拓扑排序；返回可求值序列与无法排序（循环）的坐标
func (s *Sheet) order() (order []Address, cyclic []Address) {
	addrs := s.Addresses()
	indegree := make(map[Address]int, len(addrs))
	dependents := make(map[Address][]Address)

	for _, a := range addrs {
		indegree[a] = 0
	}
	for _, a := range addrs {
		refs, err := s.eval.References(s.formulas[a])
		if err != nil {
			continue
		}
		seen := make(map[Address]bool)
		for _, r := range refs {
			if _, ok := s.formulas[r]; !ok || seen[r] {
				continue
			}
			seen[r] = true
			indegree[a]++
			dependents[r] = append(dependents[r], a)
		}
	}

	queue := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		if indegree[a] == 0 {
			queue = append(queue, a)
		}
	}
	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]
		order = append(order, a)
		for _, d := range dependents[a] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(order) < len(addrs) {
		done := make(map[Address]bool, len(order))
		for _, a := range order {
			done[a] = true
		}
		for _, a := range addrs {
			if !done[a] {
				cyclic = append(cyclic, a)
			}
		}
	}
	return order, cyclic
}
