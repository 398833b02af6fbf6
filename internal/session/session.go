package session

import (
	"sync"
	"time"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/grid"
)

// Status 会话状态
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
)

// Snapshot save / complete 产出的快照
type Snapshot struct {
	DeviceID        string  `json:"deviceId"`
	DeviceName      string  `json:"deviceName"`
	CalibrationData [][]any `json:"calibrationData"`
	Status          Status  `json:"status"`
	Timestamp       string  `json:"timestamp"`
}

// Callback 快照回调；在锁外调用，可安全回调 Controller
type Callback func(Snapshot)

// Options Controller 构造参数
type Options struct {
	DeviceID   string
	DeviceName string
	// Grid 为 nil 时使用默认布局
	Grid       *grid.Grid
	Status     Status
	OnSave     Callback
	OnComplete Callback
	Clock      func() time.Time
}

// Controller 一次校准录入会话
//
// 独占持有一张表格。所有修改都经由下列方法完成；
// 进入 completed 后表格只读，编辑类操作返回 false。
type Controller struct {
	mu         sync.Mutex
	deviceID   string
	deviceName string
	grid       *grid.Grid
	status     Status
	selection  *grid.Selection
	dirty      bool
	onSave     Callback
	onComplete Callback
	clock      func() time.Time
}

// New 创建会话
func New(opts Options) *Controller {
	c := &Controller{
		deviceID:   opts.DeviceID,
		deviceName: opts.DeviceName,
		grid:       opts.Grid,
		status:     opts.Status,
		onSave:     opts.OnSave,
		onComplete: opts.OnComplete,
		clock:      opts.Clock,
	}
	if c.grid == nil {
		c.grid = grid.NewDefault()
	}
	if c.status == "" {
		c.status = StatusDraft
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	return c
}

// ────────────────────── 快照 ──────────────────────

// Save 生成当前快照并触发 OnSave，状态不变
func (c *Controller) Save() Snapshot {
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.dirty = false
	cb := c.onSave
	c.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
	return snap
}

// Complete 将状态置为 completed，隐式 Save 后触发 OnComplete
func (c *Controller) Complete() Snapshot {
	c.mu.Lock()
	c.status = StatusCompleted
	c.selection = nil
	c.mu.Unlock()

	snap := c.Save()

	c.mu.Lock()
	cb := c.onComplete
	c.mu.Unlock()
	if cb != nil {
		cb(snap)
	}
	return snap
}

// Snapshot 返回当前快照，不触发回调也不清除未保存标记
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Reopen 回到 draft 状态；仅用于完成后持久化失败的回退
func (c *Controller) Reopen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusDraft
	c.dirty = true
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		DeviceID:        c.deviceID,
		DeviceName:      c.deviceName,
		CalibrationData: c.grid.Data(),
		Status:          c.status,
		Timestamp:       c.clock().UTC().Format(time.RFC3339Nano),
	}
}

// ────────────────────── 编辑 ──────────────────────

// SetCell 修改单元格；已完成或只读单元格返回 false
func (c *Controller) SetCell(row, col int, v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusCompleted {
		return false
	}
	if !c.grid.SetCell(row, col, v) {
		return false
	}
	c.dirty = true
	return true
}

// SetDecimalPlaces 修改显示精度
func (c *Controller) SetDecimalPlaces(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grid.SetDecimalPlaces(n)
}

// SetAutoStatus 开关状态自动判定
func (c *Controller) SetAutoStatus(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grid.SetAutoStatus(on)
}

// SetDevice 绑定设备；已完成的会话不能更换设备
func (c *Controller) SetDevice(id, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusCompleted {
		return false
	}
	if c.deviceID != id || c.deviceName != name {
		c.deviceID, c.deviceName = id, name
		c.dirty = true
	}
	return true
}

// MarkDirty 表格之外的会话字段（如环境条件）被修改时由调用方标记
func (c *Controller) MarkDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = true
}

// ── 选区与合并 ──

// Select 设置当前选区
func (c *Controller) Select(sel grid.Selection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := sel.Normalize()
	c.selection = &s
}

// ClearSelection 清除选区
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = nil
}

// Selection 返回当前选区
func (c *Controller) Selection() (grid.Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selection == nil {
		return grid.Selection{}, false
	}
	return *c.selection, true
}

// MergeSelection 合并当前选区；无选区时为空操作
func (c *Controller) MergeSelection() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selection == nil || c.status == StatusCompleted {
		return false
	}
	if !c.grid.Merge(*c.selection) {
		return false
	}
	c.dirty = true
	return true
}

// UnmergeSelection 取消选区左上角所在的合并区；无选区时为空操作
func (c *Controller) UnmergeSelection() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selection == nil || c.status == StatusCompleted {
		return false
	}
	if !c.grid.Unmerge(c.selection.StartRow, c.selection.StartCol) {
		return false
	}
	c.dirty = true
	return true
}

// ────────────────────── 查询 ──────────────────────

// View 会话当前视图
type View struct {
	DeviceID      string          `json:"device_id"`
	DeviceName    string          `json:"device_name"`
	Status        Status          `json:"status"`
	Dirty         bool            `json:"dirty"`
	DecimalPlaces int             `json:"decimal_places"`
	AutoStatus    bool            `json:"auto_status"`
	Data          [][]any         `json:"data"`
	Display       [][]string      `json:"display"`
	Merges        []grid.Merge    `json:"merges"`
	Selection     *grid.Selection `json:"selection,omitempty"`
	Readings      []grid.Reading  `json:"readings"`
	Statistics    grid.Statistics `json:"statistics"`
	OverallStatus string          `json:"overall_status"`
}

// View 返回当前视图副本
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.grid
	display := make([][]string, g.Rows())
	for r := range display {
		display[r] = make([]string, g.Cols())
		for col := range display[r] {
			display[r][col] = g.Display(r, col)
		}
	}
	readings := g.Readings()

	v := View{
		DeviceID:      c.deviceID,
		DeviceName:    c.deviceName,
		Status:        c.status,
		Dirty:         c.dirty,
		DecimalPlaces: g.DecimalPlaces(),
		AutoStatus:    g.AutoStatus(),
		Data:          g.Data(),
		Display:       display,
		Merges:        g.Merges(),
		Readings:      readings,
		Statistics:    g.Statistics(),
		OverallStatus: grid.OverallStatus(readings),
	}
	if c.selection != nil {
		s := *c.selection
		v.Selection = &s
	}
	return v
}

// State 导出表格状态用于持久化
func (c *Controller) State() grid.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grid.State()
}

// Readings 当前读数
func (c *Controller) Readings() []grid.Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grid.Readings()
}

// Status 当前状态
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// DeviceID 绑定的设备
func (c *Controller) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

// DeviceName 绑定的设备名称
func (c *Controller) DeviceName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceName
}

// Dirty 上次 Save 之后是否有未保存的修改
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}
