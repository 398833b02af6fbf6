package dto

import (
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/session"
)

// ── 录入会话模块 DTO ──

// CreateSessionRequest 打开录入会话
//
// 传 calibration_id 时继续该记录（含已保存的数据）；否则可指定设备与测量点新建。
type CreateSessionRequest struct {
	CalibrationID *string   `json:"calibration_id" binding:"omitempty,uuid"`
	DeviceID      *string   `json:"device_id"      binding:"omitempty,uuid"`
	Points        []float64 `json:"points"         binding:"omitempty,max=50"`
	DecimalPlaces int       `json:"decimal_places" binding:"omitempty,min=1,max=5"`
}

// CellEdit 单个单元格修改；value 为 null 表示清空
type CellEdit struct {
	Row   int `json:"row" binding:"min=0"`
	Col   int `json:"col" binding:"min=0"`
	Value any `json:"value"`
}

// SetCellsRequest 批量修改单元格
type SetCellsRequest struct {
	Cells []CellEdit `json:"cells" binding:"required,min=1,max=500,dive"`
}

// CellRef 单元格坐标
type CellRef struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// SetPrecisionRequest 修改显示精度
type SetPrecisionRequest struct {
	DecimalPlaces int `json:"decimal_places" binding:"required,min=1,max=5"`
}

// SelectionRequest 设置或清除选区
type SelectionRequest struct {
	StartRow int  `json:"start_row" binding:"min=0"`
	StartCol int  `json:"start_col" binding:"min=0"`
	EndRow   int  `json:"end_row"   binding:"min=0"`
	EndCol   int  `json:"end_col"   binding:"min=0"`
	Clear    bool `json:"clear"`
}

// SessionMetaRequest 录入页表单字段（仅更新非 nil 字段）
type SessionMetaRequest struct {
	DeviceID            *string  `json:"device_id"            binding:"omitempty,uuid"`
	TechnicianID        *string  `json:"technician_id"        binding:"omitempty,uuid"`
	CalibrationDate     *string  `json:"calibration_date"     binding:"omitempty,datetime=2006-01-02"`
	Temperature         *float64 `json:"temperature"          binding:"omitempty,gte=-50,lte=100"`
	Humidity            *float64 `json:"humidity"             binding:"omitempty,gte=0,lte=100"`
	Pressure            *float64 `json:"pressure"             binding:"omitempty,gte=0,lte=2000"`
	CalibrationStandard *string  `json:"calibration_standard" binding:"omitempty,max=200"`
	Comments            *string  `json:"comments"`
	AutoStatus          *bool    `json:"auto_status"`
}

// SessionMeta 会话绑定的表单字段
type SessionMeta struct {
	CalibrationID       string   `json:"calibration_id,omitempty"`
	TechnicianID        *string  `json:"technician_id,omitempty"`
	CalibrationDate     string   `json:"calibration_date"`
	Temperature         *float64 `json:"temperature,omitempty"`
	Humidity            *float64 `json:"humidity,omitempty"`
	Pressure            *float64 `json:"pressure,omitempty"`
	CalibrationStandard *string  `json:"calibration_standard,omitempty"`
	Comments            *string  `json:"comments,omitempty"`
}

// SessionResponse 会话视图
type SessionResponse struct {
	ID string `json:"id"`
	SessionMeta
	session.View
}

// SetCellsResponse 批量修改结果
type SetCellsResponse struct {
	Applied  int             `json:"applied"`
	Rejected []CellRef       `json:"rejected"`
	Session  SessionResponse `json:"session"`
}

// SaveSessionResponse 保存结果
type SaveSessionResponse struct {
	CalibrationID string           `json:"calibration_id"`
	Snapshot      session.Snapshot `json:"snapshot"`
}

// CompleteSessionResponse 完成结果；前端据 redirect 跳转
type CompleteSessionResponse struct {
	Snapshot    session.Snapshot    `json:"snapshot"`
	Calibration CalibrationResponse `json:"calibration"`
	Redirect    string              `json:"redirect"`
}
