package dto

import (
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/grid"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/session"
)

// ── 校准记录模块 DTO ──

// CreateCalibrationRequest 安排校准
type CreateCalibrationRequest struct {
	DeviceID            string  `json:"device_id"            binding:"required,uuid"`
	TechnicianID        *string `json:"technician_id"        binding:"omitempty,uuid"`
	ScheduledDate       string  `json:"scheduled_date"       binding:"required,datetime=2006-01-02"`
	CalibrationStandard *string `json:"calibration_standard" binding:"omitempty,max=200"`
	Comments            *string `json:"comments"`
}

// UpdateCalibrationStatusRequest 状态流转（携带版本号做乐观锁）
type UpdateCalibrationStatusRequest struct {
	Status  string `json:"status"  binding:"required,oneof=in_progress completed overdue cancelled"`
	Version int    `json:"version" binding:"required,min=1"`
}

// CalibrationListRequest 校准记录列表查询
type CalibrationListRequest struct {
	PaginationRequest
	Status       string `form:"status"        binding:"omitempty,oneof=scheduled in_progress completed overdue cancelled"`
	DeviceID     string `form:"device_id"     binding:"omitempty,uuid"`
	ClientID     string `form:"client_id"     binding:"omitempty,uuid"`
	TechnicianID string `form:"technician_id" binding:"omitempty,uuid"`
	Keyword      string `form:"keyword"`
	From         string `form:"from"          binding:"omitempty,datetime=2006-01-02"`
	To           string `form:"to"            binding:"omitempty,datetime=2006-01-02"`
}

// CalendarRequest 日历订阅范围
type CalendarRequest struct {
	Days int `form:"days" binding:"omitempty,min=1,max=366"`
}

// CalibrationResponse 校准记录
type CalibrationResponse struct {
	ID                   string             `json:"id"`
	DeviceID             string             `json:"device_id"`
	DeviceName           string             `json:"device_name,omitempty"`
	SerialNumber         string             `json:"serial_number,omitempty"`
	ClientID             *string            `json:"client_id,omitempty"`
	ClientName           string             `json:"client_name,omitempty"`
	TechnicianID         *string            `json:"technician_id,omitempty"`
	TechnicianName       string             `json:"technician_name,omitempty"`
	ScheduledDate        string             `json:"scheduled_date"`
	CompletedDate        *string            `json:"completed_date,omitempty"`
	Status               string             `json:"status"`
	OverallStatus        *string            `json:"overall_status,omitempty"`
	Temperature          *float64           `json:"temperature,omitempty"`
	Humidity             *float64           `json:"humidity,omitempty"`
	Pressure             *float64           `json:"pressure,omitempty"`
	CalibrationStandard  *string            `json:"calibration_standard,omitempty"`
	Comments             *string            `json:"comments,omitempty"`
	CertificateGenerated bool               `json:"certificate_generated"`
	Version              int                `json:"version"`
	Measurement          *MeasurementRecord `json:"measurement,omitempty"`
}

// OverdueSweepResponse 逾期扫描结果
type OverdueSweepResponse struct {
	Updated int64 `json:"updated"`
}

// MeasurementRecord 写入 calibrations.measurement_data 的内容
//
// Snapshot 原样保存会话快照；其余字段为恢复表格与报表所需的派生数据。
type MeasurementRecord struct {
	Snapshot      session.Snapshot `json:"snapshot"`
	Merges        []grid.Merge     `json:"merges"`
	DecimalPlaces int              `json:"decimal_places"`
	AutoStatus    bool             `json:"auto_status"`
	Readings      []grid.Reading   `json:"readings"`
	Statistics    grid.Statistics  `json:"statistics"`
	OverallStatus string           `json:"overall_status"`
}

// GridState 还原为表格状态
func (m *MeasurementRecord) GridState() grid.State {
	return grid.State{
		Data:          m.Snapshot.CalibrationData,
		Merges:        m.Merges,
		DecimalPlaces: m.DecimalPlaces,
		AutoStatus:    m.AutoStatus,
	}
}
