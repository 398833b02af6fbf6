package dto

// ── 设备模块 DTO ──

// CreateDeviceRequest 创建设备
type CreateDeviceRequest struct {
	Name                string  `json:"name"                  binding:"required,min=1,max=200"`
	SerialNumber        string  `json:"serial_number"         binding:"required,min=1,max=100"`
	Manufacturer        *string `json:"manufacturer"          binding:"omitempty,max=100"`
	Model               *string `json:"model"                 binding:"omitempty,max=100"`
	DeviceType          *string `json:"device_type"           binding:"omitempty,max=100"`
	MeasurementRange    *string `json:"measurement_range"     binding:"omitempty,max=100"`
	Accuracy            *string `json:"accuracy"              binding:"omitempty,max=100"`
	ClientID            *string `json:"client_id"             binding:"omitempty,uuid"`
	CalibrationInterval int     `json:"calibration_interval"  binding:"omitempty,min=1,max=3650"`
	LastCalibrationDate *string `json:"last_calibration_date" binding:"omitempty,datetime=2006-01-02"`
	Status              string  `json:"status"                binding:"omitempty,oneof=active inactive maintenance retired"`
	Location            *string `json:"location"              binding:"omitempty,max=200"`
	Notes               *string `json:"notes"`
}

// UpdateDeviceRequest 更新设备（仅更新非 nil 字段）
type UpdateDeviceRequest struct {
	Name                *string `json:"name"                  binding:"omitempty,min=1,max=200"`
	SerialNumber        *string `json:"serial_number"         binding:"omitempty,min=1,max=100"`
	Manufacturer        *string `json:"manufacturer"          binding:"omitempty,max=100"`
	Model               *string `json:"model"                 binding:"omitempty,max=100"`
	DeviceType          *string `json:"device_type"           binding:"omitempty,max=100"`
	MeasurementRange    *string `json:"measurement_range"     binding:"omitempty,max=100"`
	Accuracy            *string `json:"accuracy"              binding:"omitempty,max=100"`
	ClientID            *string `json:"client_id"             binding:"omitempty,uuid"`
	CalibrationInterval *int    `json:"calibration_interval"  binding:"omitempty,min=1,max=3650"`
	LastCalibrationDate *string `json:"last_calibration_date" binding:"omitempty,datetime=2006-01-02"`
	Status              *string `json:"status"                binding:"omitempty,oneof=active inactive maintenance retired"`
	Location            *string `json:"location"              binding:"omitempty,max=200"`
	Notes               *string `json:"notes"`
}

// DeviceListRequest 设备列表查询
type DeviceListRequest struct {
	PaginationRequest
	ClientID string `form:"client_id" binding:"omitempty,uuid"`
	Status   string `form:"status"    binding:"omitempty,oneof=active inactive maintenance retired"`
	Keyword  string `form:"keyword"`
}

// DueDevicesRequest 即将到期设备查询
type DueDevicesRequest struct {
	Days int `form:"days" binding:"omitempty,min=1,max=365"`
}

// DeviceResponse 设备信息
type DeviceResponse struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	SerialNumber        string  `json:"serial_number"`
	Manufacturer        *string `json:"manufacturer,omitempty"`
	Model               *string `json:"model,omitempty"`
	DeviceType          *string `json:"device_type,omitempty"`
	MeasurementRange    *string `json:"measurement_range,omitempty"`
	Accuracy            *string `json:"accuracy,omitempty"`
	ClientID            *string `json:"client_id,omitempty"`
	ClientName          string  `json:"client_name,omitempty"`
	CalibrationInterval int     `json:"calibration_interval"`
	LastCalibrationDate *string `json:"last_calibration_date,omitempty"`
	NextCalibrationDate *string `json:"next_calibration_date,omitempty"`
	DaysUntilDue        *int    `json:"days_until_due,omitempty"` // 负数表示已逾期
	Status              string  `json:"status"`
	Location            *string `json:"location,omitempty"`
	Notes               *string `json:"notes,omitempty"`
}

// ImportDevicesResponse 设备导入结果
type ImportDevicesResponse struct {
	Created int              `json:"created"`
	Skipped int              `json:"skipped"`
	Errors  []ImportRowError `json:"errors"`
}

// ImportRowError 导入失败的行（行号从 1 开始，含表头）
type ImportRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}
