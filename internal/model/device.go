package model

import "time"

// 设备状态
const (
	DeviceStatusActive      = "active"
	DeviceStatusInactive    = "inactive"
	DeviceStatusMaintenance = "maintenance"
	DeviceStatusRetired     = "retired"
)

// DefaultCalibrationInterval 默认校准周期（天）
const DefaultCalibrationInterval = 365

// Device 受校设备，对应 devices
type Device struct {
	ID                  string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name                string     `gorm:"type:varchar(200);not null"                     json:"name"`
	SerialNumber        string     `gorm:"type:varchar(100);not null"                     json:"serial_number"`
	Manufacturer        *string    `gorm:"type:varchar(100)"                              json:"manufacturer,omitempty"`
	Model               *string    `gorm:"column:model;type:varchar(100)"                 json:"model,omitempty"`
	DeviceType          *string    `gorm:"type:varchar(100)"                              json:"device_type,omitempty"`
	MeasurementRange    *string    `gorm:"type:varchar(100)"                              json:"measurement_range,omitempty"`
	Accuracy            *string    `gorm:"type:varchar(100)"                              json:"accuracy,omitempty"`
	ClientID            *string    `gorm:"type:uuid"                                      json:"client_id,omitempty"`
	CalibrationInterval int        `gorm:"not null;default:365"                           json:"calibration_interval"`
	LastCalibrationDate *time.Time `gorm:"type:date"                                      json:"last_calibration_date,omitempty"`
	NextCalibrationDate *time.Time `gorm:"type:date"                                      json:"next_calibration_date,omitempty"`
	Status              string     `gorm:"type:varchar(20);not null;default:'active'"     json:"status"`
	Location            *string    `gorm:"type:varchar(200)"                              json:"location,omitempty"`
	Notes               *string    `gorm:"type:text"                                      json:"notes,omitempty"`
	SoftDeleteModel

	// 关联
	Client *Client `gorm:"foreignKey:ClientID;references:ID" json:"client,omitempty"`
}

// TableName 指定表名
func (Device) TableName() string { return "devices" }

// ApplyCalibration 记录一次完成的校准：下次到期日 = 校准日 + 周期天数
func (d *Device) ApplyCalibration(date time.Time) {
	interval := d.CalibrationInterval
	if interval <= 0 {
		interval = DefaultCalibrationInterval
	}
	last := DateOnly(date)
	next := last.AddDate(0, 0, interval)
	d.LastCalibrationDate = &last
	d.NextCalibrationDate = &next
}

// ValidDeviceStatus 判断设备状态取值
func ValidDeviceStatus(s string) bool {
	switch s {
	case DeviceStatusActive, DeviceStatusInactive, DeviceStatusMaintenance, DeviceStatusRetired:
		return true
	}
	return false
}
