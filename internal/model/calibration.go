package model

import (
	"time"

	"gorm.io/datatypes"
)

// 校准记录状态
const (
	CalibrationStatusScheduled  = "scheduled"
	CalibrationStatusInProgress = "in_progress"
	CalibrationStatusCompleted  = "completed"
	CalibrationStatusOverdue    = "overdue"
	CalibrationStatusCancelled  = "cancelled"
)

// Calibration 校准记录，对应 calibrations
type Calibration struct {
	ID                   string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	DeviceID             string         `gorm:"type:uuid;not null"                             json:"device_id"`
	ClientID             *string        `gorm:"type:uuid"                                      json:"client_id,omitempty"`
	TechnicianID         *string        `gorm:"type:uuid"                                      json:"technician_id,omitempty"`
	ScheduledDate        time.Time      `gorm:"type:date;not null"                             json:"scheduled_date"`
	CompletedDate        *time.Time     `gorm:"type:timestamptz"                               json:"completed_date,omitempty"`
	Status               string         `gorm:"type:varchar(20);not null;default:'scheduled'"  json:"status"`
	OverallStatus        *string        `gorm:"type:varchar(20)"                               json:"overall_status,omitempty"`
	MeasurementData      datatypes.JSON `gorm:"type:jsonb"                                     json:"measurement_data,omitempty"`
	Temperature          *float64       `gorm:"type:numeric(6,2)"                              json:"temperature,omitempty"`
	Humidity             *float64       `gorm:"type:numeric(5,2)"                              json:"humidity,omitempty"`
	Pressure             *float64       `gorm:"type:numeric(7,2)"                              json:"pressure,omitempty"`
	CalibrationStandard  *string        `gorm:"type:varchar(200)"                              json:"calibration_standard,omitempty"`
	Comments             *string        `gorm:"type:text"                                      json:"comments,omitempty"`
	CertificateGenerated bool           `gorm:"not null;default:false"                         json:"certificate_generated"`
	VersionedModel

	// 关联
	Device     *Device  `gorm:"foreignKey:DeviceID;references:ID"     json:"device,omitempty"`
	Client     *Client  `gorm:"foreignKey:ClientID;references:ID"     json:"client,omitempty"`
	Technician *Profile `gorm:"foreignKey:TechnicianID;references:ID" json:"technician,omitempty"`
}

// TableName 指定表名
func (Calibration) TableName() string { return "calibrations" }

// calibrationTransitions 允许的状态流转
var calibrationTransitions = map[string][]string{
	CalibrationStatusScheduled:  {CalibrationStatusInProgress, CalibrationStatusCompleted, CalibrationStatusOverdue, CalibrationStatusCancelled},
	CalibrationStatusOverdue:    {CalibrationStatusInProgress, CalibrationStatusCompleted, CalibrationStatusCancelled},
	CalibrationStatusInProgress: {CalibrationStatusCompleted, CalibrationStatusCancelled},
}

// CanTransition 判断状态能否从 from 流转到 to
func CanTransition(from, to string) bool {
	for _, s := range calibrationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsFinal completed / cancelled 不再变化
func (c *Calibration) IsFinal() bool {
	return c.Status == CalibrationStatusCompleted || c.Status == CalibrationStatusCancelled
}
