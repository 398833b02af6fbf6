package model

import "time"

// 证书类型
const (
	CertificateTypeCalibration = "Calibration"
	CertificateTypeObservation = "Observation"
)

// Certificate 校准证书，对应 certificates
type Certificate struct {
	ID                string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CalibrationID     string    `gorm:"type:uuid;not null"                             json:"calibration_id"`
	CertificateNumber string    `gorm:"type:varchar(50);not null"                      json:"certificate_number"`
	Type              string    `gorm:"type:varchar(20);not null;default:'Calibration'" json:"type"`
	IssuedDate        time.Time `gorm:"type:date;not null"                             json:"issued_date"`
	ValidUntil        time.Time `gorm:"type:date;not null"                             json:"valid_until"`
	PdfURL            *string   `gorm:"column:pdf_url;type:varchar(500)"               json:"pdf_url,omitempty"`
	Downloaded        bool      `gorm:"not null;default:false"                         json:"downloaded"`
	EmailSent         bool      `gorm:"not null;default:false"                         json:"email_sent"`
	BaseModel

	// 关联
	Calibration *Calibration `gorm:"foreignKey:CalibrationID;references:ID" json:"calibration,omitempty"`
}

// TableName 指定表名
func (Certificate) TableName() string { return "certificates" }

// Expired 判断证书在 now 时是否已过期
func (c *Certificate) Expired(now time.Time) bool {
	return DateOnly(now).After(c.ValidUntil)
}
