package dto

// ── 证书模块 DTO ──

// CreateCertificateRequest 生成证书
type CreateCertificateRequest struct {
	CalibrationID  string `json:"calibration_id"  binding:"required,uuid"`
	Type           string `json:"type"            binding:"omitempty,oneof=Calibration Observation"`
	ValidityMonths int    `json:"validity_months" binding:"omitempty,min=1,max=120"`
}

// CertificateListRequest 证书列表查询
type CertificateListRequest struct {
	PaginationRequest
	Type    string `form:"type"    binding:"omitempty,oneof=Calibration Observation"`
	Keyword string `form:"keyword"`
}

// CertificateResponse 证书信息
type CertificateResponse struct {
	ID                string  `json:"id"`
	CalibrationID     string  `json:"calibration_id"`
	CertificateNumber string  `json:"certificate_number"`
	Type              string  `json:"type"`
	IssuedDate        string  `json:"issued_date"`
	ValidUntil        string  `json:"valid_until"`
	Expired           bool    `json:"expired"`
	PdfURL            *string `json:"pdf_url,omitempty"`
	Downloaded        bool    `json:"downloaded"`
	EmailSent         bool    `json:"email_sent"`
	DeviceName        string  `json:"device_name,omitempty"`
	SerialNumber      string  `json:"serial_number,omitempty"`
	ClientName        string  `json:"client_name,omitempty"`
	TechnicianName    string  `json:"technician_name,omitempty"`
	OverallStatus     *string `json:"overall_status,omitempty"`
}
