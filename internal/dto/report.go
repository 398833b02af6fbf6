package dto

// ── 报表模块 DTO ──

// MonthlyReportRequest 月度报表范围
type MonthlyReportRequest struct {
	Months int `form:"months" binding:"omitempty,min=1,max=24"`
}

// SummaryResponse 仪表盘汇总
type SummaryResponse struct {
	TotalClients      int64            `json:"total_clients"`
	TotalDevices      int64            `json:"total_devices"`
	TotalCalibrations int64            `json:"total_calibrations"`
	ByStatus          map[string]int64 `json:"by_status"`
	DueSoon           int              `json:"due_soon"`
	Overdue           int64            `json:"overdue"`
	ComplianceRate    float64          `json:"compliance_rate"` // 已完成 / (已完成 + 逾期)，百分比
}

// MonthlyPoint 单月统计
type MonthlyPoint struct {
	Month     string  `json:"month"` // YYYY-MM
	Scheduled int     `json:"scheduled"`
	Completed int     `json:"completed"`
	Overdue   int     `json:"overdue"`
	PassRate  float64 `json:"pass_rate"`
}

// TechnicianStat 技术员绩效
type TechnicianStat struct {
	TechnicianID string  `json:"technician_id"`
	Name         string  `json:"name"`
	Completed    int     `json:"completed"`
	Passed       int     `json:"passed"`
	Failed       int     `json:"failed"`
	PassRate     float64 `json:"pass_rate"`
}
