package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/service"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/response"
)

// ReportHandler 报表 / 仪表盘 HTTP 处理器
type ReportHandler struct {
	reportSvc service.ReportService
}

// NewReportHandler 创建 ReportHandler
func NewReportHandler(reportSvc service.ReportService) *ReportHandler {
	return &ReportHandler{reportSvc: reportSvc}
}

// Summary 仪表盘汇总
// GET /api/v1/reports/summary
func (h *ReportHandler) Summary(c *gin.Context) {
	summary, err := h.reportSvc.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 18001, "统计失败")
		return
	}

	response.OK(c, summary)
}

// Monthly 月度趋势
// GET /api/v1/reports/monthly?months=6
func (h *ReportHandler) Monthly(c *gin.Context) {
	var req dto.MonthlyReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	points, err := h.reportSvc.Monthly(c.Request.Context(), req.Months)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 18001, "统计失败")
		return
	}

	response.OK(c, gin.H{"list": points})
}

// Technicians 技术员绩效
// GET /api/v1/reports/technicians?months=12
func (h *ReportHandler) Technicians(c *gin.Context) {
	var req dto.MonthlyReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	stats, err := h.reportSvc.Technicians(c.Request.Context(), req.Months)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 18001, "统计失败")
		return
	}

	response.OK(c, gin.H{"list": stats})
}
