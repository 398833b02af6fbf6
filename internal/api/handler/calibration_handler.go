package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/service"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/response"
)

const contentTypeICS = "text/calendar; charset=utf-8"

// CalibrationHandler 校准记录模块 HTTP 处理器
type CalibrationHandler struct {
	calibrationSvc service.CalibrationService
}

// NewCalibrationHandler 创建 CalibrationHandler
func NewCalibrationHandler(calibrationSvc service.CalibrationService) *CalibrationHandler {
	return &CalibrationHandler{calibrationSvc: calibrationSvc}
}

// ListCalibrations 校准记录列表
// GET /api/v1/calibrations
func (h *CalibrationHandler) ListCalibrations(c *gin.Context) {
	var req dto.CalibrationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.calibrationSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleCalibrationError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetCalibration 校准记录详情（含测量数据）
// GET /api/v1/calibrations/:id
func (h *CalibrationHandler) GetCalibration(c *gin.Context) {
	cal, err := h.calibrationSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleCalibrationError(c, err)
		return
	}

	response.OK(c, cal)
}

// CreateCalibration 安排校准
// POST /api/v1/calibrations
func (h *CalibrationHandler) CreateCalibration(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateCalibrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	cal, err := h.calibrationSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleCalibrationError(c, err)
		return
	}

	response.Created(c, cal)
}

// UpdateStatus 状态流转
// PUT /api/v1/calibrations/:id/status
func (h *CalibrationHandler) UpdateStatus(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateCalibrationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	cal, err := h.calibrationSvc.UpdateStatus(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleCalibrationError(c, err)
		return
	}

	response.OK(c, cal)
}

// SweepOverdue 手动触发逾期扫描（服务端也会定时执行）
// POST /api/v1/calibrations/overdue-sweep
func (h *CalibrationHandler) SweepOverdue(c *gin.Context) {
	n, err := h.calibrationSvc.SweepOverdue(c.Request.Context())
	if err != nil {
		h.handleCalibrationError(c, err)
		return
	}

	response.OK(c, dto.OverdueSweepResponse{Updated: n})
}

// Calendar 校准计划日历订阅
// GET /api/v1/calibrations/calendar.ics?days=90
func (h *CalibrationHandler) Calendar(c *gin.Context) {
	var req dto.CalendarRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	body, err := h.calibrationSvc.Calendar(c.Request.Context(), req.Days)
	if err != nil {
		h.handleCalibrationError(c, err)
		return
	}

	response.Attachment(c, "calibrations.ics", contentTypeICS, body)
}

func (h *CalibrationHandler) handleCalibrationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCalibrationNotFound):
		response.NotFound(c, 15001, "校准记录不存在")
	case errors.Is(err, service.ErrInvalidTransition):
		response.Unprocessable(c, 15002, "不允许的状态流转")
	case errors.Is(err, service.ErrVersionConflict):
		response.Conflict(c, 15003, "记录已被他人修改，请刷新后重试")
	case errors.Is(err, service.ErrTechnicianNotFound):
		response.BadRequest(c, 15004, "技术员不存在或已停用")
	case errors.Is(err, service.ErrDeviceRetired):
		response.Unprocessable(c, 15005, "设备已报废，不能安排校准")
	case errors.Is(err, service.ErrDeviceNotFound):
		response.NotFound(c, 15006, "设备不存在")
	default:
		response.InternalError(c)
	}
}
