package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/service"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/response"
)

// DeviceHandler 设备模块 HTTP 处理器
type DeviceHandler struct {
	deviceSvc service.DeviceService
}

// NewDeviceHandler 创建 DeviceHandler
func NewDeviceHandler(deviceSvc service.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceSvc: deviceSvc}
}

// ListDevices 设备列表
// GET /api/v1/devices
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	var req dto.DeviceListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.deviceSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleDeviceError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// ListDue 即将到期（含已逾期）的设备
// GET /api/v1/devices/due?days=30
func (h *DeviceHandler) ListDue(c *gin.Context) {
	var req dto.DueDevicesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, err := h.deviceSvc.ListDue(c.Request.Context(), req.Days)
	if err != nil {
		h.handleDeviceError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetDevice 设备详情
// GET /api/v1/devices/:id
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	device, err := h.deviceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleDeviceError(c, err)
		return
	}

	response.OK(c, device)
}

// CreateDevice 登记设备
// POST /api/v1/devices
func (h *DeviceHandler) CreateDevice(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	device, err := h.deviceSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleDeviceError(c, err)
		return
	}

	response.Created(c, device)
}

// UpdateDevice 更新设备
// PUT /api/v1/devices/:id
func (h *DeviceHandler) UpdateDevice(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	device, err := h.deviceSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleDeviceError(c, err)
		return
	}

	response.OK(c, device)
}

// DeleteDevice 删除设备
// DELETE /api/v1/devices/:id
func (h *DeviceHandler) DeleteDevice(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.deviceSvc.Delete(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleDeviceError(c, err)
		return
	}

	response.OK(c, nil)
}

// ImportDevices 批量导入设备
// POST /api/v1/devices/import
//
//   - multipart/form-data, field="file"（.xlsx，首行为表头）
func (h *DeviceHandler) ImportDevices(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		response.BadRequest(c, 14007, "请上传 file 字段")
		return
	}
	defer file.Close()

	result, err := h.deviceSvc.Import(c.Request.Context(), file, callerID)
	if err != nil {
		h.handleDeviceError(c, err)
		return
	}

	response.Created(c, result)
}

func (h *DeviceHandler) handleDeviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDeviceNotFound):
		response.NotFound(c, 14001, "设备不存在")
	case errors.Is(err, service.ErrSerialExists):
		response.Conflict(c, 14002, "序列号已存在")
	case errors.Is(err, service.ErrInvalidDate):
		response.BadRequest(c, 14003, "日期格式错误，应为 YYYY-MM-DD")
	case errors.Is(err, service.ErrInvalidImportFile):
		response.BadRequest(c, 14004, "无法解析导入文件，请上传 .xlsx")
	case errors.Is(err, service.ErrImportMissingCols):
		response.BadRequest(c, 14005, "导入文件缺少 name 或 serial_number 列")
	case errors.Is(err, service.ErrClientNotFound):
		response.NotFound(c, 14006, "客户不存在")
	default:
		response.InternalError(c)
	}
}
