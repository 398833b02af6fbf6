package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/grid"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/service"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/response"
)

// SessionHandler 校准录入页 HTTP 处理器
//
// 每个会话只属于打开它的用户，其他人访问返回 403。
type SessionHandler struct {
	sessionSvc service.SessionService
}

// NewSessionHandler 创建 SessionHandler
func NewSessionHandler(sessionSvc service.SessionService) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc}
}

// OpenSession 打开录入会话
// POST /api/v1/sessions
func (h *SessionHandler) OpenSession(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	sess, err := h.sessionSvc.Open(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.Created(c, sess)
}

// GetSession 会话视图
// GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	sess, err := h.sessionSvc.Get(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, sess)
}

// SetCells 批量编辑单元格；只读单元格计入 rejected
// PUT /api/v1/sessions/:id/cells
func (h *SessionHandler) SetCells(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.SetCellsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.sessionSvc.SetCells(c.Request.Context(), c.Param("id"), callerID, &req)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, result)
}

// SetPrecision 修改显示精度
// PUT /api/v1/sessions/:id/precision
func (h *SessionHandler) SetPrecision(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.SetPrecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	sess, err := h.sessionSvc.SetPrecision(c.Request.Context(), c.Param("id"), callerID, req.DecimalPlaces)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, sess)
}

// SetSelection 设置或清除选区
// PUT /api/v1/sessions/:id/selection
func (h *SessionHandler) SetSelection(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	sess, err := h.sessionSvc.SetSelection(c.Request.Context(), c.Param("id"), callerID, &req)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, sess)
}

// Merge 合并当前选区
// POST /api/v1/sessions/:id/merge
func (h *SessionHandler) Merge(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	sess, err := h.sessionSvc.Merge(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, sess)
}

// Unmerge 取消当前选区所在的合并区
// POST /api/v1/sessions/:id/unmerge
func (h *SessionHandler) Unmerge(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	sess, err := h.sessionSvc.Unmerge(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, sess)
}

// UpdateMeta 更新设备、技术员、环境条件等表单字段
// PUT /api/v1/sessions/:id/meta
func (h *SessionHandler) UpdateMeta(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.SessionMetaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	sess, err := h.sessionSvc.UpdateMeta(c.Request.Context(), c.Param("id"), callerID, &req)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, sess)
}

// Save 保存草稿
// POST /api/v1/sessions/:id/save
func (h *SessionHandler) Save(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.sessionSvc.Save(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, result)
}

// Complete 完成校准；响应携带 redirect
// POST /api/v1/sessions/:id/complete
func (h *SessionHandler) Complete(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.sessionSvc.Complete(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, result)
}

// CloseSession 关闭会话
// DELETE /api/v1/sessions/:id?discard=true
func (h *SessionHandler) CloseSession(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	discard := c.Query("discard") == "true"
	if err := h.sessionSvc.Close(c.Request.Context(), c.Param("id"), callerID, discard); err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, nil)
}

func (h *SessionHandler) handleSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.NotFound(c, 17001, "录入会话不存在或已过期")
	case errors.Is(err, service.ErrSessionNoDevice):
		response.Unprocessable(c, 17002, "请先选择设备")
	case errors.Is(err, service.ErrSessionCompleted):
		response.Conflict(c, 17003, "会话已完成，数据只读")
	case errors.Is(err, service.ErrSessionDirty):
		response.Conflict(c, 17004, "会话有未保存的修改")
	case errors.Is(err, service.ErrCalibrationFinal):
		response.Unprocessable(c, 17005, "校准记录已取消，不能录入")
	case errors.Is(err, service.ErrInvalidPoints):
		response.BadRequest(c, 17006, "校准点无效")
	case errors.Is(err, service.ErrSessionForbidden):
		response.Forbidden(c, 17007, "无权操作他人的录入会话")
	case errors.Is(err, grid.ErrInvalidPrecision):
		response.BadRequest(c, 17008, "小数位数必须在 1 到 5 之间")
	case errors.Is(err, service.ErrInvalidDate):
		response.BadRequest(c, 17009, "校准日期无效")
	case errors.Is(err, service.ErrDeviceNotFound):
		response.NotFound(c, 17010, "设备不存在")
	case errors.Is(err, service.ErrVersionConflict):
		response.Conflict(c, 17011, "记录已被他人修改，请刷新后重试")
	case errors.Is(err, service.ErrCalibrationNotFound):
		response.NotFound(c, 17012, "校准记录不存在")
	case errors.Is(err, service.ErrTechnicianNotFound):
		response.BadRequest(c, 17013, "技术员不存在或已停用")
	default:
		response.InternalError(c)
	}
}
