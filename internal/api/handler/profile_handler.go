package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/service"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/response"
)

// ProfileHandler 用户模块 HTTP 处理器（管理员）
type ProfileHandler struct {
	profileSvc service.ProfileService
}

// NewProfileHandler 创建 ProfileHandler
func NewProfileHandler(profileSvc service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileSvc: profileSvc}
}

// ListProfiles 用户列表
// GET /api/v1/profiles
func (h *ProfileHandler) ListProfiles(c *gin.Context) {
	var req dto.ProfileListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.profileSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleProfileError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetProfile 用户详情
// GET /api/v1/profiles/:id
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	profile, err := h.profileSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleProfileError(c, err)
		return
	}

	response.OK(c, profile)
}

// CreateProfile 创建用户
// POST /api/v1/profiles
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	profile, err := h.profileSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleProfileError(c, err)
		return
	}

	response.Created(c, profile)
}

// UpdateProfile 更新用户
// PUT /api/v1/profiles/:id
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	profile, err := h.profileSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleProfileError(c, err)
		return
	}

	response.OK(c, profile)
}

// AssignRole 分配角色
// PUT /api/v1/profiles/:id/role
func (h *ProfileHandler) AssignRole(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	profile, err := h.profileSvc.AssignRole(c.Request.Context(), c.Param("id"), req.Role, callerID)
	if err != nil {
		h.handleProfileError(c, err)
		return
	}

	response.OK(c, profile)
}

// DeactivateProfile 停用用户
// DELETE /api/v1/profiles/:id
func (h *ProfileHandler) DeactivateProfile(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.profileSvc.Deactivate(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleProfileError(c, err)
		return
	}

	response.OK(c, nil)
}

func (h *ProfileHandler) handleProfileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrProfileNotFound):
		response.NotFound(c, 12001, "用户不存在")
	case errors.Is(err, service.ErrEmailExists):
		response.Conflict(c, 12002, "邮箱已被使用")
	case errors.Is(err, service.ErrInvalidRole):
		response.BadRequest(c, 12003, "无效的角色")
	case errors.Is(err, service.ErrSelfDemotion):
		response.Forbidden(c, 12004, "不能停用或降级自己的账号")
	default:
		response.InternalError(c)
	}
}
