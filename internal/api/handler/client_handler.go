package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/service"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/response"
)

// ClientHandler 客户模块 HTTP 处理器
type ClientHandler struct {
	clientSvc service.ClientService
}

// NewClientHandler 创建 ClientHandler
func NewClientHandler(clientSvc service.ClientService) *ClientHandler {
	return &ClientHandler{clientSvc: clientSvc}
}

// ListClients 客户列表
// GET /api/v1/clients
func (h *ClientHandler) ListClients(c *gin.Context) {
	var req dto.ClientListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.clientSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleClientError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetClient 客户详情
// GET /api/v1/clients/:id
func (h *ClientHandler) GetClient(c *gin.Context) {
	client, err := h.clientSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleClientError(c, err)
		return
	}

	response.OK(c, client)
}

// CreateClient 创建客户
// POST /api/v1/clients
func (h *ClientHandler) CreateClient(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	client, err := h.clientSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleClientError(c, err)
		return
	}

	response.Created(c, client)
}

// UpdateClient 更新客户
// PUT /api/v1/clients/:id
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	client, err := h.clientSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleClientError(c, err)
		return
	}

	response.OK(c, client)
}

// DeleteClient 删除客户（软删除）
// DELETE /api/v1/clients/:id
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.clientSvc.Delete(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleClientError(c, err)
		return
	}

	response.OK(c, nil)
}

func (h *ClientHandler) handleClientError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrClientNotFound):
		response.NotFound(c, 13001, "客户不存在")
	case errors.Is(err, service.ErrClientHasDevices):
		response.Conflict(c, 13002, "客户名下仍有设备，无法删除")
	default:
		response.InternalError(c)
	}
}
