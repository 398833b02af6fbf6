package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/service"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/response"
)

// CertificateHandler 证书模块 HTTP 处理器
type CertificateHandler struct {
	certificateSvc service.CertificateService
}

// NewCertificateHandler 创建 CertificateHandler
func NewCertificateHandler(certificateSvc service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificateSvc: certificateSvc}
}

// ListCertificates 证书列表
// GET /api/v1/certificates
func (h *CertificateHandler) ListCertificates(c *gin.Context) {
	var req dto.CertificateListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.certificateSvc.List(c.Request.Context(), &req)
	if err != nil {
		handleCertificateError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetCertificate 证书详情
// GET /api/v1/certificates/:id
func (h *CertificateHandler) GetCertificate(c *gin.Context) {
	cert, err := h.certificateSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleCertificateError(c, err)
		return
	}

	response.OK(c, cert)
}

// CreateCertificate 为已完成的校准生成证书
// POST /api/v1/certificates
func (h *CertificateHandler) CreateCertificate(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	cert, err := h.certificateSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		handleCertificateError(c, err)
		return
	}

	response.Created(c, cert)
}

// MarkEmailSent 标记证书已发送给客户
// POST /api/v1/certificates/:id/email-sent
func (h *CertificateHandler) MarkEmailSent(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	cert, err := h.certificateSvc.MarkEmailSent(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		handleCertificateError(c, err)
		return
	}

	response.OK(c, cert)
}

// handleCertificateError 证书相关错误；下载接口（ExportHandler）共用
func handleCertificateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCertificateNotFound):
		response.NotFound(c, 16001, "证书不存在")
	case errors.Is(err, service.ErrCertificateExists):
		response.Conflict(c, 16002, "该校准记录已生成证书")
	case errors.Is(err, service.ErrCalibrationNotCompleted):
		response.Unprocessable(c, 16003, "校准尚未完成，不能生成证书")
	case errors.Is(err, service.ErrCalibrationNotFound):
		response.NotFound(c, 16004, "校准记录不存在")
	case errors.Is(err, service.ErrVersionConflict):
		response.Conflict(c, 16005, "记录已被他人修改，请刷新后重试")
	default:
		response.InternalError(c)
	}
}
