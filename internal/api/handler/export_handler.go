package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/service"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/response"
)

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportCalibration 导出校准数据表
// GET /api/v1/calibrations/:id/export
func (h *ExportHandler) ExportCalibration(c *gin.Context) {
	buf, filename, err := h.exportSvc.ExportCalibration(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	response.Attachment(c, filename, contentTypeXLSX, buf.Bytes())
}

// DownloadCertificate 下载证书数据表，并标记为已下载
// GET /api/v1/certificates/:id/download
func (h *ExportHandler) DownloadCertificate(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportCertificate(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	response.Attachment(c, filename, contentTypeXLSX, buf.Bytes())
}

// ExportReport 导出报表工作簿
// GET /api/v1/reports/export
func (h *ExportHandler) ExportReport(c *gin.Context) {
	buf, filename, err := h.exportSvc.ExportReport(c.Request.Context())
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	response.Attachment(c, filename, contentTypeXLSX, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCalibrationNotFound):
		response.NotFound(c, 15001, "校准记录不存在")
	case errors.Is(err, service.ErrExportNoMeasurement):
		response.Unprocessable(c, 15101, "该校准记录暂无测量数据")
	case errors.Is(err, service.ErrCertificateNotFound),
		errors.Is(err, service.ErrVersionConflict):
		handleCertificateError(c, err)
	case errors.Is(err, service.ErrExportGenerateFail):
		response.Error(c, http.StatusInternalServerError, 18002, "生成 Excel 文件失败")
	default:
		response.InternalError(c)
	}
}
