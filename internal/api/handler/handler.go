package handler

import "github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth        *AuthHandler
	Profile     *ProfileHandler
	Client      *ClientHandler
	Device      *DeviceHandler
	Calibration *CalibrationHandler
	Session     *SessionHandler
	Certificate *CertificateHandler
	Report      *ReportHandler
	Export      *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Auth:        NewAuthHandler(svc.Auth),
		Profile:     NewProfileHandler(svc.Profile),
		Client:      NewClientHandler(svc.Client),
		Device:      NewDeviceHandler(svc.Device),
		Calibration: NewCalibrationHandler(svc.Calibration),
		Session:     NewSessionHandler(svc.Session),
		Certificate: NewCertificateHandler(svc.Certificate),
		Report:      NewReportHandler(svc.Report),
		Export:      NewExportHandler(svc.Export),
	}
}
