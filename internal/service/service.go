package service

import (
	"go.uber.org/zap"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/config"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/repository"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/jwt"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/redis"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth        AuthService
	Profile     ProfileService
	Client      ClientService
	Device      DeviceService
	Calibration CalibrationService
	Session     SessionService
	Certificate CertificateService
	Report      ReportService
	Export      ExportService
}

// NewService 创建 Service 聚合；rdb 为 nil 时 Token 黑名单与草稿镜像降级关闭
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	rdb *redis.Client,
	logger *zap.Logger,
) *Service {
	var (
		blacklist TokenBlacklist
		drafts    DraftStore
	)
	if rdb != nil {
		blacklist = rdb
		drafts = rdb
	}

	calCfg := &cfg.Calibration
	certs := NewCertificateService(calCfg, repo, logger)
	reports := NewReportService(repo, calCfg.DueSoonDays, logger)

	return &Service{
		Auth:        NewAuthService(repo, jwtMgr, blacklist, logger),
		Profile:     NewProfileService(repo, logger),
		Client:      NewClientService(repo, logger),
		Device:      NewDeviceService(repo, calCfg.DueSoonDays, logger),
		Calibration: NewCalibrationService(calCfg, repo, logger),
		Session:     NewSessionService(calCfg, repo, drafts, logger),
		Certificate: certs,
		Report:      reports,
		Export:      NewExportService(calCfg, repo, certs, reports, logger),
	}
}
