package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/config"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/repository"
	pkgerrors "github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/errors"
)

var (
	ErrCertificateNotFound     = errors.New("证书不存在")
	ErrCertificateExists       = errors.New("该校准记录已生成证书")
	ErrCalibrationNotCompleted = errors.New("校准尚未完成，不能生成证书")
)

// certificateNumberRetries 证书编号并发冲突时的重试次数
const certificateNumberRetries = 3

// CertificateService 证书业务接口
type CertificateService interface {
	List(ctx context.Context, req *dto.CertificateListRequest) ([]dto.CertificateResponse, int64, error)
	GetByID(ctx context.Context, id string) (*dto.CertificateResponse, error)
	// Create 为已完成的校准生成证书，编号形如 CAL-2026-001，按年递增
	Create(ctx context.Context, req *dto.CreateCertificateRequest, callerID string) (*dto.CertificateResponse, error)
	MarkDownloaded(ctx context.Context, id, callerID string) error
	MarkEmailSent(ctx context.Context, id, callerID string) (*dto.CertificateResponse, error)
}

type certificateService struct {
	cfg    *config.CalibrationConfig
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewCertificateService 创建 CertificateService 实例
func NewCertificateService(cfg *config.CalibrationConfig, repo *repository.Repository, logger *zap.Logger) CertificateService {
	return &certificateService{cfg: cfg, repo: repo, logger: logger, now: time.Now}
}

func (s *certificateService) List(ctx context.Context, req *dto.CertificateListRequest) ([]dto.CertificateResponse, int64, error) {
	filters := &repository.CertificateListFilters{
		Type:    req.Type,
		Keyword: strings.TrimSpace(req.Keyword),
	}
	certs, total, err := s.repo.Certificate.List(ctx, filters, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询证书列表失败", zap.Error(err))
		return nil, 0, err
	}

	now := s.now()
	list := make([]dto.CertificateResponse, 0, len(certs))
	for i := range certs {
		list = append(list, toCertificateResponse(&certs[i], now))
	}
	return list, total, nil
}

func (s *certificateService) GetByID(ctx context.Context, id string) (*dto.CertificateResponse, error) {
	cert, err := getCertificate(ctx, s.repo, s.logger, id)
	if err != nil {
		return nil, err
	}
	resp := toCertificateResponse(cert, s.now())
	return &resp, nil
}

func (s *certificateService) Create(ctx context.Context, req *dto.CreateCertificateRequest, callerID string) (*dto.CertificateResponse, error) {
	cal, err := getCalibration(ctx, s.repo, s.logger, req.CalibrationID)
	if err != nil {
		return nil, err
	}
	if cal.Status != model.CalibrationStatusCompleted {
		return nil, ErrCalibrationNotCompleted
	}
	if cal.CertificateGenerated {
		return nil, ErrCertificateExists
	}
	if _, err := s.repo.Certificate.GetByCalibrationID(ctx, cal.ID); err == nil {
		return nil, ErrCertificateExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询证书失败", zap.String("calibration_id", cal.ID), zap.Error(err))
		return nil, err
	}

	issued := model.DateOnly(s.now())
	certType := req.Type
	if certType == "" {
		certType = model.CertificateTypeCalibration
	}
	cert := &model.Certificate{
		CalibrationID: cal.ID,
		Type:          certType,
		IssuedDate:    issued,
		ValidUntil:    s.validUntil(issued, req.ValidityMonths, cal.Device),
	}
	cert.CreatedBy = &callerID
	cert.UpdatedBy = &callerID

	for attempt := 1; ; attempt++ {
		err = s.create(ctx, cal, cert, callerID)
		if !errors.Is(err, gorm.ErrDuplicatedKey) || attempt >= certificateNumberRetries {
			break
		}
		// 编号被并发请求占用时重新取号；同一校准的重复生成在下一轮被拦截
		if _, gerr := s.repo.Certificate.GetByCalibrationID(ctx, cal.ID); gerr == nil {
			return nil, ErrCertificateExists
		}
		s.logger.Warn("证书编号冲突，重新生成", zap.String("number", cert.CertificateNumber), zap.Int("attempt", attempt))
		if cal, err = getCalibration(ctx, s.repo, s.logger, req.CalibrationID); err != nil {
			return nil, err
		}
	}
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrDuplicatedKey):
			return nil, ErrCertificateExists
		case errors.Is(err, pkgerrors.ErrOptimisticLock):
			return nil, ErrVersionConflict
		}
		s.logger.Error("生成证书失败", zap.String("calibration_id", cal.ID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("证书已生成",
		zap.String("number", cert.CertificateNumber),
		zap.String("calibration_id", cal.ID),
	)
	return s.GetByID(ctx, cert.ID)
}

// create 在一个事务内取号、写入证书并标记校准记录
func (s *certificateService) create(ctx context.Context, cal *model.Calibration, cert *model.Certificate, callerID string) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil && tx != nil {
			tx.Rollback()
			panic(r)
		}
	}()
	txRepo := s.repo.WithTx(tx)

	number, err := s.nextNumber(ctx, txRepo, cert.IssuedDate.Year())
	if err != nil {
		rollback(tx)
		return err
	}
	cert.ID = ""
	cert.CertificateNumber = number
	if err := txRepo.Certificate.Create(ctx, cert); err != nil {
		rollback(tx)
		return err
	}

	cal.CertificateGenerated = true
	cal.UpdatedBy = &callerID
	if err := txRepo.Calibration.Update(ctx, cal); err != nil {
		rollback(tx)
		return err
	}
	return commit(tx)
}

// nextNumber 取当年最大编号加一，序号至少三位
func (s *certificateService) nextNumber(ctx context.Context, repo *repository.Repository, year int) (string, error) {
	prefix := fmt.Sprintf("%s-%d-", s.cfg.CertificatePrefix, year)
	last, err := repo.Certificate.LastNumber(ctx, prefix)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	seq := 0
	if last != "" {
		seq, err = strconv.Atoi(strings.TrimPrefix(last, prefix))
		if err != nil {
			return "", fmt.Errorf("无法解析证书编号 %q: %w", last, err)
		}
	}
	return fmt.Sprintf("%s%03d", prefix, seq+1), nil
}

// validUntil 有效期优先级：请求指定月数 > 设备校准周期 > 默认月数
func (s *certificateService) validUntil(issued time.Time, months int, device *model.Device) time.Time {
	switch {
	case months > 0:
		return issued.AddDate(0, months, 0)
	case device != nil && device.CalibrationInterval > 0:
		return issued.AddDate(0, 0, device.CalibrationInterval)
	default:
		return issued.AddDate(0, s.cfg.CertificateValidityMonths, 0)
	}
}

func (s *certificateService) MarkDownloaded(ctx context.Context, id, callerID string) error {
	cert, err := getCertificate(ctx, s.repo, s.logger, id)
	if err != nil {
		return err
	}
	if cert.Downloaded {
		return nil
	}
	cert.Downloaded = true
	cert.UpdatedBy = &callerID
	if err := s.repo.Certificate.Update(ctx, cert); err != nil {
		s.logger.Error("更新证书下载状态失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *certificateService) MarkEmailSent(ctx context.Context, id, callerID string) (*dto.CertificateResponse, error) {
	cert, err := getCertificate(ctx, s.repo, s.logger, id)
	if err != nil {
		return nil, err
	}
	if !cert.EmailSent {
		cert.EmailSent = true
		cert.UpdatedBy = &callerID
		if err := s.repo.Certificate.Update(ctx, cert); err != nil {
			s.logger.Error("更新证书邮件状态失败", zap.String("id", id), zap.Error(err))
			return nil, err
		}
	}
	resp := toCertificateResponse(cert, s.now())
	return &resp, nil
}

// ── 辅助函数 ──

func getCertificate(ctx context.Context, repo *repository.Repository, logger *zap.Logger, id string) (*model.Certificate, error) {
	cert, err := repo.Certificate.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCertificateNotFound
		}
		logger.Error("查询证书失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return cert, nil
}

func toCertificateResponse(c *model.Certificate, now time.Time) dto.CertificateResponse {
	resp := dto.CertificateResponse{
		ID:                c.ID,
		CalibrationID:     c.CalibrationID,
		CertificateNumber: c.CertificateNumber,
		Type:              c.Type,
		IssuedDate:        c.IssuedDate.Format(dto.DateLayout),
		ValidUntil:        c.ValidUntil.Format(dto.DateLayout),
		Expired:           c.Expired(now),
		PdfURL:            c.PdfURL,
		Downloaded:        c.Downloaded,
		EmailSent:         c.EmailSent,
	}
	if cal := c.Calibration; cal != nil {
		resp.OverallStatus = cal.OverallStatus
		if cal.Device != nil {
			resp.DeviceName = cal.Device.Name
			resp.SerialNumber = cal.Device.SerialNumber
		}
		if cal.Client != nil {
			resp.ClientName = cal.Client.Name
		}
		if cal.Technician != nil {
			resp.TechnicianName = cal.Technician.FullName
		}
	}
	return resp
}
