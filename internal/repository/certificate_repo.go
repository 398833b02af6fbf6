package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
)

// CertificateListFilters 证书列表筛选条件
type CertificateListFilters struct {
	Type    string
	Keyword string
}

// CertificateRepository 证书数据访问接口
type CertificateRepository interface {
	Create(ctx context.Context, cert *model.Certificate) error
	GetByID(ctx context.Context, id string) (*model.Certificate, error)
	GetByCalibrationID(ctx context.Context, calibrationID string) (*model.Certificate, error)
	Update(ctx context.Context, cert *model.Certificate) error
	List(ctx context.Context, filters *CertificateListFilters, offset, limit int) ([]model.Certificate, int64, error)
	// LastNumber 返回以 prefix 开头的最大证书编号，没有时返回 gorm.ErrRecordNotFound
	LastNumber(ctx context.Context, prefix string) (string, error)
}

type certificateRepo struct {
	db *gorm.DB
}

// NewCertificateRepo 创建 CertificateRepository 实例
func NewCertificateRepo(db *gorm.DB) CertificateRepository {
	return &certificateRepo{db: db}
}

func (r *certificateRepo) Create(ctx context.Context, cert *model.Certificate) error {
	return r.db.WithContext(ctx).Omit("Calibration").Create(cert).Error
}

func (r *certificateRepo) GetByID(ctx context.Context, id string) (*model.Certificate, error) {
	var cert model.Certificate
	err := r.db.WithContext(ctx).
		Preload("Calibration.Device").
		Preload("Calibration.Client").
		Preload("Calibration.Technician").
		Where("id = ?", id).
		First(&cert).Error
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *certificateRepo) GetByCalibrationID(ctx context.Context, calibrationID string) (*model.Certificate, error) {
	var cert model.Certificate
	err := r.db.WithContext(ctx).
		Where("calibration_id = ?", calibrationID).
		First(&cert).Error
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *certificateRepo) Update(ctx context.Context, cert *model.Certificate) error {
	return r.db.WithContext(ctx).Omit("Calibration").Save(cert).Error
}

func (r *certificateRepo) List(ctx context.Context, filters *CertificateListFilters, offset, limit int) ([]model.Certificate, int64, error) {
	var certs []model.Certificate
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Certificate{})
	if filters != nil {
		if filters.Type != "" {
			db = db.Where("type = ?", filters.Type)
		}
		if filters.Keyword != "" {
			kw := "%" + escapeLike(filters.Keyword) + "%"
			db = db.Where("certificate_number ILIKE ? OR calibration_id IN (?)", kw,
				r.db.Model(&model.Calibration{}).Select("calibrations.id").
					Joins("JOIN devices ON devices.id = calibrations.device_id").
					Where("devices.name ILIKE ? OR devices.serial_number ILIKE ?", kw, kw))
		}
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Preload("Calibration.Device").Preload("Calibration.Client").
		Offset(offset).Limit(limit).
		Order("issued_date DESC, certificate_number DESC").
		Find(&certs).Error; err != nil {
		return nil, 0, err
	}
	return certs, total, nil
}

func (r *certificateRepo) LastNumber(ctx context.Context, prefix string) (string, error) {
	var cert model.Certificate
	err := r.db.WithContext(ctx).
		Select("certificate_number").
		Where("certificate_number LIKE ?", escapeLike(prefix)+"%").
		Order("LENGTH(certificate_number) DESC, certificate_number DESC").
		First(&cert).Error
	if err != nil {
		return "", err
	}
	return cert.CertificateNumber, nil
}
