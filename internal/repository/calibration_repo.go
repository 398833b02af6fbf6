package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
	pkgerrors "github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/errors"
)

// CalibrationListFilters 校准记录筛选条件
type CalibrationListFilters struct {
	Status       string
	DeviceID     string
	ClientID     string
	TechnicianID string
	Keyword      string
	From         *time.Time
	To           *time.Time
}

// CalibrationRepository 校准记录数据访问接口
type CalibrationRepository interface {
	Create(ctx context.Context, cal *model.Calibration) error
	GetByID(ctx context.Context, id string) (*model.Calibration, error)
	// Update 乐观锁更新，版本不一致返回 pkgerrors.ErrOptimisticLock
	Update(ctx context.Context, cal *model.Calibration) error
	List(ctx context.Context, filters *CalibrationListFilters, offset, limit int) ([]model.Calibration, int64, error)
	// ListBetween 计划日期或完成日期落在 [from, to) 内的记录
	ListBetween(ctx context.Context, from, to time.Time) ([]model.Calibration, error)
	// MarkOverdue 计划日期早于 today 且仍为 scheduled 的记录置为 overdue
	MarkOverdue(ctx context.Context, today time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type calibrationRepo struct {
	db *gorm.DB
}

// NewCalibrationRepo 创建 CalibrationRepository 实例
func NewCalibrationRepo(db *gorm.DB) CalibrationRepository {
	return &calibrationRepo{db: db}
}

func (r *calibrationRepo) Create(ctx context.Context, cal *model.Calibration) error {
	return r.db.WithContext(ctx).Omit("Device", "Client", "Technician").Create(cal).Error
}

func (r *calibrationRepo) GetByID(ctx context.Context, id string) (*model.Calibration, error) {
	var cal model.Calibration
	err := r.db.WithContext(ctx).
		Preload("Device").
		Preload("Client").
		Preload("Technician").
		Where("id = ?", id).
		First(&cal).Error
	if err != nil {
		return nil, err
	}
	return &cal, nil
}

func (r *calibrationRepo) Update(ctx context.Context, cal *model.Calibration) error {
	oldVersion := cal.Version
	result := r.db.WithContext(ctx).
		Model(&model.Calibration{}).
		Where("id = ? AND version = ?", cal.ID, oldVersion).
		Updates(map[string]interface{}{
			"device_id":             cal.DeviceID,
			"client_id":             cal.ClientID,
			"technician_id":         cal.TechnicianID,
			"scheduled_date":        cal.ScheduledDate,
			"completed_date":        cal.CompletedDate,
			"status":                cal.Status,
			"overall_status":        cal.OverallStatus,
			"measurement_data":      cal.MeasurementData,
			"temperature":           cal.Temperature,
			"humidity":              cal.Humidity,
			"pressure":              cal.Pressure,
			"calibration_standard":  cal.CalibrationStandard,
			"comments":              cal.Comments,
			"certificate_generated": cal.CertificateGenerated,
			"updated_by":            cal.UpdatedBy,
			"updated_at":            gorm.Expr("NOW()"),
			"version":               oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	cal.Version = oldVersion + 1
	return nil
}

func (r *calibrationRepo) List(ctx context.Context, filters *CalibrationListFilters, offset, limit int) ([]model.Calibration, int64, error) {
	var cals []model.Calibration
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Calibration{})
	if filters != nil {
		if filters.Status != "" {
			db = db.Where("calibrations.status = ?", filters.Status)
		}
		if filters.DeviceID != "" {
			db = db.Where("calibrations.device_id = ?", filters.DeviceID)
		}
		if filters.ClientID != "" {
			db = db.Where("calibrations.client_id = ?", filters.ClientID)
		}
		if filters.TechnicianID != "" {
			db = db.Where("calibrations.technician_id = ?", filters.TechnicianID)
		}
		if filters.From != nil {
			db = db.Where("calibrations.scheduled_date >= ?", *filters.From)
		}
		if filters.To != nil {
			db = db.Where("calibrations.scheduled_date < ?", *filters.To)
		}
		if filters.Keyword != "" {
			kw := "%" + escapeLike(filters.Keyword) + "%"
			db = db.Where("calibrations.device_id IN (?)",
				r.db.Model(&model.Device{}).Select("id").
					Where("name ILIKE ? OR serial_number ILIKE ?", kw, kw))
		}
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Preload("Device").Preload("Client").Preload("Technician").
		Offset(offset).Limit(limit).
		Order("calibrations.scheduled_date DESC").
		Find(&cals).Error; err != nil {
		return nil, 0, err
	}
	return cals, total, nil
}

func (r *calibrationRepo) ListBetween(ctx context.Context, from, to time.Time) ([]model.Calibration, error) {
	var cals []model.Calibration
	err := r.db.WithContext(ctx).
		Preload("Device").
		Preload("Client").
		Preload("Technician").
		Where("(scheduled_date >= ? AND scheduled_date < ?) OR (completed_date >= ? AND completed_date < ?)",
			from, to, from, to).
		Order("scheduled_date ASC").
		Find(&cals).Error
	return cals, err
}

func (r *calibrationRepo) MarkOverdue(ctx context.Context, today time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Calibration{}).
		Where("status = ? AND scheduled_date < ?", model.CalibrationStatusScheduled, today).
		Updates(map[string]interface{}{
			"status":     model.CalibrationStatusOverdue,
			"updated_at": gorm.Expr("NOW()"),
			"version":    gorm.Expr("version + 1"),
		})
	return result.RowsAffected, result.Error
}

func (r *calibrationRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Calibration{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.Status] = row.Total
	}
	return result, nil
}
