package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
)

// DeviceListFilters 设备列表筛选条件
type DeviceListFilters struct {
	ClientID string
	Status   string
	Keyword  string
}

// DeviceRepository 设备数据访问接口
type DeviceRepository interface {
	Create(ctx context.Context, device *model.Device) error
	BatchCreate(ctx context.Context, devices []model.Device) error
	GetByID(ctx context.Context, id string) (*model.Device, error)
	GetBySerial(ctx context.Context, serial string) (*model.Device, error)
	Update(ctx context.Context, device *model.Device) error
	Delete(ctx context.Context, id string, deletedBy string) error
	List(ctx context.Context, filters *DeviceListFilters, offset, limit int) ([]model.Device, int64, error)
	// ListDue 在用设备中下次校准日早于等于 before 的，按到期日升序
	ListDue(ctx context.Context, before time.Time) ([]model.Device, error)
	CountByClient(ctx context.Context, clientIDs []string) (map[string]int64, error)
	Count(ctx context.Context) (int64, error)
}

type deviceRepo struct {
	db *gorm.DB
}

// NewDeviceRepo 创建 DeviceRepository 实例
func NewDeviceRepo(db *gorm.DB) DeviceRepository {
	return &deviceRepo{db: db}
}

func (r *deviceRepo) Create(ctx context.Context, device *model.Device) error {
	return r.db.WithContext(ctx).Create(device).Error
}

func (r *deviceRepo) BatchCreate(ctx context.Context, devices []model.Device) error {
	if len(devices) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(devices, 100).Error
}

func (r *deviceRepo) GetByID(ctx context.Context, id string) (*model.Device, error) {
	var device model.Device
	err := r.db.WithContext(ctx).
		Preload("Client").
		Where("id = ?", id).
		First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepo) GetBySerial(ctx context.Context, serial string) (*model.Device, error) {
	var device model.Device
	err := r.db.WithContext(ctx).
		Where("serial_number = ?", serial).
		First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepo) Update(ctx context.Context, device *model.Device) error {
	return r.db.WithContext(ctx).Omit("Client").Save(device).Error
}

func (r *deviceRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Device{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

func (r *deviceRepo) List(ctx context.Context, filters *DeviceListFilters, offset, limit int) ([]model.Device, int64, error) {
	var devices []model.Device
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Device{})
	if filters != nil {
		if filters.ClientID != "" {
			db = db.Where("client_id = ?", filters.ClientID)
		}
		if filters.Status != "" {
			db = db.Where("status = ?", filters.Status)
		}
		if filters.Keyword != "" {
			kw := "%" + escapeLike(filters.Keyword) + "%"
			db = db.Where("name ILIKE ? OR serial_number ILIKE ? OR manufacturer ILIKE ? OR model ILIKE ?", kw, kw, kw, kw)
		}
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Preload("Client").
		Offset(offset).Limit(limit).
		Order("next_calibration_date ASC NULLS LAST, name ASC").
		Find(&devices).Error; err != nil {
		return nil, 0, err
	}
	return devices, total, nil
}

func (r *deviceRepo) ListDue(ctx context.Context, before time.Time) ([]model.Device, error) {
	var devices []model.Device
	err := r.db.WithContext(ctx).
		Preload("Client").
		Where("status = ? AND next_calibration_date IS NOT NULL AND next_calibration_date <= ?",
			model.DeviceStatusActive, before).
		Order("next_calibration_date ASC").
		Find(&devices).Error
	return devices, err
}

func (r *deviceRepo) CountByClient(ctx context.Context, clientIDs []string) (map[string]int64, error) {
	result := make(map[string]int64, len(clientIDs))
	if len(clientIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		ClientID string
		Total    int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Device{}).
		Select("client_id, COUNT(*) AS total").
		Where("client_id IN ?", clientIDs).
		Group("client_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ClientID] = row.Total
	}
	return result, nil
}

func (r *deviceRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Device{}).Count(&n).Error
	return n, err
}
