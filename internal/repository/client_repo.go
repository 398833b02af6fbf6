package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
)

// ClientListFilters 客户列表筛选条件
type ClientListFilters struct {
	Status  string
	Keyword string
}

// ClientRepository 客户数据访问接口
type ClientRepository interface {
	Create(ctx context.Context, client *model.Client) error
	GetByID(ctx context.Context, id string) (*model.Client, error)
	Update(ctx context.Context, client *model.Client) error
	Delete(ctx context.Context, id string, deletedBy string) error
	List(ctx context.Context, filters *ClientListFilters, offset, limit int) ([]model.Client, int64, error)
	Count(ctx context.Context) (int64, error)
}

type clientRepo struct {
	db *gorm.DB
}

// NewClientRepo 创建 ClientRepository 实例
func NewClientRepo(db *gorm.DB) ClientRepository {
	return &clientRepo{db: db}
}

func (r *clientRepo) Create(ctx context.Context, client *model.Client) error {
	return r.db.WithContext(ctx).Create(client).Error
}

func (r *clientRepo) GetByID(ctx context.Context, id string) (*model.Client, error) {
	var client model.Client
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *clientRepo) Update(ctx context.Context, client *model.Client) error {
	return r.db.WithContext(ctx).Save(client).Error
}

func (r *clientRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Client{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

func (r *clientRepo) List(ctx context.Context, filters *ClientListFilters, offset, limit int) ([]model.Client, int64, error) {
	var clients []model.Client
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Client{})
	if filters != nil {
		if filters.Status != "" {
			db = db.Where("status = ?", filters.Status)
		}
		if filters.Keyword != "" {
			kw := "%" + escapeLike(filters.Keyword) + "%"
			db = db.Where("name ILIKE ? OR contact_person ILIKE ? OR email ILIKE ?", kw, kw, kw)
		}
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Offset(offset).Limit(limit).
		Order("name ASC").
		Find(&clients).Error; err != nil {
		return nil, 0, err
	}
	return clients, total, nil
}

func (r *clientRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Client{}).Count(&n).Error
	return n, err
}
