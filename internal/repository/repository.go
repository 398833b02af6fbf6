package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	Profile     ProfileRepository
	Client      ClientRepository
	Device      DeviceRepository
	Calibration CalibrationRepository
	Certificate CertificateRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:          db,
		Profile:     NewProfileRepo(db),
		Client:      NewClientRepo(db),
		Device:      NewDeviceRepo(db),
		Calibration: NewCalibrationRepo(db),
		Certificate: NewCertificateRepo(db),
	}
}

// BeginTx 开启事务；未绑定数据库（单元测试中的 mock 聚合）时返回 nil
func (r *Repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	if r.db == nil {
		return nil, nil
	}
	tx := r.db.WithContext(ctx).Begin()
	return tx, tx.Error
}

// WithTx 返回绑定到事务连接的 Repository 聚合；tx 为 nil 时返回自身
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return NewRepository(tx)
}

// escapeLike 转义 LIKE 模式中的通配符
func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '%' || ch == '_' || ch == '\\' {
			out = append(out, '\\')
		}
		out = append(out, ch)
	}
	return string(out)
}
