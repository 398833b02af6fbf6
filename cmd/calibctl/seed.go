package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/repository"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/database"
)

func newSeedAdminCmd() *cobra.Command {
	var email, password, name string
	var reset bool

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "创建初始管理员账号",
		Long:  "创建管理员账号。邮箱已存在时跳过；加 --reset 则重置密码并恢复为启用的管理员。",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.ToLower(strings.TrimSpace(email))
			if email == "" {
				return fmt.Errorf("--email 不能为空")
			}
			if len(password) < 8 {
				return fmt.Errorf("--password 长度不能少于 8 位")
			}

			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
			if err != nil {
				return fmt.Errorf("数据库连接失败: %w", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			created, err := seedAdmin(cmd.Context(), repository.NewRepository(db), email, password, name, reset)
			if err != nil {
				return err
			}
			if created {
				logger.Info("管理员账号已创建", zap.String("email", email))
			} else if reset {
				logger.Info("管理员账号已重置", zap.String("email", email))
			} else {
				logger.Info("账号已存在，跳过", zap.String("email", email))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "管理员邮箱")
	cmd.Flags().StringVar(&password, "password", "", "初始密码（至少 8 位）")
	cmd.Flags().StringVar(&name, "name", "Administrator", "显示名称")
	cmd.Flags().BoolVar(&reset, "reset", false, "账号已存在时重置密码与角色")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// seedAdmin 返回是否新建了账号
func seedAdmin(ctx context.Context, repo *repository.Repository, email, password, name string, reset bool) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}

	existing, err := repo.Profile.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if !reset {
			return false, nil
		}
		existing.PasswordHash = string(hash)
		existing.Role = model.RoleAdmin
		existing.IsActive = true
		return false, repo.Profile.Update(ctx, existing)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return false, err
	}

	profile := &model.Profile{
		Email:        email,
		FullName:     name,
		Role:         model.RoleAdmin,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := repo.Profile.Create(ctx, profile); err != nil {
		return false, err
	}
	return true, nil
}
