package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/repository"
)

var (
	ErrProfileNotFound = errors.New("用户不存在")
	ErrEmailExists     = errors.New("邮箱已被使用")
	ErrInvalidRole     = errors.New("无效的角色")
	ErrSelfDemotion    = errors.New("不能停用或降级自己的账号")
)

// ProfileService 用户管理业务接口
type ProfileService interface {
	List(ctx context.Context, req *dto.ProfileListRequest) ([]dto.ProfileResponse, int64, error)
	GetByID(ctx context.Context, id string) (*dto.ProfileResponse, error)
	Create(ctx context.Context, req *dto.CreateProfileRequest, callerID string) (*dto.ProfileResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateProfileRequest, callerID string) (*dto.ProfileResponse, error)
	AssignRole(ctx context.Context, id, role, callerID string) (*dto.ProfileResponse, error)
	// Deactivate 停用账号；校准记录引用技术员，因此不做物理删除
	Deactivate(ctx context.Context, id, callerID string) error
}

type profileService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewProfileService 创建 ProfileService 实例
func NewProfileService(repo *repository.Repository, logger *zap.Logger) ProfileService {
	return &profileService{repo: repo, logger: logger}
}

func (s *profileService) List(ctx context.Context, req *dto.ProfileListRequest) ([]dto.ProfileResponse, int64, error) {
	filters := &repository.ProfileListFilters{
		Role:     req.Role,
		Keyword:  strings.TrimSpace(req.Keyword),
		IsActive: req.Active,
	}
	profiles, total, err := s.repo.Profile.List(ctx, filters, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询用户列表失败", zap.Error(err))
		return nil, 0, err
	}

	list := make([]dto.ProfileResponse, 0, len(profiles))
	for i := range profiles {
		list = append(list, toProfileResponse(&profiles[i]))
	}
	return list, total, nil
}

func (s *profileService) GetByID(ctx context.Context, id string) (*dto.ProfileResponse, error) {
	profile, err := s.getProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toProfileResponse(profile)
	return &resp, nil
}

func (s *profileService) Create(ctx context.Context, req *dto.CreateProfileRequest, callerID string) (*dto.ProfileResponse, error) {
	email := normalizeEmail(req.Email)
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		s.logger.Error("密码加密失败", zap.Error(err))
		return nil, err
	}

	profile := &model.Profile{
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        trimOptional(req.Phone),
		Role:         req.Role,
		PasswordHash: hash,
		IsActive:     true,
	}
	profile.CreatedBy = &callerID
	profile.UpdatedBy = &callerID

	if err := s.repo.Profile.Create(ctx, profile); err != nil {
		s.logger.Error("创建用户失败", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	s.logger.Info("用户已创建", zap.String("id", profile.ID), zap.String("role", profile.Role))

	resp := toProfileResponse(profile)
	return &resp, nil
}

func (s *profileService) Update(ctx context.Context, id string, req *dto.UpdateProfileRequest, callerID string) (*dto.ProfileResponse, error) {
	profile, err := s.getProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if email != profile.Email {
			if err := s.ensureEmailFree(ctx, email, id); err != nil {
				return nil, err
			}
			profile.Email = email
		}
	}
	if req.FullName != nil {
		profile.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		profile.Phone = trimOptional(req.Phone)
	}
	if req.IsActive != nil {
		if !*req.IsActive && id == callerID {
			return nil, ErrSelfDemotion
		}
		profile.IsActive = *req.IsActive
	}
	profile.UpdatedBy = &callerID

	if err := s.repo.Profile.Update(ctx, profile); err != nil {
		s.logger.Error("更新用户失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	resp := toProfileResponse(profile)
	return &resp, nil
}

func (s *profileService) AssignRole(ctx context.Context, id, role, callerID string) (*dto.ProfileResponse, error) {
	if !model.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	profile, err := s.getProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if id == callerID && role != model.RoleAdmin {
		return nil, ErrSelfDemotion
	}

	profile.Role = role
	profile.UpdatedBy = &callerID
	if err := s.repo.Profile.Update(ctx, profile); err != nil {
		s.logger.Error("分配角色失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	s.logger.Info("角色已变更", zap.String("id", id), zap.String("role", role))

	resp := toProfileResponse(profile)
	return &resp, nil
}

func (s *profileService) Deactivate(ctx context.Context, id, callerID string) error {
	if id == callerID {
		return ErrSelfDemotion
	}
	profile, err := s.getProfile(ctx, id)
	if err != nil {
		return err
	}
	if !profile.IsActive {
		return nil
	}

	profile.IsActive = false
	profile.UpdatedBy = &callerID
	if err := s.repo.Profile.Update(ctx, profile); err != nil {
		s.logger.Error("停用用户失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// ── 内部方法 ──

func (s *profileService) getProfile(ctx context.Context, id string) (*model.Profile, error) {
	profile, err := s.repo.Profile.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		s.logger.Error("查询用户失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return profile, nil
}

// ensureEmailFree 邮箱未被 exceptID 以外的用户占用
func (s *profileService) ensureEmailFree(ctx context.Context, email, exceptID string) error {
	existing, err := s.repo.Profile.GetByEmail(ctx, email)
	if err == nil && existing.ID != exceptID {
		return ErrEmailExists
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("检查邮箱失败", zap.Error(err))
		return err
	}
	return nil
}

// ── 辅助函数 ──

func toProfileResponse(p *model.Profile) dto.ProfileResponse {
	return dto.ProfileResponse{
		ID:        p.ID,
		Email:     p.Email,
		FullName:  p.FullName,
		Phone:     p.Phone,
		Role:      p.Role,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// trimOptional 去除首尾空白；空串视为未填写
func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
