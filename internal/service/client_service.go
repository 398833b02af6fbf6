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
	ErrClientNotFound   = errors.New("客户不存在")
	ErrClientHasDevices = errors.New("客户名下仍有设备，无法删除")
)

// ClientService 客户管理业务接口
type ClientService interface {
	List(ctx context.Context, req *dto.ClientListRequest) ([]dto.ClientResponse, int64, error)
	GetByID(ctx context.Context, id string) (*dto.ClientResponse, error)
	Create(ctx context.Context, req *dto.CreateClientRequest, callerID string) (*dto.ClientResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateClientRequest, callerID string) (*dto.ClientResponse, error)
	Delete(ctx context.Context, id, callerID string) error
}

type clientService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewClientService 创建 ClientService 实例
func NewClientService(repo *repository.Repository, logger *zap.Logger) ClientService {
	return &clientService{repo: repo, logger: logger}
}

func (s *clientService) List(ctx context.Context, req *dto.ClientListRequest) ([]dto.ClientResponse, int64, error) {
	filters := &repository.ClientListFilters{
		Status:  req.Status,
		Keyword: strings.TrimSpace(req.Keyword),
	}
	clients, total, err := s.repo.Client.List(ctx, filters, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询客户列表失败", zap.Error(err))
		return nil, 0, err
	}

	ids := make([]string, 0, len(clients))
	for _, c := range clients {
		ids = append(ids, c.ID)
	}
	counts, err := s.repo.Device.CountByClient(ctx, ids)
	if err != nil {
		s.logger.Error("统计客户设备数失败", zap.Error(err))
		return nil, 0, err
	}

	list := make([]dto.ClientResponse, 0, len(clients))
	for i := range clients {
		list = append(list, toClientResponse(&clients[i], counts[clients[i].ID]))
	}
	return list, total, nil
}

func (s *clientService) GetByID(ctx context.Context, id string) (*dto.ClientResponse, error) {
	client, err := s.getClient(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.Device.CountByClient(ctx, []string{id})
	if err != nil {
		s.logger.Error("统计客户设备数失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	resp := toClientResponse(client, counts[id])
	return &resp, nil
}

func (s *clientService) Create(ctx context.Context, req *dto.CreateClientRequest, callerID string) (*dto.ClientResponse, error) {
	client := &model.Client{
		Name:          strings.TrimSpace(req.Name),
		ContactPerson: trimOptional(req.ContactPerson),
		Email:         trimOptional(req.Email),
		Phone:         trimOptional(req.Phone),
		Address:       trimOptional(req.Address),
		Industry:      trimOptional(req.Industry),
		Status:        req.Status,
	}
	if client.Status == "" {
		client.Status = model.ClientStatusActive
	}
	client.CreatedBy = &callerID
	client.UpdatedBy = &callerID

	if err := s.repo.Client.Create(ctx, client); err != nil {
		s.logger.Error("创建客户失败", zap.String("name", client.Name), zap.Error(err))
		return nil, err
	}
	resp := toClientResponse(client, 0)
	return &resp, nil
}

func (s *clientService) Update(ctx context.Context, id string, req *dto.UpdateClientRequest, callerID string) (*dto.ClientResponse, error) {
	client, err := s.getClient(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		client.Name = strings.TrimSpace(*req.Name)
	}
	if req.ContactPerson != nil {
		client.ContactPerson = trimOptional(req.ContactPerson)
	}
	if req.Email != nil {
		client.Email = trimOptional(req.Email)
	}
	if req.Phone != nil {
		client.Phone = trimOptional(req.Phone)
	}
	if req.Address != nil {
		client.Address = trimOptional(req.Address)
	}
	if req.Industry != nil {
		client.Industry = trimOptional(req.Industry)
	}
	if req.Status != nil {
		client.Status = *req.Status
	}
	client.UpdatedBy = &callerID

	if err := s.repo.Client.Update(ctx, client); err != nil {
		s.logger.Error("更新客户失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *clientService) Delete(ctx context.Context, id, callerID string) error {
	if _, err := s.getClient(ctx, id); err != nil {
		return err
	}
	counts, err := s.repo.Device.CountByClient(ctx, []string{id})
	if err != nil {
		s.logger.Error("统计客户设备数失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if counts[id] > 0 {
		return ErrClientHasDevices
	}
	if err := s.repo.Client.Delete(ctx, id, callerID); err != nil {
		s.logger.Error("删除客户失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *clientService) getClient(ctx context.Context, id string) (*model.Client, error) {
	client, err := s.repo.Client.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		s.logger.Error("查询客户失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return client, nil
}

func toClientResponse(c *model.Client, deviceCount int64) dto.ClientResponse {
	return dto.ClientResponse{
		ID:            c.ID,
		Name:          c.Name,
		ContactPerson: c.ContactPerson,
		Email:         c.Email,
		Phone:         c.Phone,
		Address:       c.Address,
		Industry:      c.Industry,
		Status:        c.Status,
		DeviceCount:   deviceCount,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     c.UpdatedAt.Format(time.RFC3339),
	}
}
