package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/config"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/repository"
	pkgerrors "github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/errors"
)

var (
	ErrCalibrationNotFound = errors.New("校准记录不存在")
	ErrInvalidTransition   = errors.New("不允许的状态流转")
	ErrVersionConflict     = errors.New("记录已被他人修改，请刷新后重试")
	ErrTechnicianNotFound  = errors.New("技术员不存在或已停用")
	ErrDeviceRetired       = errors.New("设备已报废，不能安排校准")
)

// CalibrationService 校准记录业务接口
type CalibrationService interface {
	List(ctx context.Context, req *dto.CalibrationListRequest) ([]dto.CalibrationResponse, int64, error)
	// GetByID 详情，含测量数据
	GetByID(ctx context.Context, id string) (*dto.CalibrationResponse, error)
	// Create 安排一次校准（状态 scheduled）
	Create(ctx context.Context, req *dto.CreateCalibrationRequest, callerID string) (*dto.CalibrationResponse, error)
	// UpdateStatus 状态流转；流转到 completed 时同步更新设备到期日
	UpdateStatus(ctx context.Context, id string, req *dto.UpdateCalibrationStatusRequest, callerID string) (*dto.CalibrationResponse, error)
	// SweepOverdue 计划日期已过仍未开始的记录置为 overdue
	SweepOverdue(ctx context.Context) (int64, error)
	// Calendar 未来 days 天的校准计划与设备到期日（iCalendar）
	Calendar(ctx context.Context, days int) ([]byte, error)
}

type calibrationService struct {
	cfg    *config.CalibrationConfig
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewCalibrationService 创建 CalibrationService 实例
func NewCalibrationService(cfg *config.CalibrationConfig, repo *repository.Repository, logger *zap.Logger) CalibrationService {
	return &calibrationService{cfg: cfg, repo: repo, logger: logger, now: time.Now}
}

func (s *calibrationService) List(ctx context.Context, req *dto.CalibrationListRequest) ([]dto.CalibrationResponse, int64, error) {
	filters := &repository.CalibrationListFilters{
		Status:       req.Status,
		DeviceID:     req.DeviceID,
		ClientID:     req.ClientID,
		TechnicianID: req.TechnicianID,
		Keyword:      strings.TrimSpace(req.Keyword),
	}
	if req.From != "" {
		from, err := parseDate(req.From)
		if err != nil {
			return nil, 0, err
		}
		filters.From = &from
	}
	if req.To != "" {
		to, err := parseDate(req.To)
		if err != nil {
			return nil, 0, err
		}
		filters.To = &to
	}

	cals, total, err := s.repo.Calibration.List(ctx, filters, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询校准记录失败", zap.Error(err))
		return nil, 0, err
	}

	list := make([]dto.CalibrationResponse, 0, len(cals))
	for i := range cals {
		list = append(list, toCalibrationResponse(&cals[i], nil))
	}
	return list, total, nil
}

func (s *calibrationService) GetByID(ctx context.Context, id string) (*dto.CalibrationResponse, error) {
	cal, err := getCalibration(ctx, s.repo, s.logger, id)
	if err != nil {
		return nil, err
	}
	rec, err := decodeMeasurement(cal.MeasurementData)
	if err != nil {
		s.logger.Warn("测量数据解析失败", zap.String("id", id), zap.Error(err))
	}
	resp := toCalibrationResponse(cal, rec)
	return &resp, nil
}

func (s *calibrationService) Create(ctx context.Context, req *dto.CreateCalibrationRequest, callerID string) (*dto.CalibrationResponse, error) {
	scheduled, err := parseDate(req.ScheduledDate)
	if err != nil {
		return nil, err
	}

	device, err := s.repo.Device.GetByID(ctx, req.DeviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		s.logger.Error("查询设备失败", zap.String("device_id", req.DeviceID), zap.Error(err))
		return nil, err
	}
	if device.Status == model.DeviceStatusRetired {
		return nil, ErrDeviceRetired
	}
	if err := ensureTechnician(ctx, s.repo, s.logger, req.TechnicianID); err != nil {
		return nil, err
	}

	cal := &model.Calibration{
		DeviceID:            device.ID,
		ClientID:            device.ClientID,
		TechnicianID:        req.TechnicianID,
		ScheduledDate:       scheduled,
		Status:              model.CalibrationStatusScheduled,
		CalibrationStandard: trimOptional(req.CalibrationStandard),
		Comments:            req.Comments,
	}
	cal.CreatedBy = &callerID
	cal.UpdatedBy = &callerID

	if err := s.repo.Calibration.Create(ctx, cal); err != nil {
		s.logger.Error("创建校准记录失败", zap.String("device_id", device.ID), zap.Error(err))
		return nil, err
	}
	s.logger.Info("校准已安排",
		zap.String("id", cal.ID),
		zap.String("device_id", device.ID),
		zap.String("scheduled_date", req.ScheduledDate),
	)
	return s.GetByID(ctx, cal.ID)
}

func (s *calibrationService) UpdateStatus(ctx context.Context, id string, req *dto.UpdateCalibrationStatusRequest, callerID string) (*dto.CalibrationResponse, error) {
	cal, err := getCalibration(ctx, s.repo, s.logger, id)
	if err != nil {
		return nil, err
	}
	if cal.Version != req.Version {
		return nil, ErrVersionConflict
	}
	if !model.CanTransition(cal.Status, req.Status) {
		return nil, ErrInvalidTransition
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.Error("开启事务失败", zap.Error(err))
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil && tx != nil {
			tx.Rollback()
			panic(r)
		}
	}()
	txRepo := s.repo.WithTx(tx)

	cal.Status = req.Status
	cal.UpdatedBy = &callerID
	if req.Status == model.CalibrationStatusCompleted {
		now := s.now().UTC()
		cal.CompletedDate = &now
		if err := applyDeviceCalibration(ctx, txRepo, cal.DeviceID, now, callerID); err != nil {
			rollback(tx)
			s.logger.Error("更新设备到期日失败", zap.String("device_id", cal.DeviceID), zap.Error(err))
			return nil, err
		}
	}

	if err := txRepo.Calibration.Update(ctx, cal); err != nil {
		rollback(tx)
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrVersionConflict
		}
		s.logger.Error("更新校准状态失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	if err := commit(tx); err != nil {
		s.logger.Error("提交事务失败", zap.Error(err))
		return nil, err
	}

	s.logger.Info("校准状态已变更", zap.String("id", id), zap.String("status", req.Status))
	return s.GetByID(ctx, id)
}

func (s *calibrationService) SweepOverdue(ctx context.Context) (int64, error) {
	n, err := s.repo.Calibration.MarkOverdue(ctx, model.DateOnly(s.now()))
	if err != nil {
		s.logger.Error("逾期扫描失败", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.logger.Info("逾期扫描完成", zap.Int64("updated", n))
	}
	return n, nil
}

// ═══════════════════════════════════════════════════════════
// Calendar iCalendar 订阅
// ═══════════════════════════════════════════════════════════
//
// 两类全天事件：
//   - calibration-<id>：尚未完成的校准计划（含逾期）
//   - due-<device_id>：设备下次到期日（含已逾期）

func (s *calibrationService) Calendar(ctx context.Context, days int) ([]byte, error) {
	if days <= 0 {
		days = 90
	}
	now := s.now().UTC()
	today := model.DateOnly(now)
	horizon := today.AddDate(0, 0, days)

	// 逾期计划也需要出现，因此从一年前开始取
	cals, err := s.repo.Calibration.ListBetween(ctx, today.AddDate(-1, 0, 0), horizon)
	if err != nil {
		s.logger.Error("查询校准计划失败", zap.Error(err))
		return nil, err
	}
	devices, err := s.repo.Device.ListDue(ctx, horizon)
	if err != nil {
		s.logger.Error("查询到期设备失败", zap.Error(err))
		return nil, err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//CaliFlow//Calibration Schedule//EN")
	cal.SetXWRCalName(s.cfg.Lab.Name)

	for i := range cals {
		c := &cals[i]
		if c.IsFinal() {
			continue
		}
		if c.Status != model.CalibrationStatusOverdue && c.ScheduledDate.Before(today) {
			continue
		}
		evt := cal.AddEvent("calibration-" + c.ID)
		evt.SetDtStampTime(now)
		evt.SetAllDayStartAt(c.ScheduledDate)
		evt.SetAllDayEndAt(c.ScheduledDate.AddDate(0, 0, 1))
		evt.SetSummary(fmt.Sprintf("校准: %s", deviceLabel(c.Device)))
		evt.SetDescription(calendarDescription(c))
		evt.SetStatus(ics.ObjectStatusConfirmed)
	}

	for i := range devices {
		d := &devices[i]
		if d.NextCalibrationDate == nil {
			continue
		}
		due := model.DateOnly(*d.NextCalibrationDate)
		evt := cal.AddEvent("due-" + d.ID)
		evt.SetDtStampTime(now)
		evt.SetAllDayStartAt(due)
		evt.SetAllDayEndAt(due.AddDate(0, 0, 1))
		evt.SetSummary(fmt.Sprintf("到期: %s", deviceLabel(d)))
		if d.Client != nil {
			evt.SetDescription("客户: " + d.Client.Name)
		}
	}

	return []byte(cal.Serialize()), nil
}

// ── 共享辅助函数（会话、证书、导出复用）──

func getCalibration(ctx context.Context, repo *repository.Repository, logger *zap.Logger, id string) (*model.Calibration, error) {
	cal, err := repo.Calibration.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCalibrationNotFound
		}
		logger.Error("查询校准记录失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return cal, nil
}

// ensureTechnician 技术员须存在、启用且角色为 technician 或 admin
func ensureTechnician(ctx context.Context, repo *repository.Repository, logger *zap.Logger, id *string) error {
	if id == nil {
		return nil
	}
	p, err := repo.Profile.GetByID(ctx, *id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTechnicianNotFound
		}
		logger.Error("查询技术员失败", zap.String("id", *id), zap.Error(err))
		return err
	}
	if !p.IsActive || p.Role == model.RoleClient {
		return ErrTechnicianNotFound
	}
	return nil
}

// applyDeviceCalibration 以 date 作为设备最近校准日，重新计算下次到期日
func applyDeviceCalibration(ctx context.Context, repo *repository.Repository, deviceID string, date time.Time, callerID string) error {
	device, err := repo.Device.GetByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDeviceNotFound
		}
		return err
	}
	device.ApplyCalibration(date)
	device.UpdatedBy = &callerID
	return repo.Device.Update(ctx, device)
}

func decodeMeasurement(raw datatypes.JSON) (*dto.MeasurementRecord, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var rec dto.MeasurementRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func toCalibrationResponse(c *model.Calibration, rec *dto.MeasurementRecord) dto.CalibrationResponse {
	resp := dto.CalibrationResponse{
		ID:                   c.ID,
		DeviceID:             c.DeviceID,
		ClientID:             c.ClientID,
		TechnicianID:         c.TechnicianID,
		ScheduledDate:        c.ScheduledDate.Format(dto.DateLayout),
		Status:               c.Status,
		OverallStatus:        c.OverallStatus,
		Temperature:          c.Temperature,
		Humidity:             c.Humidity,
		Pressure:             c.Pressure,
		CalibrationStandard:  c.CalibrationStandard,
		Comments:             c.Comments,
		CertificateGenerated: c.CertificateGenerated,
		Version:              c.Version,
		Measurement:          rec,
	}
	if c.CompletedDate != nil {
		s := c.CompletedDate.UTC().Format(time.RFC3339)
		resp.CompletedDate = &s
	}
	if c.Device != nil {
		resp.DeviceName = c.Device.Name
		resp.SerialNumber = c.Device.SerialNumber
	}
	if c.Client != nil {
		resp.ClientName = c.Client.Name
	}
	if c.Technician != nil {
		resp.TechnicianName = c.Technician.FullName
	}
	return resp
}

func deviceLabel(d *model.Device) string {
	if d == nil {
		return "未知设备"
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.SerialNumber)
}

func calendarDescription(c *model.Calibration) string {
	parts := []string{"状态: " + c.Status}
	if c.Client != nil {
		parts = append(parts, "客户: "+c.Client.Name)
	}
	if c.Technician != nil {
		parts = append(parts, "技术员: "+c.Technician.FullName)
	}
	return strings.Join(parts, "\n")
}

// rollback / commit 兼容单元测试中 BeginTx 返回 nil 的情况
func rollback(tx *gorm.DB) {
	if tx != nil {
		tx.Rollback()
	}
}

func commit(tx *gorm.DB) error {
	if tx == nil {
		return nil
	}
	return tx.Commit().Error
}
