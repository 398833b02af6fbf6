package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/config"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/grid"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/repository"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/session"
	pkgerrors "github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/errors"
)

var (
	ErrSessionNotFound  = errors.New("录入会话不存在或已过期")
	ErrSessionNoDevice  = errors.New("请先选择设备")
	ErrSessionCompleted = errors.New("会话已完成，数据只读")
	ErrSessionDirty     = errors.New("会话有未保存的修改")
	ErrCalibrationFinal = errors.New("校准记录已取消，不能录入")
	ErrInvalidPoints    = errors.New("校准点无效")
	ErrSessionForbidden = errors.New("无权操作他人的录入会话")
)

// completedRedirectURL 完成后前端跳转的页面
const completedRedirectURL = "/calibrations"

// DraftStore 会话草稿镜像（由 pkg/redis 实现）
type DraftStore interface {
	SaveDraft(ctx context.Context, sessionID string, payload []byte, ttl time.Duration) error
	LoadDraft(ctx context.Context, sessionID string) ([]byte, error)
	DeleteDraft(ctx context.Context, sessionID string) error
}

// SessionService 校准录入会话业务接口
//
// 会话在内存中持有表格，每次保存写入校准记录（自动保存），
// 每次修改同时镜像到草稿存储，进程重启后可按会话 ID 恢复。
type SessionService interface {
	Open(ctx context.Context, req *dto.CreateSessionRequest, callerID string) (*dto.SessionResponse, error)
	Get(ctx context.Context, id, callerID string) (*dto.SessionResponse, error)
	SetCells(ctx context.Context, id, callerID string, req *dto.SetCellsRequest) (*dto.SetCellsResponse, error)
	SetPrecision(ctx context.Context, id, callerID string, places int) (*dto.SessionResponse, error)
	SetSelection(ctx context.Context, id, callerID string, req *dto.SelectionRequest) (*dto.SessionResponse, error)
	Merge(ctx context.Context, id, callerID string) (*dto.SessionResponse, error)
	Unmerge(ctx context.Context, id, callerID string) (*dto.SessionResponse, error)
	UpdateMeta(ctx context.Context, id, callerID string, req *dto.SessionMetaRequest) (*dto.SessionResponse, error)
	Save(ctx context.Context, id, callerID string) (*dto.SaveSessionResponse, error)
	Complete(ctx context.Context, id, callerID string) (*dto.CompleteSessionResponse, error)
	// Close 关闭会话；有未保存修改时须 discard=true
	Close(ctx context.Context, id, callerID string, discard bool) error
}

// sessionEntry 一个打开的会话；mu 串行化同一会话上的业务操作
type sessionEntry struct {
	mu         sync.Mutex
	ctrl       *session.Controller
	meta       dto.SessionMeta
	ownerID    string
	lastAccess time.Time
}

// sessionDraft 草稿镜像内容
type sessionDraft struct {
	OwnerID string                `json:"owner_id"`
	Meta    dto.SessionMeta       `json:"meta"`
	Record  dto.MeasurementRecord `json:"record"`
	Dirty   bool                  `json:"dirty"`
}

type sessionService struct {
	cfg    *config.CalibrationConfig
	repo   *repository.Repository
	drafts DraftStore
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	// byCal 校准记录 ID → 会话 ID，由 mu 保护
	byCal map[string]string
}

// NewSessionService 创建 SessionService 实例；drafts 可为 nil
func NewSessionService(cfg *config.CalibrationConfig, repo *repository.Repository, drafts DraftStore, logger *zap.Logger) SessionService {
	return &sessionService{
		cfg:      cfg,
		repo:     repo,
		drafts:   drafts,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
		byCal:    make(map[string]string),
	}
}

// ═══════════════════════════════════════════════════════════
// Open 打开会话
// ═══════════════════════════════════════════════════════════
//
// 1. 指定 calibration_id：加载已保存的数据；已完成的记录以只读方式打开
// 2. 指定 device_id：按给定校准点新建表格
// 3. 都不指定：默认六点表格，稍后在表单中选择设备

func (s *sessionService) Open(ctx context.Context, req *dto.CreateSessionRequest, callerID string) (*dto.SessionResponse, error) {
	s.evictIdle()

	places := req.DecimalPlaces
	if places == 0 {
		places = s.cfg.DefaultDecimalPlaces
	}
	today := model.DateOnly(s.now())
	meta := dto.SessionMeta{
		TechnicianID:    &callerID,
		CalibrationDate: today.Format(dto.DateLayout),
	}
	opts := session.Options{Clock: s.now}

	switch {
	case req.CalibrationID != nil:
		if id, entry := s.findByCalibration(*req.CalibrationID); entry != nil {
			return s.withEntry(ctx, id, callerID, func(e *sessionEntry) (*dto.SessionResponse, error) {
				return s.view(id, e), nil
			})
		}

		cal, err := getCalibration(ctx, s.repo, s.logger, *req.CalibrationID)
		if err != nil {
			return nil, err
		}
		if cal.Status == model.CalibrationStatusCancelled {
			return nil, ErrCalibrationFinal
		}
		g, err := s.gridFor(cal, req.Points, places)
		if err != nil {
			return nil, err
		}

		opts.Grid = g
		opts.DeviceID = cal.DeviceID
		if cal.Device != nil {
			opts.DeviceName = cal.Device.Name
		}
		if cal.Status == model.CalibrationStatusCompleted {
			opts.Status = session.StatusCompleted
		}
		meta.CalibrationID = cal.ID
		if cal.TechnicianID != nil {
			meta.TechnicianID = cal.TechnicianID
		}
		if cal.CompletedDate != nil {
			meta.CalibrationDate = cal.CompletedDate.UTC().Format(dto.DateLayout)
		}
		meta.Temperature = cal.Temperature
		meta.Humidity = cal.Humidity
		meta.Pressure = cal.Pressure
		meta.CalibrationStandard = cal.CalibrationStandard
		meta.Comments = cal.Comments

	default:
		g, err := newGrid(req.Points, places)
		if err != nil {
			return nil, err
		}
		opts.Grid = g
		if req.DeviceID != nil {
			device, err := s.repo.Device.GetByID(ctx, *req.DeviceID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, ErrDeviceNotFound
				}
				s.logger.Error("查询设备失败", zap.String("device_id", *req.DeviceID), zap.Error(err))
				return nil, err
			}
			opts.DeviceID = device.ID
			opts.DeviceName = device.Name
		}
	}

	id := uuid.NewString()
	opts.OnSave = func(snap session.Snapshot) {
		s.logger.Debug("会话已保存", zap.String("session_id", id), zap.String("status", string(snap.Status)))
	}
	opts.OnComplete = func(snap session.Snapshot) {
		s.logger.Debug("会话进入完成状态", zap.String("session_id", id), zap.String("device_id", snap.DeviceID))
	}

	entry := &sessionEntry{
		ctrl:       session.New(opts),
		meta:       meta,
		ownerID:    callerID,
		lastAccess: s.now(),
	}
	// 并发打开同一校准记录时只保留先登记的会话
	s.mu.Lock()
	if meta.CalibrationID != "" {
		if existingID, ok := s.byCal[meta.CalibrationID]; ok {
			if _, alive := s.sessions[existingID]; alive {
				s.mu.Unlock()
				return s.withEntry(ctx, existingID, callerID, func(e *sessionEntry) (*dto.SessionResponse, error) {
					return s.view(existingID, e), nil
				})
			}
		}
		s.byCal[meta.CalibrationID] = id
	}
	s.sessions[id] = entry
	s.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	s.mirror(ctx, id, entry)
	s.logger.Info("录入会话已打开",
		zap.String("session_id", id),
		zap.String("calibration_id", meta.CalibrationID),
		zap.String("device_id", opts.DeviceID),
	)
	return s.view(id, entry), nil
}

func (s *sessionService) Get(ctx context.Context, id, callerID string) (*dto.SessionResponse, error) {
	return s.withEntry(ctx, id, callerID, func(e *sessionEntry) (*dto.SessionResponse, error) {
		return s.view(id, e), nil
	})
}

// ────────────────────── 编辑 ──────────────────────

func (s *sessionService) SetCells(ctx context.Context, id, callerID string, req *dto.SetCellsRequest) (*dto.SetCellsResponse, error) {
	var result dto.SetCellsResponse
	_, err := s.withEntry(ctx, id, callerID, func(e *sessionEntry) (*dto.SessionResponse, error) {
		if e.ctrl.Status() == session.StatusCompleted {
			return nil, ErrSessionCompleted
		}

		result.Rejected = []dto.CellRef{}
		for _, edit := range req.Cells {
			if e.ctrl.SetCell(edit.Row, edit.Col, edit.Value) {
				result.Applied++
			} else {
				result.Rejected = append(result.Rejected, dto.CellRef{Row: edit.Row, Col: edit.Col})
			}
		}
		if result.Applied > 0 {
			s.mirror(ctx, id, e)
		}
		result.Session = *s.view(id, e)
		return &result.Session, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *sessionService) SetPrecision(ctx context.Context, id, callerID string, places int) (*dto.SessionResponse, error) {
	return s.withEntry(ctx, id, callerID, func(e *sessionEntry) (*dto.SessionResponse, error) {
		if err := e.ctrl.SetDecimalPlaces(places); err != nil {
			return nil, err
		}
		s.mirror(ctx, id, e)
		return s.view(id, e), nil
	})
}

func (s *sessionService) SetSelection(ctx context.Context, id, callerID string, req *dto.SelectionRequest) (*dto.SessionResponse, error) {
	return s.withEntry(ctx, id, callerID, func(e *sessionEntry) (*dto.SessionResponse, error) {
		if req.Clear {
			e.ctrl.ClearSelection()
		} else {
			e.ctrl.Select(grid.Selection{
				StartRow: req.StartRow,
				StartCol: req.StartCol,
				EndRow:   req.EndRow,
				EndCol:   req.EndCol,
			})
		}
		return s.view(id, e), nil
	})
}

func (s *sessionService) Merge(ctx context.Context, id, callerID string) (*dto.SessionResponse, error) {
	return s.withEntry(ctx, id, callerID, func(e *sessionEntry) (*dto.SessionResponse, error) {
		if e.ctrl.Status() == session.StatusCompleted {
			return nil, ErrSessionCompleted
		}
		// 无选区或选区不可合并时为空操作
		if e.ctrl.MergeSelection() {
			s.mirror(ctx, id, e)
		}
		return s.view(id, e), nil
	})
}

func (s *sessionService) Unmerge(ctx context.Context, id, callerID string) (*dto.SessionResponse, error) {
	return s.withEntry(ctx, id, callerID, func(e *sessionEntry) (*dto.SessionResponse, error) {
		if e.ctrl.Status() == session.StatusCompleted {
			return nil, ErrSessionCompleted
		}
		if e.ctrl.UnmergeSelection() {
			s.mirror(ctx, id, e)
		}
		return s.view(id, e), nil
	})
}

func (s *sessionService) UpdateMeta(ctx context.Context, id, callerID string, req *dto.SessionMetaRequest) (*dto.SessionResponse, error) {
	return s.withEntry(ctx, id, callerID, func(e *sessionEntry) (*dto.SessionResponse, error) {
		if e.ctrl.Status() == session.StatusCompleted {
			return nil, ErrSessionCompleted
		}

		if req.DeviceID != nil && *req.DeviceID != e.ctrl.DeviceID() {
			device, err := s.repo.Device.GetByID(ctx, *req.DeviceID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, ErrDeviceNotFound
				}
				s.logger.Error("查询设备失败", zap.String("device_id", *req.DeviceID), zap.Error(err))
				return nil, err
			}
			e.ctrl.SetDevice(device.ID, device.Name)
		}
		if req.TechnicianID != nil {
			if err := ensureTechnician(ctx, s.repo, s.logger, req.TechnicianID); err != nil {
				return nil, err
			}
		}
		if req.CalibrationDate != nil {
			d, err := parseDate(*req.CalibrationDate)
			if err != nil {
				return nil, err
			}
			if d.After(model.DateOnly(s.now())) {
				return nil, ErrInvalidDate
			}
		}

		changed := false
		setPtr(&e.meta.TechnicianID, req.TechnicianID, &changed)
		setPtr(&e.meta.Temperature, req.Temperature, &changed)
		setPtr(&e.meta.Humidity, req.Humidity, &changed)
		setPtr(&e.meta.Pressure, req.Pressure, &changed)
		setPtr(&e.meta.CalibrationStandard, trimOptional(req.CalibrationStandard), &changed)
		setPtr(&e.meta.Comments, req.Comments, &changed)
		if req.CalibrationDate != nil && *req.CalibrationDate != e.meta.CalibrationDate {
			e.meta.CalibrationDate = *req.CalibrationDate
			changed = true
		}
		if req.AutoStatus != nil {
			e.ctrl.SetAutoStatus(*req.AutoStatus)
			changed = true
		}
		if changed {
			e.ctrl.MarkDirty()
		}
		s.mirror(ctx, id, e)
		return s.view(id, e), nil
	})
}

// ────────────────────── 保存与完成 ──────────────────────

func (s *sessionService) Save(ctx context.Context, id, callerID string) (*dto.SaveSessionResponse, error) {
	var result dto.SaveSessionResponse
	_, err := s.withEntry(ctx, id, callerID, func(e *sessionEntry) (*dto.SessionResponse, error) {
		if e.ctrl.Status() == session.StatusCompleted {
			return nil, ErrSessionCompleted
		}
		if e.ctrl.DeviceID() == "" {
			return nil, ErrSessionNoDevice
		}

		snap := e.ctrl.Save()
		cal, err := s.persist(ctx, e, snap, callerID)
		if err != nil {
			e.ctrl.MarkDirty()
			return nil, err
		}
		s.indexCalibration(id, cal.ID)
		s.mirror(ctx, id, e)

		result = dto.SaveSessionResponse{CalibrationID: cal.ID, Snapshot: snap}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *sessionService) Complete(ctx context.Context, id, callerID string) (*dto.CompleteSessionResponse, error) {
	var result dto.CompleteSessionResponse
	_, err := s.withEntry(ctx, id, callerID, func(e *sessionEntry) (*dto.SessionResponse, error) {
		if e.ctrl.Status() == session.StatusCompleted {
			return nil, ErrSessionCompleted
		}
		if e.ctrl.DeviceID() == "" {
			return nil, ErrSessionNoDevice
		}

		snap := e.ctrl.Complete()
		cal, err := s.persist(ctx, e, snap, callerID)
		if err != nil {
			e.ctrl.Reopen()
			return nil, err
		}

		full, err := getCalibration(ctx, s.repo, s.logger, cal.ID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("校准录入完成",
			zap.String("session_id", id),
			zap.String("calibration_id", cal.ID),
			zap.String("device_id", snap.DeviceID),
		)
		rec, _ := decodeMeasurement(full.MeasurementData)
		result = dto.CompleteSessionResponse{
			Snapshot:    snap,
			Calibration: toCalibrationResponse(full, rec),
			Redirect:    completedRedirectURL,
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	// 已完成的会话不再保留
	s.remove(ctx, id)
	return &result, nil
}

func (s *sessionService) Close(ctx context.Context, id, callerID string, discard bool) error {
	_, err := s.withEntry(ctx, id, callerID, func(e *sessionEntry) (*dto.SessionResponse, error) {
		if e.ctrl.Dirty() && !discard {
			return nil, ErrSessionDirty
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	s.remove(ctx, id)
	return nil
}

// ═══════════════════════════════════════════════════════════
// persist 快照写入校准记录
// ═══════════════════════════════════════════════════════════
//
// 草稿快照：记录状态推进到 in_progress
// 完成快照：记录置为 completed，并在同一事务内更新设备的上次/下次校准日期

func (s *sessionService) persist(ctx context.Context, e *sessionEntry, snap session.Snapshot, callerID string) (*model.Calibration, error) {
	rec := buildRecord(e.ctrl, snap)
	raw, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("序列化测量数据失败", zap.Error(err))
		return nil, err
	}

	calDate, err := parseDate(e.meta.CalibrationDate)
	if err != nil {
		return nil, err
	}
	completed := snap.Status == session.StatusCompleted

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

	device, err := txRepo.Device.GetByID(ctx, snap.DeviceID)
	if err != nil {
		rollback(tx)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		s.logger.Error("查询设备失败", zap.String("device_id", snap.DeviceID), zap.Error(err))
		return nil, err
	}

	var cal *model.Calibration
	isNew := e.meta.CalibrationID == ""
	if isNew {
		cal = &model.Calibration{
			ScheduledDate: calDate,
			Status:        model.CalibrationStatusInProgress,
		}
		cal.CreatedBy = &callerID
	} else {
		cal, err = getCalibration(ctx, txRepo, s.logger, e.meta.CalibrationID)
		if err != nil {
			rollback(tx)
			return nil, err
		}
		if cal.IsFinal() {
			rollback(tx)
			if cal.Status == model.CalibrationStatusCompleted {
				return nil, ErrSessionCompleted
			}
			return nil, ErrCalibrationFinal
		}
		if model.CanTransition(cal.Status, model.CalibrationStatusInProgress) {
			cal.Status = model.CalibrationStatusInProgress
		}
	}

	cal.DeviceID = device.ID
	cal.ClientID = device.ClientID
	cal.TechnicianID = e.meta.TechnicianID
	cal.MeasurementData = datatypes.JSON(raw)
	cal.OverallStatus = optional(rec.OverallStatus)
	cal.Temperature = e.meta.Temperature
	cal.Humidity = e.meta.Humidity
	cal.Pressure = e.meta.Pressure
	cal.CalibrationStandard = e.meta.CalibrationStandard
	cal.Comments = e.meta.Comments
	cal.UpdatedBy = &callerID

	if completed {
		completedAt := s.now().UTC()
		if !calDate.Equal(model.DateOnly(completedAt)) {
			completedAt = calDate
		}
		cal.Status = model.CalibrationStatusCompleted
		cal.CompletedDate = &completedAt

		device.ApplyCalibration(calDate)
		device.UpdatedBy = &callerID
		if err := txRepo.Device.Update(ctx, device); err != nil {
			rollback(tx)
			s.logger.Error("更新设备到期日失败", zap.String("device_id", device.ID), zap.Error(err))
			return nil, err
		}
	}

	if isNew {
		err = txRepo.Calibration.Create(ctx, cal)
	} else {
		err = txRepo.Calibration.Update(ctx, cal)
	}
	if err != nil {
		rollback(tx)
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrVersionConflict
		}
		s.logger.Error("保存校准记录失败", zap.String("calibration_id", cal.ID), zap.Error(err))
		return nil, err
	}
	if err := commit(tx); err != nil {
		s.logger.Error("提交事务失败", zap.Error(err))
		return nil, err
	}

	e.meta.CalibrationID = cal.ID
	s.logger.Info("校准数据已保存",
		zap.String("calibration_id", cal.ID),
		zap.String("status", cal.Status),
		zap.String("overall_status", rec.OverallStatus),
	)
	return cal, nil
}

// ── 内部方法 ──

// withEntry 取出会话（必要时从草稿恢复）并在会话锁内执行 fn
func (s *sessionService) withEntry(ctx context.Context, id, callerID string, fn func(e *sessionEntry) (*dto.SessionResponse, error)) (*dto.SessionResponse, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		restored, err := s.restore(ctx, id)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if existing, ok := s.sessions[id]; ok {
			e = existing
		} else {
			s.sessions[id] = restored
			if calID := restored.meta.CalibrationID; calID != "" {
				s.byCal[calID] = id
			}
			e = restored
		}
		s.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ownerID != callerID {
		return nil, ErrSessionForbidden
	}
	e.lastAccess = s.now()
	return fn(e)
}

func (s *sessionService) restore(ctx context.Context, id string) (*sessionEntry, error) {
	if s.drafts == nil {
		return nil, ErrSessionNotFound
	}
	payload, err := s.drafts.LoadDraft(ctx, id)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	var draft sessionDraft
	if err := json.Unmarshal(payload, &draft); err != nil {
		s.logger.Warn("草稿解析失败", zap.String("session_id", id), zap.Error(err))
		return nil, ErrSessionNotFound
	}
	g, err := grid.Restore(draft.Record.GridState())
	if err != nil {
		s.logger.Warn("草稿表格无效", zap.String("session_id", id), zap.Error(err))
		return nil, ErrSessionNotFound
	}

	ctrl := session.New(session.Options{
		DeviceID:   draft.Record.Snapshot.DeviceID,
		DeviceName: draft.Record.Snapshot.DeviceName,
		Grid:       g,
		Status:     draft.Record.Snapshot.Status,
		Clock:      s.now,
	})
	if draft.Dirty {
		ctrl.MarkDirty()
	}
	s.logger.Info("录入会话已从草稿恢复", zap.String("session_id", id))
	return &sessionEntry{
		ctrl:       ctrl,
		meta:       draft.Meta,
		ownerID:    draft.OwnerID,
		lastAccess: s.now(),
	}, nil
}

// mirror 将会话镜像到草稿存储；失败只记录日志
func (s *sessionService) mirror(ctx context.Context, id string, e *sessionEntry) {
	if s.drafts == nil {
		return
	}
	draft := sessionDraft{
		OwnerID: e.ownerID,
		Meta:    e.meta,
		Record:  buildRecord(e.ctrl, e.ctrl.Snapshot()),
		Dirty:   e.ctrl.Dirty(),
	}
	payload, err := json.Marshal(draft)
	if err == nil {
		err = s.drafts.SaveDraft(ctx, id, payload, s.cfg.DraftTTL)
	}
	if err != nil {
		s.logger.Warn("草稿镜像失败", zap.String("session_id", id), zap.Error(err))
	}
}

func (s *sessionService) remove(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.unindexLocked(id)
	s.mu.Unlock()
	if s.drafts != nil {
		if err := s.drafts.DeleteDraft(ctx, id); err != nil {
			s.logger.Warn("删除草稿失败", zap.String("session_id", id), zap.Error(err))
		}
	}
}

// evictIdle 释放超过草稿有效期未访问的内存会话；草稿本身由存储的 TTL 清理
func (s *sessionService) evictIdle() {
	if s.cfg.DraftTTL <= 0 {
		return
	}
	cutoff := s.now().Add(-s.cfg.DraftTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.sessions {
		if !e.mu.TryLock() {
			continue
		}
		if e.lastAccess.Before(cutoff) {
			delete(s.sessions, id)
			s.unindexLocked(id)
		}
		e.mu.Unlock()
	}
}

func (s *sessionService) findByCalibration(calibrationID string) (string, *sessionEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCal[calibrationID]
	if !ok {
		return "", nil
	}
	return id, s.sessions[id]
}

// indexCalibration 新建的校准记录首次保存后登记到索引
func (s *sessionService) indexCalibration(id, calibrationID string) {
	s.mu.Lock()
	if _, alive := s.sessions[id]; alive {
		s.byCal[calibrationID] = id
	}
	s.mu.Unlock()
}

// unindexLocked 调用方须持有 s.mu
func (s *sessionService) unindexLocked(id string) {
	for calID, sid := range s.byCal {
		if sid == id {
			delete(s.byCal, calID)
		}
	}
}

// gridFor 已有测量数据时从中恢复，否则按校准点新建
func (s *sessionService) gridFor(cal *model.Calibration, points []float64, places int) (*grid.Grid, error) {
	rec, err := decodeMeasurement(cal.MeasurementData)
	if err != nil {
		s.logger.Warn("测量数据解析失败，使用空表格", zap.String("calibration_id", cal.ID), zap.Error(err))
	}
	if rec != nil {
		g, err := grid.Restore(rec.GridState())
		if err == nil {
			return g, nil
		}
		s.logger.Warn("测量数据无法还原，使用空表格", zap.String("calibration_id", cal.ID), zap.Error(err))
	}
	return newGrid(points, places)
}

func (s *sessionService) view(id string, e *sessionEntry) *dto.SessionResponse {
	return &dto.SessionResponse{
		ID:          id,
		SessionMeta: e.meta,
		View:        e.ctrl.View(),
	}
}

// ── 辅助函数 ──

func newGrid(points []float64, places int) (*grid.Grid, error) {
	if points == nil {
		points = grid.DefaultPoints
	}
	g, err := grid.New(points, grid.WithDecimalPlaces(places))
	if err != nil {
		if errors.Is(err, grid.ErrInvalidPrecision) {
			return nil, err
		}
		return nil, ErrInvalidPoints
	}
	return g, nil
}

func buildRecord(ctrl *session.Controller, snap session.Snapshot) dto.MeasurementRecord {
	view := ctrl.View()
	return dto.MeasurementRecord{
		Snapshot:      snap,
		Merges:        view.Merges,
		DecimalPlaces: view.DecimalPlaces,
		AutoStatus:    view.AutoStatus,
		Readings:      view.Readings,
		Statistics:    view.Statistics,
		OverallStatus: view.OverallStatus,
	}
}

// setPtr src 非 nil 且取值不同时写入 dst
func setPtr[T comparable](dst **T, src *T, changed *bool) {
	if src == nil {
		return
	}
	if *dst != nil && **dst == *src {
		return
	}
	v := *src
	*dst = &v
	*changed = true
}
