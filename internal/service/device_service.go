package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/repository"
)

var (
	ErrDeviceNotFound    = errors.New("设备不存在")
	ErrSerialExists      = errors.New("序列号已存在")
	ErrInvalidDate       = errors.New("日期格式错误，应为 YYYY-MM-DD")
	ErrInvalidImportFile = errors.New("无法解析导入文件，请上传 .xlsx")
	ErrImportMissingCols = errors.New("导入文件缺少 name 或 serial_number 列")
)

// DeviceService 设备管理业务接口
type DeviceService interface {
	List(ctx context.Context, req *dto.DeviceListRequest) ([]dto.DeviceResponse, int64, error)
	GetByID(ctx context.Context, id string) (*dto.DeviceResponse, error)
	Create(ctx context.Context, req *dto.CreateDeviceRequest, callerID string) (*dto.DeviceResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateDeviceRequest, callerID string) (*dto.DeviceResponse, error)
	Delete(ctx context.Context, id, callerID string) error
	// ListDue 未来 days 天内到期（含已逾期）的在用设备
	ListDue(ctx context.Context, days int) ([]dto.DeviceResponse, error)
	// Import 从 xlsx 第一个工作表批量导入；序列号已存在的行跳过
	Import(ctx context.Context, r io.Reader, callerID string) (*dto.ImportDevicesResponse, error)
}

type deviceService struct {
	repo        *repository.Repository
	dueSoonDays int
	logger      *zap.Logger
	now         func() time.Time
}

// NewDeviceService 创建 DeviceService 实例
func NewDeviceService(repo *repository.Repository, dueSoonDays int, logger *zap.Logger) DeviceService {
	if dueSoonDays <= 0 {
		dueSoonDays = 30
	}
	return &deviceService{repo: repo, dueSoonDays: dueSoonDays, logger: logger, now: time.Now}
}

func (s *deviceService) List(ctx context.Context, req *dto.DeviceListRequest) ([]dto.DeviceResponse, int64, error) {
	filters := &repository.DeviceListFilters{
		ClientID: req.ClientID,
		Status:   req.Status,
		Keyword:  strings.TrimSpace(req.Keyword),
	}
	devices, total, err := s.repo.Device.List(ctx, filters, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询设备列表失败", zap.Error(err))
		return nil, 0, err
	}

	today := model.DateOnly(s.now())
	list := make([]dto.DeviceResponse, 0, len(devices))
	for i := range devices {
		list = append(list, toDeviceResponse(&devices[i], today))
	}
	return list, total, nil
}

func (s *deviceService) GetByID(ctx context.Context, id string) (*dto.DeviceResponse, error) {
	device, err := s.getDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toDeviceResponse(device, model.DateOnly(s.now()))
	return &resp, nil
}

func (s *deviceService) Create(ctx context.Context, req *dto.CreateDeviceRequest, callerID string) (*dto.DeviceResponse, error) {
	serial := strings.TrimSpace(req.SerialNumber)
	if err := s.ensureSerialFree(ctx, serial, ""); err != nil {
		return nil, err
	}
	if err := s.ensureClient(ctx, req.ClientID); err != nil {
		return nil, err
	}

	device := &model.Device{
		Name:                strings.TrimSpace(req.Name),
		SerialNumber:        serial,
		Manufacturer:        trimOptional(req.Manufacturer),
		Model:               trimOptional(req.Model),
		DeviceType:          trimOptional(req.DeviceType),
		MeasurementRange:    trimOptional(req.MeasurementRange),
		Accuracy:            trimOptional(req.Accuracy),
		ClientID:            req.ClientID,
		CalibrationInterval: req.CalibrationInterval,
		Status:              req.Status,
		Location:            trimOptional(req.Location),
		Notes:               req.Notes,
	}
	if device.CalibrationInterval == 0 {
		device.CalibrationInterval = model.DefaultCalibrationInterval
	}
	if device.Status == "" {
		device.Status = model.DeviceStatusActive
	}
	if req.LastCalibrationDate != nil {
		last, err := parseDate(*req.LastCalibrationDate)
		if err != nil {
			return nil, err
		}
		device.ApplyCalibration(last)
	}
	device.CreatedBy = &callerID
	device.UpdatedBy = &callerID

	if err := s.repo.Device.Create(ctx, device); err != nil {
		s.logger.Error("创建设备失败", zap.String("serial", serial), zap.Error(err))
		return nil, err
	}
	return s.GetByID(ctx, device.ID)
}

func (s *deviceService) Update(ctx context.Context, id string, req *dto.UpdateDeviceRequest, callerID string) (*dto.DeviceResponse, error) {
	device, err := s.getDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.SerialNumber != nil {
		serial := strings.TrimSpace(*req.SerialNumber)
		if serial != device.SerialNumber {
			if err := s.ensureSerialFree(ctx, serial, id); err != nil {
				return nil, err
			}
			device.SerialNumber = serial
		}
	}
	if req.ClientID != nil {
		if err := s.ensureClient(ctx, req.ClientID); err != nil {
			return nil, err
		}
		device.ClientID = req.ClientID
	}
	if req.Name != nil {
		device.Name = strings.TrimSpace(*req.Name)
	}
	if req.Manufacturer != nil {
		device.Manufacturer = trimOptional(req.Manufacturer)
	}
	if req.Model != nil {
		device.Model = trimOptional(req.Model)
	}
	if req.DeviceType != nil {
		device.DeviceType = trimOptional(req.DeviceType)
	}
	if req.MeasurementRange != nil {
		device.MeasurementRange = trimOptional(req.MeasurementRange)
	}
	if req.Accuracy != nil {
		device.Accuracy = trimOptional(req.Accuracy)
	}
	if req.Status != nil {
		device.Status = *req.Status
	}
	if req.Location != nil {
		device.Location = trimOptional(req.Location)
	}
	if req.Notes != nil {
		device.Notes = req.Notes
	}

	// 周期或上次校准日期变化时重新计算下次到期日
	if req.CalibrationInterval != nil {
		device.CalibrationInterval = *req.CalibrationInterval
	}
	switch {
	case req.LastCalibrationDate != nil:
		last, err := parseDate(*req.LastCalibrationDate)
		if err != nil {
			return nil, err
		}
		device.ApplyCalibration(last)
	case req.CalibrationInterval != nil && device.LastCalibrationDate != nil:
		device.ApplyCalibration(*device.LastCalibrationDate)
	}
	device.UpdatedBy = &callerID

	if err := s.repo.Device.Update(ctx, device); err != nil {
		s.logger.Error("更新设备失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *deviceService) Delete(ctx context.Context, id, callerID string) error {
	if _, err := s.getDevice(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Device.Delete(ctx, id, callerID); err != nil {
		s.logger.Error("删除设备失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *deviceService) ListDue(ctx context.Context, days int) ([]dto.DeviceResponse, error) {
	if days <= 0 {
		days = s.dueSoonDays
	}
	today := model.DateOnly(s.now())
	devices, err := s.repo.Device.ListDue(ctx, today.AddDate(0, 0, days))
	if err != nil {
		s.logger.Error("查询到期设备失败", zap.Error(err))
		return nil, err
	}

	list := make([]dto.DeviceResponse, 0, len(devices))
	for i := range devices {
		list = append(list, toDeviceResponse(&devices[i], today))
	}
	return list, nil
}

// ═══════════════════════════════════════════════════════════
// Import xlsx 批量导入
// ═══════════════════════════════════════════════════════════
//
// 第一行为表头（不区分大小写，空格等同下划线），必需列：name, serial_number。
// 可选列：manufacturer, model, device_type, measurement_range, accuracy,
// client_id, calibration_interval, last_calibration_date, location, notes。

func (s *deviceService) Import(ctx context.Context, r io.Reader, callerID string) (*dto.ImportDevicesResponse, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, ErrInvalidImportFile
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrInvalidImportFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil || len(rows) == 0 {
		return nil, ErrInvalidImportFile
	}

	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[importHeader(h)] = i
	}
	if _, ok := cols["name"]; !ok {
		return nil, ErrImportMissingCols
	}
	if _, ok := cols["serial_number"]; !ok {
		return nil, ErrImportMissingCols
	}

	result := &dto.ImportDevicesResponse{Errors: []dto.ImportRowError{}}
	seen := make(map[string]bool)
	var devices []model.Device

	for i, row := range rows[1:] {
		rowNum := i + 2
		get := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		name, serial := get("name"), get("serial_number")
		if name == "" && serial == "" {
			continue
		}
		if name == "" || serial == "" {
			result.Errors = append(result.Errors, dto.ImportRowError{Row: rowNum, Reason: "name 与 serial_number 不能为空"})
			continue
		}
		if seen[serial] {
			result.Skipped++
			continue
		}
		if _, err := s.repo.Device.GetBySerial(ctx, serial); err == nil {
			result.Skipped++
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("检查序列号失败", zap.String("serial", serial), zap.Error(err))
			return nil, err
		}

		device := model.Device{
			Name:                name,
			SerialNumber:        serial,
			Manufacturer:        optional(get("manufacturer")),
			Model:               optional(get("model")),
			DeviceType:          optional(get("device_type")),
			MeasurementRange:    optional(get("measurement_range")),
			Accuracy:            optional(get("accuracy")),
			ClientID:            optional(get("client_id")),
			CalibrationInterval: model.DefaultCalibrationInterval,
			Status:              model.DeviceStatusActive,
			Location:            optional(get("location")),
			Notes:               optional(get("notes")),
		}
		if v := get("calibration_interval"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				result.Errors = append(result.Errors, dto.ImportRowError{Row: rowNum, Reason: fmt.Sprintf("校准周期无效: %s", v)})
				continue
			}
			device.CalibrationInterval = n
		}
		if v := get("last_calibration_date"); v != "" {
			last, err := parseImportDate(v)
			if err != nil {
				result.Errors = append(result.Errors, dto.ImportRowError{Row: rowNum, Reason: fmt.Sprintf("日期无效: %s", v)})
				continue
			}
			device.ApplyCalibration(last)
		}
		if device.ClientID != nil {
			if _, err := uuid.Parse(*device.ClientID); err != nil {
				result.Errors = append(result.Errors, dto.ImportRowError{Row: rowNum, Reason: fmt.Sprintf("client_id 格式错误: %s", *device.ClientID)})
				continue
			}
			if err := s.ensureClient(ctx, device.ClientID); err != nil {
				if !errors.Is(err, ErrClientNotFound) {
					return nil, err
				}
				result.Errors = append(result.Errors, dto.ImportRowError{Row: rowNum, Reason: fmt.Sprintf("客户不存在: %s", *device.ClientID)})
				continue
			}
		}
		device.CreatedBy = &callerID
		device.UpdatedBy = &callerID

		seen[serial] = true
		devices = append(devices, device)
	}

	if len(devices) > 0 {
		if err := s.repo.Device.BatchCreate(ctx, devices); err != nil {
			s.logger.Error("批量导入设备失败", zap.Int("count", len(devices)), zap.Error(err))
			return nil, err
		}
	}
	result.Created = len(devices)
	s.logger.Info("设备导入完成",
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// ── 内部方法 ──

func (s *deviceService) getDevice(ctx context.Context, id string) (*model.Device, error) {
	device, err := s.repo.Device.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		s.logger.Error("查询设备失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return device, nil
}

func (s *deviceService) ensureSerialFree(ctx context.Context, serial, exceptID string) error {
	existing, err := s.repo.Device.GetBySerial(ctx, serial)
	if err == nil && existing.ID != exceptID {
		return ErrSerialExists
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("检查序列号失败", zap.Error(err))
		return err
	}
	return nil
}

func (s *deviceService) ensureClient(ctx context.Context, clientID *string) error {
	if clientID == nil {
		return nil
	}
	if _, err := s.repo.Client.GetByID(ctx, *clientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClientNotFound
		}
		s.logger.Error("查询客户失败", zap.String("id", *clientID), zap.Error(err))
		return err
	}
	return nil
}

// ── 辅助函数 ──

func toDeviceResponse(d *model.Device, today time.Time) dto.DeviceResponse {
	resp := dto.DeviceResponse{
		ID:                  d.ID,
		Name:                d.Name,
		SerialNumber:        d.SerialNumber,
		Manufacturer:        d.Manufacturer,
		Model:               d.Model,
		DeviceType:          d.DeviceType,
		MeasurementRange:    d.MeasurementRange,
		Accuracy:            d.Accuracy,
		ClientID:            d.ClientID,
		CalibrationInterval: d.CalibrationInterval,
		LastCalibrationDate: formatDatePtr(d.LastCalibrationDate),
		NextCalibrationDate: formatDatePtr(d.NextCalibrationDate),
		Status:              d.Status,
		Location:            d.Location,
		Notes:               d.Notes,
	}
	if d.Client != nil {
		resp.ClientName = d.Client.Name
	}
	if d.NextCalibrationDate != nil {
		days := int(model.DateOnly(*d.NextCalibrationDate).Sub(today).Hours() / 24)
		resp.DaysUntilDue = &days
	}
	return resp
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dto.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// importDateLayouts 表格中常见的日期写法
var importDateLayouts = []string{dto.DateLayout, "2006/01/02", "01-02-06", "1/2/2006", "1/2/06", "02.01.2006"}

func parseImportDate(s string) (time.Time, error) {
	for _, layout := range importDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

func importHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	switch h {
	case "serial", "serial_no", "sn":
		return "serial_number"
	case "type":
		return "device_type"
	case "range":
		return "measurement_range"
	case "interval":
		return "calibration_interval"
	case "last_calibration", "last_calibrated":
		return "last_calibration_date"
	}
	return h
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dto.DateLayout)
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
