package service

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/grid"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/repository"
)

// ReportService 报表与仪表盘业务接口
type ReportService interface {
	Summary(ctx context.Context) (*dto.SummaryResponse, error)
	// Monthly 最近 months 个自然月（含当月）的计划、完成、逾期与合格率
	Monthly(ctx context.Context, months int) ([]dto.MonthlyPoint, error)
	// Technicians 最近 months 个月内技术员完成量与合格率
	Technicians(ctx context.Context, months int) ([]dto.TechnicianStat, error)
}

type reportService struct {
	repo        *repository.Repository
	dueSoonDays int
	logger      *zap.Logger
	now         func() time.Time
}

// NewReportService 创建 ReportService 实例
func NewReportService(repo *repository.Repository, dueSoonDays int, logger *zap.Logger) ReportService {
	if dueSoonDays <= 0 {
		dueSoonDays = 30
	}
	return &reportService{repo: repo, dueSoonDays: dueSoonDays, logger: logger, now: time.Now}
}

func (s *reportService) Summary(ctx context.Context) (*dto.SummaryResponse, error) {
	clients, err := s.repo.Client.Count(ctx)
	if err != nil {
		s.logger.Error("统计客户数失败", zap.Error(err))
		return nil, err
	}
	devices, err := s.repo.Device.Count(ctx)
	if err != nil {
		s.logger.Error("统计设备数失败", zap.Error(err))
		return nil, err
	}
	byStatus, err := s.repo.Calibration.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("统计校准状态失败", zap.Error(err))
		return nil, err
	}
	due, err := s.repo.Device.ListDue(ctx, model.DateOnly(s.now()).AddDate(0, 0, s.dueSoonDays))
	if err != nil {
		s.logger.Error("查询到期设备失败", zap.Error(err))
		return nil, err
	}

	var total int64
	for _, n := range byStatus {
		total += n
	}
	completed := byStatus[model.CalibrationStatusCompleted]
	overdue := byStatus[model.CalibrationStatusOverdue]

	return &dto.SummaryResponse{
		TotalClients:      clients,
		TotalDevices:      devices,
		TotalCalibrations: total,
		ByStatus:          byStatus,
		DueSoon:           len(due),
		Overdue:           overdue,
		ComplianceRate:    percent(int(completed), int(completed+overdue), 100),
	}, nil
}

func (s *reportService) Monthly(ctx context.Context, months int) ([]dto.MonthlyPoint, error) {
	if months <= 0 {
		months = 6
	}
	from, to := monthWindow(s.now(), months)
	cals, err := s.repo.Calibration.ListBetween(ctx, from, to)
	if err != nil {
		s.logger.Error("查询校准记录失败", zap.Error(err))
		return nil, err
	}

	points := make([]dto.MonthlyPoint, months)
	index := make(map[string]int, months)
	for i := range points {
		key := from.AddDate(0, i, 0).Format("2006-01")
		points[i].Month = key
		index[key] = i
	}
	passed := make([]int, months)
	judged := make([]int, months)

	for i := range cals {
		c := &cals[i]
		if c.Status == model.CalibrationStatusCancelled {
			continue
		}
		if idx, ok := index[c.ScheduledDate.Format("2006-01")]; ok {
			points[idx].Scheduled++
			if c.Status == model.CalibrationStatusOverdue {
				points[idx].Overdue++
			}
		}
		if c.Status != model.CalibrationStatusCompleted || c.CompletedDate == nil {
			continue
		}
		idx, ok := index[c.CompletedDate.UTC().Format("2006-01")]
		if !ok {
			continue
		}
		points[idx].Completed++
		if c.OverallStatus != nil {
			switch *c.OverallStatus {
			case grid.OverallPass:
				passed[idx]++
				judged[idx]++
			case grid.OverallFail, grid.OverallLimited:
				judged[idx]++
			}
		}
	}
	for i := range points {
		points[i].PassRate = percent(passed[i], judged[i], 0)
	}
	return points, nil
}

func (s *reportService) Technicians(ctx context.Context, months int) ([]dto.TechnicianStat, error) {
	if months <= 0 {
		months = 12
	}
	from, to := monthWindow(s.now(), months)
	cals, err := s.repo.Calibration.ListBetween(ctx, from, to)
	if err != nil {
		s.logger.Error("查询校准记录失败", zap.Error(err))
		return nil, err
	}

	stats := make(map[string]*dto.TechnicianStat)
	for i := range cals {
		c := &cals[i]
		if c.Status != model.CalibrationStatusCompleted || c.TechnicianID == nil {
			continue
		}
		if c.CompletedDate == nil || c.CompletedDate.Before(from) {
			continue
		}
		st, ok := stats[*c.TechnicianID]
		if !ok {
			st = &dto.TechnicianStat{TechnicianID: *c.TechnicianID}
			if c.Technician != nil {
				st.Name = c.Technician.FullName
			}
			stats[*c.TechnicianID] = st
		}
		st.Completed++
		if c.OverallStatus != nil {
			switch *c.OverallStatus {
			case grid.OverallPass:
				st.Passed++
			case grid.OverallFail:
				st.Failed++
			}
		}
	}

	list := make([]dto.TechnicianStat, 0, len(stats))
	for _, st := range stats {
		st.PassRate = percent(st.Passed, st.Completed, 0)
		list = append(list, *st)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Completed != list[j].Completed {
			return list[i].Completed > list[j].Completed
		}
		return list[i].Name < list[j].Name
	})
	return list, nil
}

// ── 辅助函数 ──

// monthWindow [最早月份首日, 下月首日)
func monthWindow(now time.Time, months int) (time.Time, time.Time) {
	y, m, _ := now.UTC().Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -(months - 1), 0), first.AddDate(0, 1, 0)
}

// percent 百分比保留一位小数；分母为 0 时返回 empty
func percent(n, d int, empty float64) float64 {
	if d == 0 {
		return empty
	}
	return math.Round(float64(n)*1000/float64(d)) / 10
}
