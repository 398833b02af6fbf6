package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/config"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/grid"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoMeasurement = errors.New("该校准记录暂无测量数据")
	ErrExportGenerateFail  = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response。
type ExportService interface {
	// ExportCalibration 校准数据表：设备信息 + 测量表格 + 统计
	ExportCalibration(ctx context.Context, calibrationID string) (*bytes.Buffer, string, error)
	// ExportCertificate 证书数据表；成功后标记证书已下载
	ExportCertificate(ctx context.Context, certificateID, callerID string) (*bytes.Buffer, string, error)
	// ExportReport 汇总、月度、技术员三张工作表
	ExportReport(ctx context.Context) (*bytes.Buffer, string, error)
}

type exportService struct {
	cfg     *config.CalibrationConfig
	repo    *repository.Repository
	certs   CertificateService
	reports ReportService
	logger  *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(
	cfg *config.CalibrationConfig,
	repo *repository.Repository,
	certs CertificateService,
	reports ReportService,
	logger *zap.Logger,
) ExportService {
	return &exportService{cfg: cfg, repo: repo, certs: certs, reports: reports, logger: logger}
}

func (s *exportService) ExportCalibration(ctx context.Context, calibrationID string) (*bytes.Buffer, string, error) {
	cal, err := getCalibration(ctx, s.repo, s.logger, calibrationID)
	if err != nil {
		return nil, "", err
	}
	rec, err := decodeMeasurement(cal.MeasurementData)
	if err != nil || rec == nil {
		return nil, "", ErrExportNoMeasurement
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Calibration"
	if err := renameFirstSheet(f, sheet); err != nil {
		return nil, "", ErrExportGenerateFail
	}
	st := newSheetStyles(f)

	row := writeTitle(f, sheet, st, s.cfg.Lab.Name, "Calibration Data Sheet")
	row = writePairs(f, sheet, st, row, calibrationPairs(cal))
	row++
	if _, err := writeMeasurement(f, sheet, st, row, rec); err != nil {
		s.logger.Error("写入测量表格失败", zap.String("calibration_id", cal.ID), zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	buf, err := writeBuffer(f)
	if err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	return buf, fmt.Sprintf("calibration_%s_%s.xlsx", serialOf(cal), cal.ScheduledDate.Format("20060102")), nil
}

func (s *exportService) ExportCertificate(ctx context.Context, certificateID, callerID string) (*bytes.Buffer, string, error) {
	cert, err := getCertificate(ctx, s.repo, s.logger, certificateID)
	if err != nil {
		return nil, "", err
	}
	cal := cert.Calibration
	if cal == nil {
		return nil, "", ErrCalibrationNotFound
	}
	rec, err := decodeMeasurement(cal.MeasurementData)
	if err != nil || rec == nil {
		return nil, "", ErrExportNoMeasurement
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Certificate"
	if err := renameFirstSheet(f, sheet); err != nil {
		return nil, "", ErrExportGenerateFail
	}
	st := newSheetStyles(f)

	title := "Certificate of Calibration"
	if cert.Type == model.CertificateTypeObservation {
		title = "Observation Report"
	}
	row := writeTitle(f, sheet, st, s.cfg.Lab.Name, title)
	pairs := [][2]string{
		{"Certificate No.", cert.CertificateNumber},
		{"Issued", cert.IssuedDate.Format(dto.DateLayout)},
		{"Valid Until", cert.ValidUntil.Format(dto.DateLayout)},
	}
	if s.cfg.Lab.Accreditation != "" {
		pairs = append(pairs, [2]string{"Accreditation", s.cfg.Lab.Accreditation})
	}
	if s.cfg.Lab.Address != "" {
		pairs = append(pairs, [2]string{"Laboratory", s.cfg.Lab.Address})
	}
	row = writePairs(f, sheet, st, row, append(pairs, calibrationPairs(cal)...))
	row++
	row, err = writeMeasurement(f, sheet, st, row, rec)
	if err != nil {
		s.logger.Error("写入测量表格失败", zap.String("certificate_id", cert.ID), zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	f.SetCellValue(sheet, cell("A", row+1), "Result")
	f.SetCellValue(sheet, cell("B", row+1), rec.OverallStatus)
	f.SetCellStyle(sheet, cell("A", row+1), cell("A", row+1), st.label)

	buf, err := writeBuffer(f)
	if err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	if err := s.certs.MarkDownloaded(ctx, cert.ID, callerID); err != nil {
		return nil, "", err
	}
	return buf, cert.CertificateNumber + ".xlsx", nil
}

func (s *exportService) ExportReport(ctx context.Context) (*bytes.Buffer, string, error) {
	summary, err := s.reports.Summary(ctx)
	if err != nil {
		return nil, "", err
	}
	monthly, err := s.reports.Monthly(ctx, 12)
	if err != nil {
		return nil, "", err
	}
	techs, err := s.reports.Technicians(ctx, 12)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := renameFirstSheet(f, "Summary"); err != nil {
		return nil, "", ErrExportGenerateFail
	}
	st := newSheetStyles(f)

	// 汇总
	row := writeTitle(f, "Summary", st, s.cfg.Lab.Name, "Calibration Report")
	pairs := [][2]string{
		{"Clients", fmt.Sprint(summary.TotalClients)},
		{"Devices", fmt.Sprint(summary.TotalDevices)},
		{"Calibrations", fmt.Sprint(summary.TotalCalibrations)},
		{"Due Soon", fmt.Sprint(summary.DueSoon)},
		{"Overdue", fmt.Sprint(summary.Overdue)},
		{"Compliance Rate (%)", fmt.Sprintf("%.1f", summary.ComplianceRate)},
	}
	for _, status := range []string{
		model.CalibrationStatusScheduled, model.CalibrationStatusInProgress, model.CalibrationStatusCompleted,
		model.CalibrationStatusOverdue, model.CalibrationStatusCancelled,
	} {
		pairs = append(pairs, [2]string{"Status: " + status, fmt.Sprint(summary.ByStatus[status])})
	}
	writePairs(f, "Summary", st, row, pairs)

	// 月度
	if _, err := f.NewSheet("Monthly"); err != nil {
		return nil, "", ErrExportGenerateFail
	}
	writeHeaderRow(f, "Monthly", st, 1, []string{"Month", "Scheduled", "Completed", "Overdue", "Pass Rate (%)"})
	for i, p := range monthly {
		r := i + 2
		f.SetSheetRow("Monthly", cell("A", r), &[]any{p.Month, p.Scheduled, p.Completed, p.Overdue, p.PassRate})
	}

	// 技术员
	if _, err := f.NewSheet("Technicians"); err != nil {
		return nil, "", ErrExportGenerateFail
	}
	writeHeaderRow(f, "Technicians", st, 1, []string{"Technician", "Completed", "Passed", "Failed", "Pass Rate (%)"})
	for i, t := range techs {
		r := i + 2
		f.SetSheetRow("Technicians", cell("A", r), &[]any{t.Name, t.Completed, t.Passed, t.Failed, t.PassRate})
	}
	f.SetColWidth("Technicians", "A", "A", 28)

	buf, err := writeBuffer(f)
	if err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	return buf, fmt.Sprintf("calibration_report_%s.xlsx", time.Now().UTC().Format("20060102")), nil
}

// ═══════════════════════════════════════════════════════════
// 工作表绘制
// ═══════════════════════════════════════════════════════════

type sheetStyles struct {
	title  int
	header int
	label  int
	stat   int
}

func newSheetStyles(f *excelize.File) sheetStyles {
	var st sheetStyles
	st.title, _ = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	st.header, _ = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	st.label, _ = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	st.stat, _ = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Italic: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F2F2F2"}, Pattern: 1},
	})
	return st
}

// writeTitle 实验室名称 + 标题，返回下一可用行
func writeTitle(f *excelize.File, sheet string, st sheetStyles, lab, title string) int {
	f.SetCellValue(sheet, "A1", lab)
	f.SetCellValue(sheet, "A2", title)
	f.MergeCell(sheet, "A1", "G1")
	f.MergeCell(sheet, "A2", "G2")
	f.SetCellStyle(sheet, "A1", "A2", st.title)
	f.SetColWidth(sheet, "A", "A", 22)
	f.SetColWidth(sheet, "B", "G", 16)
	return 4
}

// writePairs 两列键值对，返回下一可用行
func writePairs(f *excelize.File, sheet string, st sheetStyles, row int, pairs [][2]string) int {
	for _, p := range pairs {
		f.SetCellValue(sheet, cell("A", row), p[0])
		f.SetCellValue(sheet, cell("B", row), p[1])
		f.SetCellStyle(sheet, cell("A", row), cell("A", row), st.label)
		row++
	}
	return row
}

func writeHeaderRow(f *excelize.File, sheet string, st sheetStyles, row int, headers []string) {
	for i, h := range headers {
		f.SetCellValue(sheet, cell(colName(i), row), h)
	}
	f.SetCellStyle(sheet, cell("A", row), cell(colName(len(headers)-1), row), st.header)
}

// writeMeasurement 按显示精度写出测量表格并还原合并区，返回下一可用行
func writeMeasurement(f *excelize.File, sheet string, st sheetStyles, startRow int, rec *dto.MeasurementRecord) (int, error) {
	g, err := grid.Restore(rec.GridState())
	if err != nil {
		return 0, err
	}

	for r := 0; r < g.Rows(); r++ {
		for c := 0; c < g.Cols(); c++ {
			f.SetCellValue(sheet, cell(colName(c), startRow+r), g.Display(r, c))
		}
	}
	writeHeaderRow(f, sheet, st, startRow, grid.Headers[:])
	statsFrom := startRow + g.Points() + 2
	f.SetCellStyle(sheet, cell("A", statsFrom), cell(colName(g.Cols()-1), startRow+g.Rows()-1), st.stat)

	for _, m := range g.Merges() {
		top := cell(colName(m.Col), startRow+m.Row)
		bottom := cell(colName(m.Col+m.ColSpan-1), startRow+m.Row+m.RowSpan-1)
		if err := f.MergeCell(sheet, top, bottom); err != nil {
			return 0, err
		}
	}
	return startRow + g.Rows(), nil
}

func calibrationPairs(cal *model.Calibration) [][2]string {
	pairs := [][2]string{}
	if d := cal.Device; d != nil {
		pairs = append(pairs,
			[2]string{"Device", d.Name},
			[2]string{"Serial Number", d.SerialNumber},
		)
		if d.Manufacturer != nil {
			pairs = append(pairs, [2]string{"Manufacturer", *d.Manufacturer})
		}
		if d.Model != nil {
			pairs = append(pairs, [2]string{"Model", *d.Model})
		}
	}
	if cal.Client != nil {
		pairs = append(pairs, [2]string{"Client", cal.Client.Name})
	}
	if cal.Technician != nil {
		pairs = append(pairs, [2]string{"Technician", cal.Technician.FullName})
	}
	date := cal.ScheduledDate
	if cal.CompletedDate != nil {
		date = *cal.CompletedDate
	}
	pairs = append(pairs, [2]string{"Calibration Date", date.UTC().Format(dto.DateLayout)})
	if cal.CalibrationStandard != nil {
		pairs = append(pairs, [2]string{"Standard", *cal.CalibrationStandard})
	}
	if cal.Temperature != nil {
		pairs = append(pairs, [2]string{"Temperature (°C)", fmt.Sprintf("%.1f", *cal.Temperature)})
	}
	if cal.Humidity != nil {
		pairs = append(pairs, [2]string{"Humidity (%RH)", fmt.Sprintf("%.1f", *cal.Humidity)})
	}
	if cal.Pressure != nil {
		pairs = append(pairs, [2]string{"Pressure (hPa)", fmt.Sprintf("%.1f", *cal.Pressure)})
	}
	if cal.OverallStatus != nil {
		pairs = append(pairs, [2]string{"Overall Status", *cal.OverallStatus})
	}
	return pairs
}

// ── 辅助函数 ──

func renameFirstSheet(f *excelize.File, name string) error {
	return f.SetSheetName(f.GetSheetName(0), name)
}

func writeBuffer(f *excelize.File) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func serialOf(cal *model.Calibration) string {
	if cal.Device != nil {
		return cal.Device.SerialNumber
	}
	return cal.DeviceID
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
