package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
)

var testToday = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func setupTestDeviceService() (DeviceService, *testEnv) {
	env := newTestEnv()
	svc := NewDeviceService(env.repo, 30, zap.NewNop())
	svc.(*deviceService).now = func() time.Time { return testToday }
	return svc, env
}

// ── CRUD ──

func TestDeviceService_Create_ComputesNextDate(t *testing.T) {
	svc, env := setupTestDeviceService()
	acme := seedClient(env, "Acme")

	resp, err := svc.Create(context.Background(), &dto.CreateDeviceRequest{
		Name:                "Digital Multimeter",
		SerialNumber:        " DMM-001 ",
		ClientID:            &acme.ID,
		CalibrationInterval: 90,
		LastCalibrationDate: strPtr("2026-01-01"),
	}, "admin")
	if err != nil {
		t.Fatalf("创建设备失败: %v", err)
	}
	if resp.SerialNumber != "DMM-001" {
		t.Errorf("序列号未去空白: %q", resp.SerialNumber)
	}
	if resp.NextCalibrationDate == nil || *resp.NextCalibrationDate != "2026-04-01" {
		t.Errorf("next = %v", resp.NextCalibrationDate)
	}
	if resp.DaysUntilDue == nil || *resp.DaysUntilDue != 18 {
		t.Errorf("days_until_due = %v", resp.DaysUntilDue)
	}
	if resp.ClientName != "Acme" || resp.Status != model.DeviceStatusActive {
		t.Errorf("创建结果异常: %+v", resp)
	}
}

func TestDeviceService_Create_Validation(t *testing.T) {
	svc, env := setupTestDeviceService()
	seedDevice(env, nil, "Existing", "SN-1")
	ctx := context.Background()

	_, err := svc.Create(ctx, &dto.CreateDeviceRequest{Name: "Dup", SerialNumber: "SN-1"}, "admin")
	if !errors.Is(err, ErrSerialExists) {
		t.Errorf("期望 ErrSerialExists，实际: %v", err)
	}
	_, err = svc.Create(ctx, &dto.CreateDeviceRequest{Name: "X", SerialNumber: "SN-2", ClientID: strPtr("missing")}, "admin")
	if !errors.Is(err, ErrClientNotFound) {
		t.Errorf("期望 ErrClientNotFound，实际: %v", err)
	}
	_, err = svc.Create(ctx, &dto.CreateDeviceRequest{Name: "X", SerialNumber: "SN-3", LastCalibrationDate: strPtr("14/03/2026")}, "admin")
	if !errors.Is(err, ErrInvalidDate) {
		t.Errorf("期望 ErrInvalidDate，实际: %v", err)
	}

	resp, err := svc.Create(ctx, &dto.CreateDeviceRequest{Name: "Y", SerialNumber: "SN-4"}, "admin")
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if resp.CalibrationInterval != model.DefaultCalibrationInterval || resp.NextCalibrationDate != nil {
		t.Errorf("默认值异常: %+v", resp)
	}
}

func TestDeviceService_Update_IntervalRecomputesNextDate(t *testing.T) {
	svc, env := setupTestDeviceService()
	d := seedDevice(env, nil, "Scope", "SN-1")
	d.ApplyCalibration(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	_ = env.devices.Update(context.Background(), d)

	interval := 30
	resp, err := svc.Update(context.Background(), d.ID, &dto.UpdateDeviceRequest{CalibrationInterval: &interval}, "admin")
	if err != nil {
		t.Fatalf("更新失败: %v", err)
	}
	if resp.NextCalibrationDate == nil || *resp.NextCalibrationDate != "2026-01-31" {
		t.Errorf("next = %v", resp.NextCalibrationDate)
	}
	if resp.DaysUntilDue == nil || *resp.DaysUntilDue >= 0 {
		t.Errorf("应已逾期: %v", resp.DaysUntilDue)
	}
}

func TestDeviceService_Update_SerialConflict(t *testing.T) {
	svc, env := setupTestDeviceService()
	seedDevice(env, nil, "A", "SN-1")
	b := seedDevice(env, nil, "B", "SN-2")

	_, err := svc.Update(context.Background(), b.ID, &dto.UpdateDeviceRequest{SerialNumber: strPtr("SN-1")}, "admin")
	if !errors.Is(err, ErrSerialExists) {
		t.Errorf("期望 ErrSerialExists，实际: %v", err)
	}
}

func TestDeviceService_ListDue(t *testing.T) {
	svc, env := setupTestDeviceService()
	ctx := context.Background()
	soon := seedDevice(env, nil, "Soon", "SN-SOON")
	late := seedDevice(env, nil, "Late", "SN-LATE")
	later := seedDevice(env, nil, "Later", "SN-LATER")

	set := func(d *model.Device, next time.Time) {
		d.NextCalibrationDate = &next
		_ = env.devices.Update(ctx, d)
	}
	set(soon, testToday.AddDate(0, 0, 10))
	set(late, testToday.AddDate(0, 0, -5))
	set(later, testToday.AddDate(0, 0, 60))

	due, err := svc.ListDue(ctx, 0)
	if err != nil {
		t.Fatalf("ListDue 失败: %v", err)
	}
	var serials []string
	for _, d := range due {
		serials = append(serials, d.SerialNumber)
	}
	if diff := cmp.Diff([]string{"SN-LATE", "SN-SOON"}, serials); diff != "" {
		t.Errorf("到期设备 (-want +got):\n%s", diff)
	}
}

func TestDeviceService_Delete_NotFound(t *testing.T) {
	svc, _ := setupTestDeviceService()
	if err := svc.Delete(context.Background(), "missing", "admin"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("期望 ErrDeviceNotFound，实际: %v", err)
	}
}

// ── Import ──

func buildImportFile(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		if err := f.SetSheetRow("Sheet1", fmt.Sprintf("A%d", i+1), &row); err != nil {
			t.Fatalf("写入行失败: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("生成 xlsx 失败: %v", err)
	}
	return buf
}

func TestDeviceService_Import(t *testing.T) {
	svc, env := setupTestDeviceService()
	acme := seedClient(env, "Acme")
	seedDevice(env, nil, "Existing", "SN-EXIST")

	file := buildImportFile(t, [][]any{
		{"Name", "Serial No", "Interval", "Last Calibration", "Client ID"},
		{"DMM", "SN-100", 180, "2026-01-10", acme.ID},
		{"Scope", "SN-EXIST"},
		{"DMM copy", "SN-100"},
		{"", "SN-X"},
		{"Meter", "SN-200", "abc"},
		{"Meter 2", "SN-300", "", "", "not-a-uuid"},
		{"Meter 3", "SN-400", "", "1/2/2026"},
	})

	result, err := svc.Import(context.Background(), file, "admin")
	if err != nil {
		t.Fatalf("导入失败: %v", err)
	}
	if result.Created != 2 || result.Skipped != 2 {
		t.Errorf("created=%d skipped=%d", result.Created, result.Skipped)
	}
	var errRows []int
	for _, e := range result.Errors {
		errRows = append(errRows, e.Row)
	}
	if diff := cmp.Diff([]int{5, 6, 7}, errRows); diff != "" {
		t.Errorf("错误行 (-want +got):\n%s", diff)
	}

	imported, err := env.devices.GetBySerial(context.Background(), "SN-100")
	if err != nil {
		t.Fatalf("导入的设备不存在: %v", err)
	}
	if imported.CalibrationInterval != 180 {
		t.Errorf("interval = %d", imported.CalibrationInterval)
	}
	if got := imported.NextCalibrationDate.Format(dto.DateLayout); got != "2026-07-09" {
		t.Errorf("next = %s", got)
	}
	if imported.ClientID == nil || *imported.ClientID != acme.ID {
		t.Error("客户关联丢失")
	}

	us, _ := env.devices.GetBySerial(context.Background(), "SN-400")
	if us == nil || us.LastCalibrationDate.Format(dto.DateLayout) != "2026-01-02" {
		t.Errorf("M/D/YYYY 日期解析异常: %+v", us)
	}
}

func TestDeviceService_Import_MissingColumns(t *testing.T) {
	svc, _ := setupTestDeviceService()
	file := buildImportFile(t, [][]any{{"Name", "Model"}, {"DMM", "X1"}})

	if _, err := svc.Import(context.Background(), file, "admin"); !errors.Is(err, ErrImportMissingCols) {
		t.Errorf("期望 ErrImportMissingCols，实际: %v", err)
	}
}

func TestDeviceService_Import_NotExcel(t *testing.T) {
	svc, _ := setupTestDeviceService()
	if _, err := svc.Import(context.Background(), strings.NewReader("name,serial\n"), "admin"); !errors.Is(err, ErrInvalidImportFile) {
		t.Errorf("期望 ErrInvalidImportFile，实际: %v", err)
	}
}
