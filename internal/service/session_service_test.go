package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/grid"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/session"
)

// ── 测试辅助 ──

func setupTestSessionService() (SessionService, *testEnv, *mockKV) {
	env := newTestEnv()
	kv := newMockKV()
	return newSessionServiceFor(env, kv), env, kv
}

func newSessionServiceFor(env *testEnv, drafts DraftStore) SessionService {
	svc := NewSessionService(testCalibrationConfig(), env.repo, drafts, zap.NewNop())
	svc.(*sessionService).now = func() time.Time { return testToday }
	return svc
}

// fillPassing 为全部默认校准点录入与标准值一致的测量值
func fillPassing() *dto.SetCellsRequest {
	req := &dto.SetCellsRequest{}
	for i, std := range grid.DefaultPoints {
		req.Cells = append(req.Cells, dto.CellEdit{Row: i + 1, Col: grid.ColMeasured, Value: std})
	}
	return req
}

func openForDevice(t *testing.T, svc SessionService, device *model.Device, owner string) *dto.SessionResponse {
	t.Helper()
	resp, err := svc.Open(context.Background(), &dto.CreateSessionRequest{DeviceID: &device.ID}, owner)
	if err != nil {
		t.Fatalf("打开会话失败: %v", err)
	}
	return resp
}

// ── Open ──

func TestSessionService_Open_Defaults(t *testing.T) {
	svc, _, _ := setupTestSessionService()

	resp, err := svc.Open(context.Background(), &dto.CreateSessionRequest{}, "tech-1")
	if err != nil {
		t.Fatalf("打开会话失败: %v", err)
	}
	if resp.ID == "" || resp.Status != session.StatusDraft {
		t.Errorf("会话状态异常: id=%q status=%q", resp.ID, resp.Status)
	}
	if len(resp.Readings) != len(grid.DefaultPoints) {
		t.Errorf("默认校准点数 = %d", len(resp.Readings))
	}
	if resp.DecimalPlaces != 2 {
		t.Errorf("默认精度 = %d", resp.DecimalPlaces)
	}
	if resp.CalibrationDate != "2026-03-14" {
		t.Errorf("默认校准日期 = %s", resp.CalibrationDate)
	}
	if resp.TechnicianID == nil || *resp.TechnicianID != "tech-1" {
		t.Error("技术员应默认为当前用户")
	}
}

func TestSessionService_Open_Rejections(t *testing.T) {
	svc, env, _ := setupTestSessionService()
	device := seedDevice(env, nil, "DMM", "SN-1")
	cancelled := seedCalibration(env, device, model.CalibrationStatusCancelled, testToday)
	ctx := context.Background()

	if _, err := svc.Open(ctx, &dto.CreateSessionRequest{DeviceID: strPtr("missing")}, "t"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("期望 ErrDeviceNotFound，实际: %v", err)
	}
	if _, err := svc.Open(ctx, &dto.CreateSessionRequest{CalibrationID: &cancelled.ID}, "t"); !errors.Is(err, ErrCalibrationFinal) {
		t.Errorf("期望 ErrCalibrationFinal，实际: %v", err)
	}
	if _, err := svc.Open(ctx, &dto.CreateSessionRequest{Points: []float64{}}, "t"); !errors.Is(err, ErrInvalidPoints) {
		t.Errorf("期望 ErrInvalidPoints，实际: %v", err)
	}
}

func TestSessionService_Open_SameCalibrationReusesSession(t *testing.T) {
	svc, env, _ := setupTestSessionService()
	device := seedDevice(env, nil, "DMM", "SN-1")
	cal := seedCalibration(env, device, model.CalibrationStatusScheduled, testToday)
	ctx := context.Background()

	first, err := svc.Open(ctx, &dto.CreateSessionRequest{CalibrationID: &cal.ID}, "tech")
	if err != nil {
		t.Fatalf("打开会话失败: %v", err)
	}
	second, err := svc.Open(ctx, &dto.CreateSessionRequest{CalibrationID: &cal.ID}, "tech")
	if err != nil {
		t.Fatalf("再次打开失败: %v", err)
	}
	if first.ID != second.ID {
		t.Error("同一校准记录应复用已打开的会话")
	}
	if first.DeviceID != device.ID || first.DeviceName != "DMM" {
		t.Errorf("设备未绑定: %+v", first.View)
	}
}

func TestSessionService_Open_ConcurrentSameCalibration(t *testing.T) {
	svc, env, _ := setupTestSessionService()
	device := seedDevice(env, nil, "DMM", "SN-1")
	cal := seedCalibration(env, device, model.CalibrationStatusScheduled, testToday)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := svc.Open(ctx, &dto.CreateSessionRequest{CalibrationID: &cal.ID}, "tech")
			if err != nil {
				t.Errorf("打开会话失败: %v", err)
				return
			}
			ids[i] = resp.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("并发打开同一校准记录得到不同会话: %v", ids)
		}
	}
	if got := len(svc.(*sessionService).sessions); got != 1 {
		t.Errorf("内存会话数 = %d，期望 1", got)
	}
}

func TestSessionService_Open_ReusesSessionAfterFirstSave(t *testing.T) {
	svc, env, _ := setupTestSessionService()
	device := seedDevice(env, nil, "DMM", "SN-1")
	ctx := context.Background()
	s := openForDevice(t, svc, device, "tech")

	saved, err := svc.Save(ctx, s.ID, "tech")
	if err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	again, err := svc.Open(ctx, &dto.CreateSessionRequest{CalibrationID: &saved.CalibrationID}, "tech")
	if err != nil {
		t.Fatalf("按校准记录打开失败: %v", err)
	}
	if again.ID != s.ID {
		t.Error("首次保存生成的校准记录应关联到原会话")
	}

	if err := svc.Close(ctx, s.ID, "tech", true); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}
	if id, _ := svc.(*sessionService).findByCalibration(saved.CalibrationID); id != "" {
		t.Error("关闭会话后索引应清除")
	}
}

// ── 编辑 ──

func TestSessionService_SetCells_ReportsRejected(t *testing.T) {
	svc, env, _ := setupTestSessionService()
	device := seedDevice(env, nil, "DMM", "SN-1")
	s := openForDevice(t, svc, device, "tech")

	result, err := svc.SetCells(context.Background(), s.ID, "tech", &dto.SetCellsRequest{Cells: []dto.CellEdit{
		{Row: 1, Col: grid.ColMeasured, Value: 0.0005},
		{Row: 1, Col: grid.ColError, Value: 1.0},
		{Row: 0, Col: grid.ColNotes, Value: "header"},
	}})
	if err != nil {
		t.Fatalf("SetCells 失败: %v", err)
	}
	if result.Applied != 1 || len(result.Rejected) != 2 {
		t.Errorf("applied=%d rejected=%v", result.Applied, result.Rejected)
	}
	if !result.Session.Dirty {
		t.Error("编辑后会话应为未保存")
	}
}

func TestSessionService_SetPrecision(t *testing.T) {
	svc, _, _ := setupTestSessionService()
	ctx := context.Background()
	s, _ := svc.Open(ctx, &dto.CreateSessionRequest{}, "tech")

	resp, err := svc.SetPrecision(ctx, s.ID, "tech", 4)
	if err != nil || resp.DecimalPlaces != 4 {
		t.Errorf("SetPrecision: places=%v err=%v", resp, err)
	}
	if _, err := svc.SetPrecision(ctx, s.ID, "tech", 9); !errors.Is(err, grid.ErrInvalidPrecision) {
		t.Errorf("期望 ErrInvalidPrecision，实际: %v", err)
	}
}

func TestSessionService_MergeSelection(t *testing.T) {
	svc, _, _ := setupTestSessionService()
	ctx := context.Background()
	s, _ := svc.Open(ctx, &dto.CreateSessionRequest{}, "tech")

	noop, err := svc.Merge(ctx, s.ID, "tech")
	if err != nil || len(noop.Merges) != 0 {
		t.Fatalf("无选区合并应为空操作: %v", err)
	}

	if _, err := svc.SetSelection(ctx, s.ID, "tech", &dto.SelectionRequest{StartRow: 1, StartCol: grid.ColNotes, EndRow: 3, EndCol: grid.ColNotes}); err != nil {
		t.Fatalf("设置选区失败: %v", err)
	}
	merged, err := svc.Merge(ctx, s.ID, "tech")
	if err != nil || len(merged.Merges) != 1 {
		t.Fatalf("合并失败: merges=%v err=%v", merged, err)
	}
	unmerged, err := svc.Unmerge(ctx, s.ID, "tech")
	if err != nil || len(unmerged.Merges) != 0 {
		t.Errorf("取消合并失败: %v", err)
	}
}

func TestSessionService_UpdateMeta(t *testing.T) {
	svc, env, _ := setupTestSessionService()
	device := seedDevice(env, nil, "DMM", "SN-1")
	ctx := context.Background()
	s, _ := svc.Open(ctx, &dto.CreateSessionRequest{}, "tech")

	resp, err := svc.UpdateMeta(ctx, s.ID, "tech", &dto.SessionMetaRequest{
		DeviceID:    &device.ID,
		Temperature: floatPtr(23.1),
		Humidity:    floatPtr(45),
	})
	if err != nil {
		t.Fatalf("UpdateMeta 失败: %v", err)
	}
	if resp.DeviceID != device.ID || resp.Temperature == nil || *resp.Temperature != 23.1 {
		t.Errorf("表单字段未生效: %+v", resp)
	}
	if !resp.Dirty {
		t.Error("修改表单字段应标记为未保存")
	}

	future := testToday.AddDate(0, 0, 1).Format(dto.DateLayout)
	if _, err := svc.UpdateMeta(ctx, s.ID, "tech", &dto.SessionMetaRequest{CalibrationDate: &future}); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("校准日期不能晚于今天，实际: %v", err)
	}
}

func TestSessionService_OtherUserForbidden(t *testing.T) {
	svc, _, _ := setupTestSessionService()
	s, _ := svc.Open(context.Background(), &dto.CreateSessionRequest{}, "tech-1")

	if _, err := svc.Get(context.Background(), s.ID, "tech-2"); !errors.Is(err, ErrSessionForbidden) {
		t.Errorf("期望 ErrSessionForbidden，实际: %v", err)
	}
}

// ── 保存与完成 ──

func TestSessionService_Save_RequiresDevice(t *testing.T) {
	svc, _, _ := setupTestSessionService()
	s, _ := svc.Open(context.Background(), &dto.CreateSessionRequest{}, "tech")

	if _, err := svc.Save(context.Background(), s.ID, "tech"); !errors.Is(err, ErrSessionNoDevice) {
		t.Errorf("期望 ErrSessionNoDevice，实际: %v", err)
	}
}

func TestSessionService_Save_PersistsDraft(t *testing.T) {
	svc, env, _ := setupTestSessionService()
	device := seedDevice(env, nil, "DMM", "SN-1")
	ctx := context.Background()
	s := openForDevice(t, svc, device, "tech")

	if _, err := svc.SetCells(ctx, s.ID, "tech", fillPassing()); err != nil {
		t.Fatalf("录入失败: %v", err)
	}
	saved, err := svc.Save(ctx, s.ID, "tech")
	if err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	if saved.Snapshot.Status != session.StatusDraft || saved.Snapshot.DeviceID != device.ID {
		t.Errorf("快照异常: %+v", saved.Snapshot)
	}

	cal := env.calibrations.items[saved.CalibrationID]
	if cal == nil {
		t.Fatal("保存后应创建校准记录")
	}
	if cal.Status != model.CalibrationStatusInProgress {
		t.Errorf("status = %s", cal.Status)
	}
	if cal.OverallStatus == nil || *cal.OverallStatus != grid.OverallPass {
		t.Errorf("overall = %v", cal.OverallStatus)
	}

	again, err := svc.Save(ctx, s.ID, "tech")
	if err != nil || again.CalibrationID != saved.CalibrationID {
		t.Errorf("再次保存应更新同一记录: %v", err)
	}
	if env.calibrations.items[saved.CalibrationID].Version != 2 {
		t.Error("再次保存应经由乐观锁更新")
	}

	view, _ := svc.Get(ctx, s.ID, "tech")
	if view.Dirty {
		t.Error("保存后不应为未保存状态")
	}
}

func TestSessionService_Complete(t *testing.T) {
	svc, env, kv := setupTestSessionService()
	device := seedDevice(env, nil, "DMM", "SN-1")
	cal := seedCalibration(env, device, model.CalibrationStatusScheduled, testToday)
	ctx := context.Background()

	s, err := svc.Open(ctx, &dto.CreateSessionRequest{CalibrationID: &cal.ID}, "tech")
	if err != nil {
		t.Fatalf("打开会话失败: %v", err)
	}
	svc.SetCells(ctx, s.ID, "tech", fillPassing())

	done, err := svc.Complete(ctx, s.ID, "tech")
	if err != nil {
		t.Fatalf("完成失败: %v", err)
	}
	if done.Redirect != "/calibrations" {
		t.Errorf("redirect = %q", done.Redirect)
	}
	if done.Snapshot.Status != session.StatusCompleted {
		t.Errorf("快照状态 = %s", done.Snapshot.Status)
	}
	if done.Calibration.Status != model.CalibrationStatusCompleted || done.Calibration.Measurement == nil {
		t.Errorf("校准记录未完成: %+v", done.Calibration)
	}

	stored := env.devices.items[device.ID]
	if stored.NextCalibrationDate == nil || stored.NextCalibrationDate.Format(dto.DateLayout) != "2027-03-14" {
		t.Errorf("设备下次到期日 = %v", stored.NextCalibrationDate)
	}

	if _, err := svc.Get(ctx, s.ID, "tech"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("完成后会话应释放，实际: %v", err)
	}
	if _, err := kv.LoadDraft(ctx, s.ID); err == nil {
		t.Error("完成后草稿应删除")
	}
}

func TestSessionService_Complete_FailureReopens(t *testing.T) {
	svc, env, _ := setupTestSessionService()
	device := seedDevice(env, nil, "DMM", "SN-1")
	ctx := context.Background()
	s := openForDevice(t, svc, device, "tech")
	svc.SetCells(ctx, s.ID, "tech", fillPassing())

	// 设备在录入期间被删除
	delete(env.devices.items, device.ID)
	if _, err := svc.Complete(ctx, s.ID, "tech"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("期望 ErrDeviceNotFound，实际: %v", err)
	}

	view, err := svc.Get(ctx, s.ID, "tech")
	if err != nil {
		t.Fatalf("会话应保留: %v", err)
	}
	if view.Status != session.StatusDraft || !view.Dirty {
		t.Errorf("失败后应回到可编辑草稿: status=%s dirty=%v", view.Status, view.Dirty)
	}
}

func TestSessionService_Complete_LogsOnlyAfterCommit(t *testing.T) {
	env := newTestEnv()
	core, logs := observer.New(zap.InfoLevel)
	svc := NewSessionService(testCalibrationConfig(), env.repo, newMockKV(), zap.New(core))
	svc.(*sessionService).now = func() time.Time { return testToday }
	device := seedDevice(env, nil, "DMM", "SN-1")
	ctx := context.Background()

	failing := openForDevice(t, svc, device, "tech")
	env.calibrations.createErr = errors.New("connection reset")
	if _, err := svc.Complete(ctx, failing.ID, "tech"); err == nil {
		t.Fatal("期望保存失败")
	}
	if n := logs.FilterMessage("校准录入完成").Len(); n != 0 {
		t.Errorf("事务失败时不应记录完成日志，实际 %d 条", n)
	}

	env.calibrations.createErr = nil
	if _, err := svc.Complete(ctx, failing.ID, "tech"); err != nil {
		t.Fatalf("重试完成失败: %v", err)
	}
	if n := logs.FilterMessage("校准录入完成").Len(); n != 1 {
		t.Errorf("完成日志条数 = %d，期望 1", n)
	}
}

func TestSessionService_OpenCompletedIsReadOnly(t *testing.T) {
	svc, env, _ := setupTestSessionService()
	device := seedDevice(env, nil, "DMM", "SN-1")
	ctx := context.Background()

	s := openForDevice(t, svc, device, "tech")
	svc.SetCells(ctx, s.ID, "tech", fillPassing())
	done, err := svc.Complete(ctx, s.ID, "tech")
	if err != nil {
		t.Fatalf("完成失败: %v", err)
	}

	calID := done.Calibration.ID
	ro, err := svc.Open(ctx, &dto.CreateSessionRequest{CalibrationID: &calID}, "admin")
	if err != nil {
		t.Fatalf("打开已完成记录失败: %v", err)
	}
	if ro.Status != session.StatusCompleted {
		t.Errorf("status = %s", ro.Status)
	}
	if got := ro.Readings[0].MeasuredValue; got == nil || *got != grid.DefaultPoints[0] {
		t.Error("应还原已保存的测量值")
	}
	if _, err := svc.SetCells(ctx, ro.ID, "admin", fillPassing()); !errors.Is(err, ErrSessionCompleted) {
		t.Errorf("期望 ErrSessionCompleted，实际: %v", err)
	}
	if _, err := svc.Save(ctx, ro.ID, "admin"); !errors.Is(err, ErrSessionCompleted) {
		t.Errorf("期望 ErrSessionCompleted，实际: %v", err)
	}
}

// ── 关闭与草稿恢复 ──

func TestSessionService_Close_DirtyGuard(t *testing.T) {
	svc, _, _ := setupTestSessionService()
	ctx := context.Background()
	s, _ := svc.Open(ctx, &dto.CreateSessionRequest{}, "tech")
	svc.SetCells(ctx, s.ID, "tech", fillPassing())

	if err := svc.Close(ctx, s.ID, "tech", false); !errors.Is(err, ErrSessionDirty) {
		t.Errorf("期望 ErrSessionDirty，实际: %v", err)
	}
	if err := svc.Close(ctx, s.ID, "tech", true); err != nil {
		t.Fatalf("放弃修改后关闭失败: %v", err)
	}
	if _, err := svc.Get(ctx, s.ID, "tech"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("关闭后会话应不存在，实际: %v", err)
	}
}

func TestSessionService_RestoreFromDraft(t *testing.T) {
	env := newTestEnv()
	kv := newMockKV()
	device := seedDevice(env, nil, "DMM", "SN-1")
	ctx := context.Background()

	first := newSessionServiceFor(env, kv)
	s := openForDevice(t, first, device, "tech")
	first.SetCells(ctx, s.ID, "tech", &dto.SetCellsRequest{Cells: []dto.CellEdit{{Row: 2, Col: grid.ColMeasured, Value: 10.0004}}})
	first.UpdateMeta(ctx, s.ID, "tech", &dto.SessionMetaRequest{Comments: strPtr("warm-up 30 min")})

	// 模拟进程重启：新的服务实例共享同一草稿存储
	second := newSessionServiceFor(env, kv)
	restored, err := second.Get(ctx, s.ID, "tech")
	if err != nil {
		t.Fatalf("从草稿恢复失败: %v", err)
	}
	if got := restored.Readings[1].MeasuredValue; got == nil || *got != 10.0004 {
		t.Errorf("测量值未恢复: %v", got)
	}
	if restored.Comments == nil || *restored.Comments != "warm-up 30 min" {
		t.Error("表单字段未恢复")
	}
	if !restored.Dirty || restored.DeviceID != device.ID {
		t.Errorf("恢复状态异常: dirty=%v device=%s", restored.Dirty, restored.DeviceID)
	}
	if _, err := second.Get(ctx, s.ID, "intruder"); !errors.Is(err, ErrSessionForbidden) {
		t.Errorf("恢复后仍应校验归属，实际: %v", err)
	}
}

func TestSessionService_WithoutDraftStore(t *testing.T) {
	env := newTestEnv()
	svc := NewSessionService(testCalibrationConfig(), env.repo, nil, zap.NewNop())

	if _, err := svc.Get(context.Background(), "unknown", "tech"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("期望 ErrSessionNotFound，实际: %v", err)
	}
}
