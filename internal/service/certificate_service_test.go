package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/dto"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
)

func setupTestCertificateService() (CertificateService, *testEnv) {
	env := newTestEnv()
	return newCertificateServiceFor(env), env
}

func newCertificateServiceFor(env *testEnv) CertificateService {
	svc := NewCertificateService(testCalibrationConfig(), env.repo, zap.NewNop())
	svc.(*certificateService).now = func() time.Time { return testToday }
	return svc
}

func seedCompleted(env *testEnv, serial string) *model.Calibration {
	device := seedDevice(env, seedClient(env, "Acme "+serial), "DMM", serial)
	cal := seedCalibration(env, device, model.CalibrationStatusCompleted, testToday)
	done := testToday
	env.calibrations.items[cal.ID].CompletedDate = &done
	return cal
}

// racingCertRepo 第一次写入前插入一张同编号的证书，模拟并发取号
type racingCertRepo struct {
	*mockCertificateRepo
	raced bool
}

func (r *racingCertRepo) Create(ctx context.Context, c *model.Certificate) error {
	if !r.raced {
		r.raced = true
		_ = r.mockCertificateRepo.Create(ctx, &model.Certificate{
			CalibrationID:     "concurrent-calibration",
			CertificateNumber: c.CertificateNumber,
			Type:              model.CertificateTypeCalibration,
		})
	}
	return r.mockCertificateRepo.Create(ctx, c)
}

// ── Create ──

func TestCertificateService_Create_SequentialNumbers(t *testing.T) {
	svc, env := setupTestCertificateService()
	ctx := context.Background()

	var numbers []string
	for _, serial := range []string{"SN-1", "SN-2", "SN-3"} {
		cal := seedCompleted(env, serial)
		cert, err := svc.Create(ctx, &dto.CreateCertificateRequest{CalibrationID: cal.ID}, "admin")
		if err != nil {
			t.Fatalf("生成证书失败: %v", err)
		}
		numbers = append(numbers, cert.CertificateNumber)
		if !env.calibrations.items[cal.ID].CertificateGenerated {
			t.Error("校准记录应标记已生成证书")
		}
	}
	want := []string{"CAL-2026-001", "CAL-2026-002", "CAL-2026-003"}
	if diff := cmp.Diff(want, numbers); diff != "" {
		t.Errorf("证书编号 (-want +got):\n%s", diff)
	}
}

func TestCertificateService_Create_ContinuesFromLastNumber(t *testing.T) {
	svc, env := setupTestCertificateService()
	env.certificates.items["legacy"] = &model.Certificate{ID: "legacy", CalibrationID: "old", CertificateNumber: "CAL-2026-041"}
	env.certificates.items["last-year"] = &model.Certificate{ID: "last-year", CalibrationID: "older", CertificateNumber: "CAL-2025-120"}
	cal := seedCompleted(env, "SN-1")

	cert, err := svc.Create(context.Background(), &dto.CreateCertificateRequest{CalibrationID: cal.ID}, "admin")
	if err != nil {
		t.Fatalf("生成证书失败: %v", err)
	}
	if cert.CertificateNumber != "CAL-2026-042" {
		t.Errorf("number = %s", cert.CertificateNumber)
	}
}

func TestCertificateService_Create_Validity(t *testing.T) {
	svc, env := setupTestCertificateService()
	ctx := context.Background()

	byDevice := seedCompleted(env, "SN-1")
	cert, err := svc.Create(ctx, &dto.CreateCertificateRequest{CalibrationID: byDevice.ID}, "admin")
	if err != nil {
		t.Fatalf("生成证书失败: %v", err)
	}
	if cert.IssuedDate != "2026-03-14" || cert.ValidUntil != "2027-03-14" {
		t.Errorf("按设备周期: issued=%s valid=%s", cert.IssuedDate, cert.ValidUntil)
	}
	if cert.Expired || cert.DeviceName != "DMM" || cert.Type != model.CertificateTypeCalibration {
		t.Errorf("证书信息异常: %+v", cert)
	}

	explicit := seedCompleted(env, "SN-2")
	cert, err = svc.Create(ctx, &dto.CreateCertificateRequest{CalibrationID: explicit.ID, ValidityMonths: 6, Type: model.CertificateTypeObservation}, "admin")
	if err != nil {
		t.Fatalf("生成证书失败: %v", err)
	}
	if cert.ValidUntil != "2026-09-14" || cert.Type != model.CertificateTypeObservation {
		t.Errorf("指定月数: valid=%s type=%s", cert.ValidUntil, cert.Type)
	}
}

func TestCertificateService_Create_Rejections(t *testing.T) {
	svc, env := setupTestCertificateService()
	ctx := context.Background()
	device := seedDevice(env, nil, "DMM", "SN-9")
	pending := seedCalibration(env, device, model.CalibrationStatusInProgress, testToday)
	done := seedCompleted(env, "SN-1")

	if _, err := svc.Create(ctx, &dto.CreateCertificateRequest{CalibrationID: pending.ID}, "admin"); !errors.Is(err, ErrCalibrationNotCompleted) {
		t.Errorf("期望 ErrCalibrationNotCompleted，实际: %v", err)
	}
	if _, err := svc.Create(ctx, &dto.CreateCertificateRequest{CalibrationID: "missing"}, "admin"); !errors.Is(err, ErrCalibrationNotFound) {
		t.Errorf("期望 ErrCalibrationNotFound，实际: %v", err)
	}
	if _, err := svc.Create(ctx, &dto.CreateCertificateRequest{CalibrationID: done.ID}, "admin"); err != nil {
		t.Fatalf("首次生成应成功: %v", err)
	}
	if _, err := svc.Create(ctx, &dto.CreateCertificateRequest{CalibrationID: done.ID}, "admin"); !errors.Is(err, ErrCertificateExists) {
		t.Errorf("期望 ErrCertificateExists，实际: %v", err)
	}
}

func TestCertificateService_Create_RetriesOnNumberConflict(t *testing.T) {
	env := newTestEnv()
	env.repo.Certificate = &racingCertRepo{mockCertificateRepo: env.certificates}
	svc := newCertificateServiceFor(env)
	cal := seedCompleted(env, "SN-1")

	cert, err := svc.Create(context.Background(), &dto.CreateCertificateRequest{CalibrationID: cal.ID}, "admin")
	if err != nil {
		t.Fatalf("编号冲突后应重试成功: %v", err)
	}
	if cert.CertificateNumber != "CAL-2026-002" {
		t.Errorf("number = %s", cert.CertificateNumber)
	}
}

// ── 状态标记 ──

func TestCertificateService_MarkFlags(t *testing.T) {
	svc, env := setupTestCertificateService()
	ctx := context.Background()
	cal := seedCompleted(env, "SN-1")
	cert, _ := svc.Create(ctx, &dto.CreateCertificateRequest{CalibrationID: cal.ID}, "admin")

	if err := svc.MarkDownloaded(ctx, cert.ID, "admin"); err != nil {
		t.Fatalf("MarkDownloaded 失败: %v", err)
	}
	sent, err := svc.MarkEmailSent(ctx, cert.ID, "admin")
	if err != nil {
		t.Fatalf("MarkEmailSent 失败: %v", err)
	}
	if !sent.Downloaded || !sent.EmailSent {
		t.Errorf("标记未生效: %+v", sent)
	}
	if err := svc.MarkDownloaded(ctx, "missing", "admin"); !errors.Is(err, ErrCertificateNotFound) {
		t.Errorf("期望 ErrCertificateNotFound，实际: %v", err)
	}
}

func TestCertificateService_List_Expired(t *testing.T) {
	svc, env := setupTestCertificateService()
	env.certificates.items["old"] = &model.Certificate{
		ID:                "old",
		CalibrationID:     "c-old",
		CertificateNumber: "CAL-2024-001",
		Type:              model.CertificateTypeCalibration,
		IssuedDate:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	list, total, err := svc.List(context.Background(), &dto.CertificateListRequest{})
	if err != nil || total != 1 {
		t.Fatalf("列表查询: total=%d err=%v", total, err)
	}
	if !list[0].Expired {
		t.Error("过期证书应标记 expired")
	}
}
