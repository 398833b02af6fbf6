package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/repository"
	pkgerrors "github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/errors"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/redis"
)

// ── 测试环境 ──

// testEnv 基于内存 mock 的 Repository 聚合；BeginTx 返回 nil 事务
type testEnv struct {
	repo         *repository.Repository
	profiles     *mockProfileRepo
	clients      *mockClientRepo
	devices      *mockDeviceRepo
	calibrations *mockCalibrationRepo
	certificates *mockCertificateRepo
}

func newTestEnv() *testEnv {
	env := &testEnv{
		profiles: &mockProfileRepo{items: map[string]*model.Profile{}},
		clients:  &mockClientRepo{items: map[string]*model.Client{}},
	}
	env.devices = &mockDeviceRepo{items: map[string]*model.Device{}, clients: env.clients}
	env.calibrations = &mockCalibrationRepo{
		items:    map[string]*model.Calibration{},
		devices:  env.devices,
		clients:  env.clients,
		profiles: env.profiles,
	}
	env.certificates = &mockCertificateRepo{items: map[string]*model.Certificate{}, calibrations: env.calibrations}
	env.repo = &repository.Repository{
		Profile:     env.profiles,
		Client:      env.clients,
		Device:      env.devices,
		Calibration: env.calibrations,
		Certificate: env.certificates,
	}
	return env
}

var mockSeq int

func nextID(prefix string) string {
	mockSeq++
	return fmt.Sprintf("%s-%04d", prefix, mockSeq)
}

// ── Mock ProfileRepository ──

type mockProfileRepo struct {
	items map[string]*model.Profile
}

func (m *mockProfileRepo) Create(_ context.Context, p *model.Profile) error {
	if p.ID == "" {
		p.ID = nextID("profile")
	}
	for _, existing := range m.items {
		if strings.EqualFold(existing.Email, p.Email) {
			return gorm.ErrDuplicatedKey
		}
	}
	p.CreatedAt = time.Now()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockProfileRepo) GetByID(_ context.Context, id string) (*model.Profile, error) {
	if p, ok := m.items[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockProfileRepo) GetByEmail(_ context.Context, email string) (*model.Profile, error) {
	for _, p := range m.items {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockProfileRepo) Update(_ context.Context, p *model.Profile) error {
	if _, ok := m.items[p.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockProfileRepo) List(_ context.Context, f *repository.ProfileListFilters, offset, limit int) ([]model.Profile, int64, error) {
	var all []model.Profile
	for _, p := range m.items {
		if f != nil {
			if f.Role != "" && p.Role != f.Role {
				continue
			}
			if f.IsActive != nil && p.IsActive != *f.IsActive {
				continue
			}
			if f.Keyword != "" && !strings.Contains(strings.ToLower(p.FullName+" "+p.Email), strings.ToLower(f.Keyword)) {
				continue
			}
		}
		all = append(all, *p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })
	return page(all, offset, limit), int64(len(all)), nil
}

func (m *mockProfileRepo) ListByIDs(_ context.Context, ids []string) ([]model.Profile, error) {
	var result []model.Profile
	for _, id := range ids {
		if p, ok := m.items[id]; ok {
			result = append(result, *p)
		}
	}
	return result, nil
}

// ── Mock ClientRepository ──

type mockClientRepo struct {
	items map[string]*model.Client
}

func (m *mockClientRepo) Create(_ context.Context, c *model.Client) error {
	if c.ID == "" {
		c.ID = nextID("client")
	}
	c.CreatedAt, c.UpdatedAt = time.Now(), time.Now()
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockClientRepo) GetByID(_ context.Context, id string) (*model.Client, error) {
	if c, ok := m.items[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockClientRepo) Update(_ context.Context, c *model.Client) error {
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockClientRepo) Delete(_ context.Context, id string, _ string) error {
	delete(m.items, id)
	return nil
}

func (m *mockClientRepo) List(_ context.Context, f *repository.ClientListFilters, offset, limit int) ([]model.Client, int64, error) {
	var all []model.Client
	for _, c := range m.items {
		if f != nil && f.Status != "" && c.Status != f.Status {
			continue
		}
		if f != nil && f.Keyword != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Keyword)) {
			continue
		}
		all = append(all, *c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return page(all, offset, limit), int64(len(all)), nil
}

func (m *mockClientRepo) Count(_ context.Context) (int64, error) {
	return int64(len(m.items)), nil
}

// ── Mock DeviceRepository ──

type mockDeviceRepo struct {
	items   map[string]*model.Device
	clients *mockClientRepo
}

func (m *mockDeviceRepo) Create(_ context.Context, d *model.Device) error {
	if d.ID == "" {
		d.ID = nextID("device")
	}
	cp := *d
	cp.Client = nil
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDeviceRepo) BatchCreate(ctx context.Context, devices []model.Device) error {
	for i := range devices {
		if err := m.Create(ctx, &devices[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockDeviceRepo) load(d *model.Device) *model.Device {
	cp := *d
	if cp.ClientID != nil {
		if c, ok := m.clients.items[*cp.ClientID]; ok {
			cc := *c
			cp.Client = &cc
		}
	}
	return &cp
}

func (m *mockDeviceRepo) GetByID(_ context.Context, id string) (*model.Device, error) {
	if d, ok := m.items[id]; ok {
		return m.load(d), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockDeviceRepo) GetBySerial(_ context.Context, serial string) (*model.Device, error) {
	for _, d := range m.items {
		if d.SerialNumber == serial {
			return m.load(d), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockDeviceRepo) Update(_ context.Context, d *model.Device) error {
	cp := *d
	cp.Client = nil
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDeviceRepo) Delete(_ context.Context, id string, _ string) error {
	delete(m.items, id)
	return nil
}

func (m *mockDeviceRepo) List(_ context.Context, f *repository.DeviceListFilters, offset, limit int) ([]model.Device, int64, error) {
	var all []model.Device
	for _, d := range m.items {
		if f != nil && f.ClientID != "" && (d.ClientID == nil || *d.ClientID != f.ClientID) {
			continue
		}
		if f != nil && f.Status != "" && d.Status != f.Status {
			continue
		}
		all = append(all, *m.load(d))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SerialNumber < all[j].SerialNumber })
	return page(all, offset, limit), int64(len(all)), nil
}

func (m *mockDeviceRepo) ListDue(_ context.Context, before time.Time) ([]model.Device, error) {
	var due []model.Device
	for _, d := range m.items {
		if d.Status == model.DeviceStatusActive && d.NextCalibrationDate != nil && !d.NextCalibrationDate.After(before) {
			due = append(due, *m.load(d))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextCalibrationDate.Before(*due[j].NextCalibrationDate) })
	return due, nil
}

func (m *mockDeviceRepo) CountByClient(_ context.Context, ids []string) (map[string]int64, error) {
	result := make(map[string]int64)
	for _, id := range ids {
		for _, d := range m.items {
			if d.ClientID != nil && *d.ClientID == id {
				result[id]++
			}
		}
	}
	return result, nil
}

func (m *mockDeviceRepo) Count(_ context.Context) (int64, error) {
	return int64(len(m.items)), nil
}

// ── Mock CalibrationRepository ──

type mockCalibrationRepo struct {
	items    map[string]*model.Calibration
	devices  *mockDeviceRepo
	clients  *mockClientRepo
	profiles *mockProfileRepo

	// createErr / updateErr 非 nil 时 Create / Update 直接返回该错误
	createErr error
	updateErr error
}

func (m *mockCalibrationRepo) Create(_ context.Context, c *model.Calibration) error {
	if m.createErr != nil {
		return m.createErr
	}
	if c.ID == "" {
		c.ID = nextID("cal")
	}
	c.Version = 1
	cp := *c
	cp.Device, cp.Client, cp.Technician = nil, nil, nil
	m.items[c.ID] = &cp
	return nil
}

func (m *mockCalibrationRepo) load(c *model.Calibration) *model.Calibration {
	cp := *c
	if d, ok := m.devices.items[cp.DeviceID]; ok {
		cp.Device = m.devices.load(d)
	}
	if cp.ClientID != nil {
		if cl, ok := m.clients.items[*cp.ClientID]; ok {
			cc := *cl
			cp.Client = &cc
		}
	}
	if cp.TechnicianID != nil {
		if p, ok := m.profiles.items[*cp.TechnicianID]; ok {
			pp := *p
			cp.Technician = &pp
		}
	}
	return &cp
}

func (m *mockCalibrationRepo) GetByID(_ context.Context, id string) (*model.Calibration, error) {
	if c, ok := m.items[id]; ok {
		return m.load(c), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCalibrationRepo) Update(_ context.Context, c *model.Calibration) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.items[c.ID]
	if !ok || stored.Version != c.Version {
		return pkgerrors.ErrOptimisticLock
	}
	c.Version++
	cp := *c
	cp.Device, cp.Client, cp.Technician = nil, nil, nil
	m.items[c.ID] = &cp
	return nil
}

func (m *mockCalibrationRepo) List(_ context.Context, f *repository.CalibrationListFilters, offset, limit int) ([]model.Calibration, int64, error) {
	var all []model.Calibration
	for _, c := range m.items {
		if f != nil && f.Status != "" && c.Status != f.Status {
			continue
		}
		if f != nil && f.DeviceID != "" && c.DeviceID != f.DeviceID {
			continue
		}
		all = append(all, *m.load(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ScheduledDate.After(all[j].ScheduledDate) })
	return page(all, offset, limit), int64(len(all)), nil
}

func (m *mockCalibrationRepo) ListBetween(_ context.Context, from, to time.Time) ([]model.Calibration, error) {
	in := func(t time.Time) bool { return !t.Before(from) && t.Before(to) }
	var result []model.Calibration
	for _, c := range m.items {
		if in(c.ScheduledDate) || (c.CompletedDate != nil && in(*c.CompletedDate)) {
			result = append(result, *m.load(c))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduledDate.Before(result[j].ScheduledDate) })
	return result, nil
}

func (m *mockCalibrationRepo) MarkOverdue(_ context.Context, today time.Time) (int64, error) {
	var n int64
	for _, c := range m.items {
		if c.Status == model.CalibrationStatusScheduled && c.ScheduledDate.Before(today) {
			c.Status = model.CalibrationStatusOverdue
			c.Version++
			n++
		}
	}
	return n, nil
}

func (m *mockCalibrationRepo) CountByStatus(_ context.Context) (map[string]int64, error) {
	result := make(map[string]int64)
	for _, c := range m.items {
		result[c.Status]++
	}
	return result, nil
}

// ── Mock CertificateRepository ──

type mockCertificateRepo struct {
	items        map[string]*model.Certificate
	calibrations *mockCalibrationRepo
}

func (m *mockCertificateRepo) Create(_ context.Context, c *model.Certificate) error {
	for _, existing := range m.items {
		if existing.CalibrationID == c.CalibrationID || existing.CertificateNumber == c.CertificateNumber {
			return gorm.ErrDuplicatedKey
		}
	}
	if c.ID == "" {
		c.ID = nextID("cert")
	}
	cp := *c
	cp.Calibration = nil
	m.items[c.ID] = &cp
	return nil
}

func (m *mockCertificateRepo) load(c *model.Certificate) *model.Certificate {
	cp := *c
	if cal, ok := m.calibrations.items[cp.CalibrationID]; ok {
		cp.Calibration = m.calibrations.load(cal)
	}
	return &cp
}

func (m *mockCertificateRepo) GetByID(_ context.Context, id string) (*model.Certificate, error) {
	if c, ok := m.items[id]; ok {
		return m.load(c), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCertificateRepo) GetByCalibrationID(_ context.Context, calibrationID string) (*model.Certificate, error) {
	for _, c := range m.items {
		if c.CalibrationID == calibrationID {
			return m.load(c), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCertificateRepo) Update(_ context.Context, c *model.Certificate) error {
	cp := *c
	cp.Calibration = nil
	m.items[c.ID] = &cp
	return nil
}

func (m *mockCertificateRepo) List(_ context.Context, f *repository.CertificateListFilters, offset, limit int) ([]model.Certificate, int64, error) {
	var all []model.Certificate
	for _, c := range m.items {
		if f != nil && f.Type != "" && c.Type != f.Type {
			continue
		}
		all = append(all, *m.load(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CertificateNumber > all[j].CertificateNumber })
	return page(all, offset, limit), int64(len(all)), nil
}

func (m *mockCertificateRepo) LastNumber(_ context.Context, prefix string) (string, error) {
	last := ""
	for _, c := range m.items {
		n := c.CertificateNumber
		if !strings.HasPrefix(n, prefix) {
			continue
		}
		if len(n) > len(last) || (len(n) == len(last) && n > last) {
			last = n
		}
	}
	if last == "" {
		return "", gorm.ErrRecordNotFound
	}
	return last, nil
}

// ── Mock Redis 存储 ──

type mockKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockKV() *mockKV {
	return &mockKV{data: map[string][]byte{}}
}

func (m *mockKV) BlacklistToken(_ context.Context, jti string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data["bl:"+jti] = []byte("1")
	return nil
}

func (m *mockKV) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data["bl:"+jti]
	return ok, nil
}

func (m *mockKV) SaveDraft(_ context.Context, id string, payload []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data["draft:"+id] = append([]byte(nil), payload...)
	return nil
}

func (m *mockKV) LoadDraft(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.data["draft:"+id]; ok {
		return p, nil
	}
	return nil, redis.ErrDraftNotFound
}

func (m *mockKV) DeleteDraft(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, "draft:"+id)
	return nil
}

// ── 辅助函数 ──

func page[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

// ── 测试数据 ──

const testPassword = "password123"

func seedProfile(env *testEnv, email, name, role string) *model.Profile {
	hash, _ := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	p := &model.Profile{
		Email:        email,
		FullName:     name,
		Role:         role,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	_ = env.profiles.Create(context.Background(), p)
	return p
}

func seedClient(env *testEnv, name string) *model.Client {
	c := &model.Client{ID: uuid.NewString(), Name: name, Status: model.ClientStatusActive}
	_ = env.clients.Create(context.Background(), c)
	return c
}

func seedDevice(env *testEnv, client *model.Client, name, serial string) *model.Device {
	d := &model.Device{
		Name:                name,
		SerialNumber:        serial,
		CalibrationInterval: 365,
		Status:              model.DeviceStatusActive,
	}
	if client != nil {
		d.ClientID = &client.ID
	}
	_ = env.devices.Create(context.Background(), d)
	return d
}

func seedCalibration(env *testEnv, device *model.Device, status string, scheduled time.Time) *model.Calibration {
	c := &model.Calibration{
		DeviceID:      device.ID,
		ClientID:      device.ClientID,
		ScheduledDate: model.DateOnly(scheduled),
		Status:        status,
	}
	_ = env.calibrations.Create(context.Background(), c)
	return c
}
