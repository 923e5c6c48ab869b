package services_test

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ispops/backend/internal/database"
	"github.com/ispops/backend/internal/models"
	"github.com/ispops/backend/internal/repository"
	"github.com/ispops/backend/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory complaint store and ledger with the same
// compare-and-set semantics as the gorm repository.
type memoryStore struct {
	mu         sync.Mutex
	complaints map[uuid.UUID]*models.Complaint
	history    map[uuid.UUID][]models.StatusHistoryEntry
	workloads  map[uuid.UUID]int64
	engineers  []models.Engineer
	issueTypes []models.IssueType

	onRead   func()
	applyErr error
	applies  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		complaints: map[uuid.UUID]*models.Complaint{},
		history:    map[uuid.UUID][]models.StatusHistoryEntry{},
		workloads:  map[uuid.UUID]int64{},
	}
}

func (s *memoryStore) Create(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ComplaintID = complaint.ID
	entry.Sequence = complaint.Version
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	s.complaints[complaint.ID] = complaint.Clone()
	s.history[complaint.ID] = append(s.history[complaint.ID], *entry)
	return nil
}

func (s *memoryStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Complaint, error) {
	s.mu.Lock()
	c, ok := s.complaints[id]
	var clone *models.Complaint
	if ok {
		clone = c.Clone()
	}
	hook := s.onRead
	s.mu.Unlock()

	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	if hook != nil {
		hook()
	}
	return clone, nil
}

func (s *memoryStore) List(ctx context.Context, filter *models.ComplaintFilter) ([]models.Complaint, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filter.Normalize()

	var matched []models.Complaint
	for _, c := range s.complaints {
		if !filter.IncludeRemoved && c.IsRemoved() {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.Priority != nil && c.Priority != *filter.Priority {
			continue
		}
		if filter.Type != nil && c.Type != *filter.Type {
			continue
		}
		if filter.ReporterID != nil && c.ReporterID != *filter.ReporterID {
			continue
		}
		if filter.EngineerID != nil && (c.EngineerID == nil || *c.EngineerID != *filter.EngineerID) {
			continue
		}
		matched = append(matched, *c.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := min(start+filter.Limit, len(matched))
	return matched[start:end], total, nil
}

func (s *memoryStore) Apply(ctx context.Context, m *repository.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applies++
	if s.applyErr != nil {
		return s.applyErr
	}

	current, ok := s.complaints[m.Complaint.ID]
	if !ok {
		return repository.ErrRecordNotFound
	}
	if current.Version != m.ExpectedVersion {
		return repository.ErrVersionConflict
	}

	m.Entry.ComplaintID = m.Complaint.ID
	m.Entry.Sequence = m.Complaint.Version
	if m.Entry.ID == uuid.Nil {
		m.Entry.ID = uuid.New()
	}
	s.complaints[m.Complaint.ID] = m.Complaint.Clone()
	s.history[m.Complaint.ID] = append(s.history[m.Complaint.ID], *m.Entry)
	for _, d := range m.Workload {
		s.workloads[d.EngineerID] += d.Delta
	}
	return nil
}

func (s *memoryStore) Snapshot(ctx context.Context, window models.AnalyticsPeriod) (*models.AnalyticsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := &models.AnalyticsSnapshot{
		Engineers:  append([]models.Engineer(nil), s.engineers...),
		IssueTypes: append([]models.IssueType(nil), s.issueTypes...),
	}
	for _, c := range s.complaints {
		snapshot.Complaints = append(snapshot.Complaints, *c.Clone())
	}
	for _, entries := range s.history {
		snapshot.History = append(snapshot.History, entries...)
	}
	return snapshot, nil
}

func (s *memoryStore) ListFor(ctx context.Context, complaintID uuid.UUID, afterSequence int64, limit int) ([]models.StatusHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.StatusHistoryEntry
	for _, e := range s.history[complaintID] {
		if e.Sequence > afterSequence {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) workload(id uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workloads[id]
}

func (s *memoryStore) ListWorkloads(ctx context.Context) ([]models.EngineerWorkload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EngineerWorkload
	for id, n := range s.workloads {
		out = append(out, models.EngineerWorkload{EngineerID: id, ActiveComplaints: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EngineerID.String() < out[j].EngineerID.String() })
	return out, nil
}

// readBarrier holds the first n readers until all of them have read.
func readBarrier(n int) func() {
	var wg sync.WaitGroup
	wg.Add(n)
	var seen int32
	return func() {
		if int(atomic.AddInt32(&seen, 1)) <= n {
			wg.Done()
			wg.Wait()
		}
	}
}

type MockEngineerDirectory struct {
	mock.Mock
}

func (m *MockEngineerDirectory) FindByID(ctx context.Context, id uuid.UUID) (*models.Engineer, error) {
	args := m.Called(ctx, id)
	if engineer, ok := args.Get(0).(*models.Engineer); ok {
		return engineer, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, channel string, payload interface{}) error {
	args := m.Called(ctx, channel, payload)
	return args.Error(0)
}

type reporterDirectory map[uuid.UUID]*models.Reporter

func (d reporterDirectory) FindByID(ctx context.Context, id uuid.UUID) (*models.Reporter, error) {
	if r, ok := d[id]; ok {
		return r, nil
	}
	return nil, repository.ErrRecordNotFound
}

type issueTypeCatalog map[uuid.UUID]*models.IssueType

func (c issueTypeCatalog) FindByID(ctx context.Context, id uuid.UUID) (*models.IssueType, error) {
	if it, ok := c[id]; ok {
		return it, nil
	}
	return nil, repository.ErrRecordNotFound
}

type attachmentStore map[string]bool

func (a attachmentStore) FileExists(ctx context.Context, objectName string) (bool, error) {
	return a[objectName], nil
}

// captureNotifier records delivered codes per complaint.
type captureNotifier struct {
	mu    sync.Mutex
	codes map[uuid.UUID][]string
	err   error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{codes: map[uuid.UUID][]string{}}
}

func (n *captureNotifier) SendOtp(ctx context.Context, reporter *models.Reporter, complaint *models.Complaint, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.codes[complaint.ID] = append(n.codes[complaint.ID], code)
	return nil
}

func (n *captureNotifier) last(id uuid.UUID) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	codes := n.codes[id]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

type countingInvalidator struct {
	calls int32
}

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	atomic.AddInt32(&c.calls, 1)
	return nil
}

type busyLocker struct {
	calls int32
}

func (l *busyLocker) Acquire(ctx context.Context, key string) (func(), error) {
	atomic.AddInt32(&l.calls, 1)
	return nil, database.ErrLockBusy
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fixture struct {
	store        *memoryStore
	engineers    *MockEngineerDirectory
	events       *MockEventPublisher
	notifier     *captureNotifier
	invalidator  *countingInvalidator
	clock        *testClock
	files        attachmentStore
	lifecycle    *services.Lifecycle
	complaints   services.ComplaintService
	assignment   services.AssignmentService
	verification services.VerificationService

	reporter models.Reporter
	wifi     models.IssueType
	cctv     models.IssueType
	e1       models.Engineer
	e2       models.Engineer
	inactive models.Engineer
	admin    services.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:       newMemoryStore(),
		engineers:   new(MockEngineerDirectory),
		events:      new(MockEventPublisher),
		notifier:    newCaptureNotifier(),
		invalidator: &countingInvalidator{},
		clock:       &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		files:       attachmentStore{},
		reporter:    models.Reporter{ID: uuid.New(), Name: "Asha Rao", Email: "asha@example.com", Phone: "+919876543210"},
		wifi:        models.IssueType{ID: uuid.New(), ComplaintType: models.ComplaintTypeWIFI, Name: "No Internet", IsActive: true},
		cctv:        models.IssueType{ID: uuid.New(), ComplaintType: models.ComplaintTypeCCTV, Name: "Camera Offline", IsActive: true},
		e1:          models.Engineer{ID: uuid.New(), Name: "Engineer One", Email: "e1@example.com", IsActive: true},
		e2:          models.Engineer{ID: uuid.New(), Name: "Engineer Two", Email: "e2@example.com", IsActive: true},
		inactive:    models.Engineer{ID: uuid.New(), Name: "Former Engineer", IsActive: false},
		admin:       services.NewActor(uuid.New(), "admin"),
	}
	for i := 1; i <= 5; i++ {
		f.files[attachmentRef(i)] = true
	}
	f.store.engineers = []models.Engineer{f.e1, f.e2, f.inactive}
	f.store.issueTypes = []models.IssueType{f.wifi, f.cctv}

	for _, e := range []models.Engineer{f.e1, f.e2, f.inactive} {
		engineer := e
		f.engineers.On("FindByID", mock.Anything, engineer.ID).Return(&engineer, nil)
	}
	f.engineers.On("FindByID", mock.Anything, mock.Anything).Return(nil, repository.ErrRecordNotFound)
	f.events.On("Publish", mock.Anything, services.WorkloadChannel, mock.AnythingOfType("models.WorkloadEvent")).Return(nil)

	f.lifecycle = services.NewLifecycle(services.LifecycleDeps{
		Complaints: f.store,
		History:    f.store,
		Events:     f.events,
		Cache:      f.invalidator,
		Logger:     quietLogger(),
		Retry:      services.RetryPolicy{Attempts: 3, Backoff: time.Millisecond},
		Clock:      f.clock.Now,
	})

	reporters := reporterDirectory{f.reporter.ID: &f.reporter}
	catalog := issueTypeCatalog{f.wifi.ID: &f.wifi, f.cctv.ID: &f.cctv}

	f.assignment = services.NewAssignmentService(f.lifecycle, f.engineers, f.store)
	f.verification = services.NewVerificationService(f.lifecycle, f.notifier, reporters, services.OtpPolicy{Length: 6, HashCost: 4})
	f.complaints = services.NewComplaintService(f.lifecycle, f.assignment, f.verification, reporters, catalog, f.files, services.ComplaintServiceConfig{DefaultRegion: "IN"})
	return f
}

func attachmentRef(i int) string {
	return "complaints/attachment-" + string(rune('0'+i)) + ".jpg"
}

func (f *fixture) createRequest(priority models.Priority, attachments []string) *models.ComplaintCreateRequest {
	return &models.ComplaintCreateRequest{
		Type:        models.ComplaintTypeWIFI,
		Title:       "Internet down since morning",
		IssueTypeID: f.wifi.ID.String(),
		Description: "Router shows red LOS light",
		Priority:    priority,
		ReporterID:  f.reporter.ID.String(),
		Attachments: attachments,
	}
}

func (f *fixture) create(t *testing.T) *models.Complaint {
	t.Helper()
	c, err := f.complaints.CreateComplaint(context.Background(), f.createRequest(models.PriorityMedium, nil), f.admin)
	require.NoError(t, err)
	return c
}

func engineerActor(e models.Engineer) services.Actor {
	return services.NewActor(e.ID, "engineer")
}

// requireLedgerConsistent checks that the latest entry mirrors the stored status.
func requireLedgerConsistent(t *testing.T, f *fixture, id uuid.UUID) []models.StatusHistoryEntry {
	t.Helper()
	complaint, history, err := f.complaints.GetComplaint(context.Background(), id, f.admin)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	require.Equal(t, complaint.Status, history[len(history)-1].Status)
	for i, entry := range history {
		require.Equal(t, int64(i+1), entry.Sequence)
	}
	if complaint.Status == models.StatusResolved {
		require.True(t, complaint.OtpVerified)
	}
	return history
}
