package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"civicpulse/internal/config"
	"civicpulse/internal/domain/models"
	"civicpulse/internal/domain/services/ai"
	"civicpulse/internal/infrastructure/database/repository"
	"civicpulse/pkg/logger"
)

var testLog = logger.NewNop()

// memReports keeps a primary map and a department index the way the
// Postgres store does.
type memReports struct {
	mu        sync.Mutex
	primary   map[uuid.UUID]models.Report
	index     map[string]map[uuid.UUID]models.Report
	createErr error
}

func newMemReports() *memReports {
	return &memReports{
		primary: make(map[uuid.UUID]models.Report),
		index:   make(map[string]map[uuid.UUID]models.Report),
	}
}

func (m *memReports) writeIndex(r models.Report) {
	for key, entries := range m.index {
		if key != r.DepartmentKey {
			delete(entries, r.ID)
		}
	}
	if m.index[r.DepartmentKey] == nil {
		m.index[r.DepartmentKey] = make(map[uuid.UUID]models.Report)
	}
	m.index[r.DepartmentKey][r.ID] = r
}

func (m *memReports) Create(_ context.Context, r *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.DepartmentKey = models.SanitizeDepartmentKey(r.Department)
	m.primary[r.ID] = *r
	m.writeIndex(*r)
	return nil
}

func (m *memReports) GetByID(_ context.Context, id uuid.UUID) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.primary[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m *memReports) FindByShortID(_ context.Context, prefix string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []models.Report
	for id, r := range m.primary {
		if strings.HasPrefix(id.String(), prefix) {
			found = append(found, r)
		}
	}
	if len(found) != 1 {
		return nil, repository.ErrNotFound
	}
	return &found[0], nil
}

func (m *memReports) latest(match func(models.Report) bool) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.Report
	for _, r := range m.primary {
		if !match(r) {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			r := r
			best = &r
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return best, nil
}

func (m *memReports) LatestBySenderPhone(_ context.Context, phone string) (*models.Report, error) {
	return m.latest(func(r models.Report) bool { return r.SenderPhone == phone })
}

func (m *memReports) LatestByAccountID(_ context.Context, accountID string) (*models.Report, error) {
	return m.latest(func(r models.Report) bool { return r.AccountID != nil && *r.AccountID == accountID })
}

func (m *memReports) Mutate(_ context.Context, id uuid.UUID, fn func(*models.Report) (bool, error)) (*models.Report, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.primary[id]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	changed, err := fn(&r)
	if err != nil {
		return nil, false, err
	}
	if changed {
		r.UpdatedAt = time.Now().UTC()
		r.DepartmentKey = models.SanitizeDepartmentKey(r.Department)
		m.primary[id] = r
		m.writeIndex(r)
	}
	return &r, changed, nil
}

func (m *memReports) FindIndexDrift(_ context.Context, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, r := range m.primary {
		entry, ok := m.index[r.DepartmentKey][id]
		if !ok || entry.Status != r.Status || entry.Location.Address != r.Location.Address {
			ids = append(ids, id)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (m *memReports) RepairIndex(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.primary[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.writeIndex(r)
	return nil
}

func (m *memReports) all() []models.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Report, 0, len(m.primary))
	for _, r := range m.primary {
		out = append(out, r)
	}
	return out
}

func (m *memReports) indexed(departmentKey string, id uuid.UUID) (models.Report, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.index[departmentKey][id]
	return r, ok
}

type memIdentities struct {
	mu    sync.Mutex
	links map[string]string
	errs  map[string]error
	calls []string
}

func (m *memIdentities) FindAccountByPhone(_ context.Context, phone string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, phone)
	if err := m.errs[phone]; err != nil {
		return "", err
	}
	if acc, ok := m.links[phone]; ok {
		return acc, nil
	}
	return "", repository.ErrNotFound
}

type memCitizens struct {
	citizens []*models.Citizen
	err      error
}

func (m *memCitizens) List(context.Context) ([]*models.Citizen, error) {
	return m.citizens, m.err
}

func (m *memCitizens) FindByAccountID(_ context.Context, accountID string) (*models.Citizen, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, c := range m.citizens {
		if c.AccountID == accountID {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memBroadcasts struct {
	mu      sync.Mutex
	records []*models.BroadcastRecord
}

func (m *memBroadcasts) Append(_ context.Context, rec *models.BroadcastRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memBroadcasts) all() []*models.BroadcastRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.BroadcastRecord(nil), m.records...)
}

type sentMessage struct {
	To   string
	Body string
}

type fakeMessenger struct {
	mu     sync.Mutex
	sent   []sentMessage
	failTo map[string]bool
}

func (f *fakeMessenger) SendText(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{To: to, Body: body})
	if f.failTo[to] {
		return errors.New("gateway rejected recipient")
	}
	return nil
}

func (f *fakeMessenger) to(addr string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var bodies []string
	for _, m := range f.sent {
		if m.To == addr {
			bodies = append(bodies, m.Body)
		}
	}
	return bodies
}

func (f *fakeMessenger) last(addr string) string {
	bodies := f.to(addr)
	if len(bodies) == 0 {
		return ""
	}
	return bodies[len(bodies)-1]
}

func (f *fakeMessenger) all() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeMessenger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeFetcher struct {
	data []byte
	mime string
	err  error
}

func (f *fakeFetcher) FetchMedia(context.Context, string) ([]byte, string, error) {
	return f.data, f.mime, f.err
}

type fakeOracle struct {
	mu      sync.Mutex
	verdict *ai.Verdict
	err     error
	hints   []string
}

func (f *fakeOracle) Verify(_ context.Context, _ []byte, _ string, hint string) (*ai.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints = append(f.hints, hint)
	if f.err != nil {
		return nil, f.err
	}
	v := *f.verdict
	return &v, nil
}

type recordingEvents struct {
	mu       sync.Mutex
	created  []*models.Report
	changes  []*models.StatusChange
	finished []*models.BroadcastRecord
}

func (r *recordingEvents) ReportCreated(_ context.Context, report *models.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, report)
	return nil
}

func (r *recordingEvents) ReportStatusChanged(_ context.Context, change *models.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
	return nil
}

func (r *recordingEvents) BroadcastCompleted(_ context.Context, rec *models.BroadcastRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, rec)
	return nil
}

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeDeduper) MarkMessageSeen(_ context.Context, id string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[id] {
		return false, nil
	}
	f.seen[id] = true
	return true, nil
}

func testIntakeConfig() config.IntakeConfig {
	return config.IntakeConfig{
		OperatorAddress:   "918888888888",
		CountryCode:       "91",
		AddressWindow:     15 * time.Minute,
		DefaultDepartment: "Municipal/General",
		DepartmentMap: map[string]string{
			"pothole":     "Municipal/Waste",
			"garbage":     "Municipal/Waste",
			"streetlight": "Electricity",
			"light":       "Lighting",
			"fire":        "Fire & Safety",
			"crime":       "Police",
		},
		CriticalDepartments: []string{"Police", "Fire & Safety", "Medical"},
		EmergencyContact:    "917777777777",
		DedupTTL:            time.Hour,
	}
}

// harness wires every service against in-memory collaborators
type harness struct {
	reports    *memReports
	identities *memIdentities
	citizens   *memCitizens
	broadcasts *memBroadcasts
	messenger  *fakeMessenger
	fetcher    *fakeFetcher
	oracle     *fakeOracle
	events     *recordingEvents

	identity     *IdentityResolver
	conversation *ConversationResolver
	engine       *BroadcastEngine
	status       *StatusService
	intake       *IntakePipeline
	commands     *CommandProcessor
}

func newHarness() *harness {
	cfg := testIntakeConfig()
	h := &harness{
		reports:    newMemReports(),
		identities: &memIdentities{links: map[string]string{}},
		citizens:   &memCitizens{},
		broadcasts: &memBroadcasts{},
		messenger:  &fakeMessenger{},
		fetcher:    &fakeFetcher{data: []byte("img"), mime: "image/jpeg"},
		oracle:     &fakeOracle{verdict: &ai.Verdict{IsReal: true, Issue: "Pothole", Severity: "High", Confidence: 90}},
		events:     &recordingEvents{},
	}

	h.identity = NewIdentityResolver(h.identities, cfg.CountryCode, testLog)
	h.conversation = NewConversationResolver(h.reports, cfg.AddressWindow)
	h.engine = NewBroadcastEngine(h.citizens, h.broadcasts, h.messenger, h.events, 4, cfg.CountryCode, testLog)
	h.status = NewStatusService(h.reports, h.citizens, h.engine, h.events, testLog)
	h.intake = NewIntakePipeline(h.reports, h.fetcher, h.oracle, h.engine, h.identity, h.events, cfg, testLog)
	h.commands = NewCommandProcessor(h.reports, h.status, h.engine, testLog)
	return h
}

func imageMessage(id, from, caption string) *models.InboundMessage {
	return &models.InboundMessage{
		ID:    id,
		From:  from,
		Type:  models.MessageTypeImage,
		Image: &models.MediaBody{Link: "https://gateway.test/media/" + id, Caption: caption},
	}
}

func textMessage(id, from, body string) *models.InboundMessage {
	return &models.InboundMessage{
		ID:   id,
		From: from,
		Type: models.MessageTypeText,
		Text: &models.TextBody{Body: body},
	}
}

// seedReport stores a chat report directly
func (h *harness) seedReport(status models.ReportStatus, sender, address string, createdAt time.Time) *models.Report {
	r := &models.Report{
		ID:          uuid.New(),
		Status:      status,
		Source:      models.ReportSourceChat,
		Department:  "Municipal/Waste",
		Priority:    models.PriorityHigh,
		SenderPhone: sender,
		Location:    models.Location{Address: address},
		AIVerdict:   models.AIVerdict{Verified: true, Category: "Pothole"},
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	_ = h.reports.Create(context.Background(), r)
	return r
}
