package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/clientcomm/core/internal/database"
	"github.com/clientcomm/core/internal/database/models"
	"github.com/clientcomm/core/internal/storage"
	"github.com/clientcomm/core/internal/transport"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// setupTestDB opens a migrated database in a temp directory
func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	tmpDir, err := os.MkdirTemp("", "clientcomm_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	db, err := database.Initialize(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open database: %v", err)
	}

	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		os.RemoveAll(tmpDir)
	}
	return db, cleanup
}

// fakeTransport stands in for the SMS provider
type fakeTransport struct {
	mu           sync.Mutex
	sendErrs     []error
	sent         []transport.SendRequest
	sendCalls    int
	redacted     []string
	redactResult bool
	statuses     map[string]string
	media        map[string]transport.Media
	invalid      map[string]bool
	nextSID      int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		redactResult: true,
		statuses:     make(map[string]string),
		media:        make(map[string]transport.Media),
		invalid:      make(map[string]bool),
	}
}

// failSends queues errors returned by the next Send calls, in order
func (f *fakeTransport) failSends(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErrs = append(f.sendErrs, errs...)
}

func (f *fakeTransport) Send(ctx context.Context, req transport.SendRequest) (transport.MessageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		return transport.MessageInfo{}, err
	}
	f.nextSID++
	f.sent = append(f.sent, req)
	return transport.MessageInfo{SID: fmt.Sprintf("SM%032d", f.nextSID), Status: models.StatusQueued}, nil
}

func (f *fakeTransport) Redact(ctx context.Context, sid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.redactResult {
		f.redacted = append(f.redacted, sid)
	}
	return f.redactResult, nil
}

func (f *fakeTransport) LookupStatus(ctx context.Context, sid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[sid]
	if !ok {
		return "", &transport.Error{Code: transport.CodeNotFound, Status: http.StatusNotFound, Message: "not found"}
	}
	return status, nil
}

func (f *fakeTransport) NormalizeNumber(ctx context.Context, raw string) (string, error) {
	if f.invalid[raw] {
		return "", transport.ErrNumberNotFound
	}
	return raw, nil
}

func (f *fakeTransport) FetchMedia(ctx context.Context, mediaURL string) (transport.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	media, ok := f.media[mediaURL]
	if !ok {
		return transport.Media{}, &transport.Error{Code: transport.CodeNotFound, Status: http.StatusNotFound}
	}
	return media, nil
}

func transientErr() error {
	return &transport.Error{Code: transport.CodeTooManyRequests, Status: http.StatusTooManyRequests, Message: "too many requests"}
}

// RecordingBroadcaster keeps every published event per channel
type RecordingBroadcaster struct {
	mu     sync.Mutex
	events map[string][]Event
}

func NewRecordingBroadcaster() *RecordingBroadcaster {
	return &RecordingBroadcaster{events: make(map[string][]Event)}
}

func (b *RecordingBroadcaster) Publish(ctx context.Context, channel string, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[channel] = append(b.events[channel], event)
	return nil
}

// On returns the events published on channel
func (b *RecordingBroadcaster) On(channel string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events[channel]...)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []Mail
}

func (m *recordingMailer) Send(ctx context.Context, mail Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return nil
}

// testEnv wires every service against one database and a fixed clock
type testEnv struct {
	t             *testing.T
	db            *gorm.DB
	now           time.Time
	provider      *fakeTransport
	broadcaster   *RecordingBroadcaster
	mailer        *recordingMailer
	queue         *JobQueue
	logs          *LogService
	delivery      *DeliveryService
	notifications *NotificationService
	inbound       *InboundService
	relationships *RelationshipService
	messages      *MessageService
	clients       *ClientService
	court         *CourtReminderService

	dept       models.Department
	unclaimed  models.User
	caseworker models.User
	colleague  models.User
}

func newTestEnv(t *testing.T) *testEnv {
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	mediaDir, err := os.MkdirTemp("", "clientcomm_media_*")
	if err != nil {
		t.Fatalf("Failed to create media dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(mediaDir) })

	e := &testEnv{
		t:           t,
		db:          db,
		now:         time.Now().UTC().Truncate(time.Second),
		provider:    newFakeTransport(),
		broadcaster: NewRecordingBroadcaster(),
		mailer:      &recordingMailer{},
	}
	clock := func() time.Time { return e.now }
	logger := zap.NewNop()

	e.queue = NewJobQueue(db)
	e.logs = NewLogService(db, logger)
	e.delivery = NewDeliveryService(db, e.provider, e.queue, e.broadcaster, e.logs, logger, DeliveryConfig{
		StatusCallbackURL: "https://example.org/incoming/sms/status",
		RedactionDelay:    10 * time.Minute,
		Policy:            RetryPolicy{MaxRetries: 4, Retryable: transport.IsTransient},
	})
	e.delivery.now = clock
	e.notifications = NewNotificationService(db, e.broadcaster, e.mailer, logger, "https://example.org")
	media := storage.NewStorage(storage.NewManager(mediaDir))
	e.inbound = NewInboundService(db, e.provider, media, e.queue, e.broadcaster, e.notifications, e.logs, logger)
	e.inbound.now = clock
	e.relationships = NewRelationshipService(db, e.broadcaster, e.notifications, media, e.logs, logger)
	e.relationships.now = clock
	e.messages = NewMessageService(db, e.queue, e.broadcaster)
	e.messages.now = clock
	e.clients = NewClientService(db, e.provider)
	e.court = NewCourtReminderService(db, e.queue, e.broadcaster, e.logs, logger, time.UTC)
	e.court.now = clock

	e.dept = models.Department{Name: "Probation", PhoneNumber: "+14155550000", UnclaimedResponse: "Thanks, someone will reply soon."}
	e.mustCreate(&e.dept)
	e.unclaimed = e.createUser("unclaimed@example.org", "Unclaimed")
	e.caseworker = e.createUser("pat@example.org", "Pat Officer")
	e.colleague = e.createUser("sam@example.org", "Sam Officer")
	e.dept.UnclaimedUserID = &e.unclaimed.ID
	if err := db.Save(&e.dept).Error; err != nil {
		t.Fatalf("Failed to set unclaimed user: %v", err)
	}
	return e
}

func (e *testEnv) mustCreate(value interface{}) {
	e.t.Helper()
	if err := e.db.Create(value).Error; err != nil {
		e.t.Fatalf("Failed to create %T: %v", value, err)
	}
}

func (e *testEnv) createUser(email, name string) models.User {
	e.t.Helper()
	user := models.User{Email: email, PasswordHash: "x", FullName: name, DepartmentID: &e.dept.ID, Active: true}
	e.mustCreate(&user)
	return user
}

func (e *testEnv) createClient(first, last, phone string) models.Client {
	e.t.Helper()
	client := models.Client{FirstName: first, LastName: last, PhoneNumber: phone, Active: true}
	e.mustCreate(&client)
	return client
}

func (e *testEnv) createRelationship(user models.User, client models.Client, active bool) models.ReportingRelationship {
	e.t.Helper()
	rr := models.ReportingRelationship{UserID: user.ID, ClientID: client.ID, Active: active}
	e.mustCreate(&rr)
	return rr
}

// addMessage stores a message in rr's timeline without queueing anything
func (e *testEnv) addMessage(rr models.ReportingRelationship, msg models.Message) models.Message {
	e.t.Helper()
	msg.ReportingRelationshipID = rr.ID
	if msg.SendAt.IsZero() {
		msg.SendAt = e.now
	}
	e.mustCreate(&msg)
	return msg
}

func (e *testEnv) reloadRelationship(id uint) models.ReportingRelationship {
	e.t.Helper()
	var rr models.ReportingRelationship
	if err := e.db.First(&rr, id).Error; err != nil {
		e.t.Fatalf("Failed to reload relationship %d: %v", id, err)
	}
	return rr
}

func (e *testEnv) reloadMessage(id uint) models.Message {
	e.t.Helper()
	var msg models.Message
	if err := e.db.First(&msg, id).Error; err != nil {
		e.t.Fatalf("Failed to reload message %d: %v", id, err)
	}
	return msg
}

func (e *testEnv) countMessages(rrID uint) int64 {
	e.t.Helper()
	count, err := countConversation(e.db, rrID)
	if err != nil {
		e.t.Fatalf("Failed to count messages: %v", err)
	}
	return count
}

func (e *testEnv) jobs(kind models.JobKind) []models.Job {
	e.t.Helper()
	jobs, err := e.queue.Pending(context.Background(), kind)
	if err != nil {
		e.t.Fatalf("Failed to list jobs: %v", err)
	}
	return jobs
}
