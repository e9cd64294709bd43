package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	contracts "shiftnotify/contracts/mq"
	"shiftnotify/internal/model"
	"shiftnotify/internal/notify"
)

type fakeRepo struct {
	mu      sync.Mutex
	records map[int64]*model.ShiftNotification
	nextID  int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[int64]*model.ShiftNotification)}
}

func (r *fakeRepo) add(n model.ShiftNotification) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	n.ID = r.nextID
	r.records[n.ID] = &n
	return n.ID
}

func (r *fakeRepo) FindUnprocessed(ctx context.Context) ([]model.ShiftNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ShiftNotification
	for _, n := range r.records {
		if !n.Processed {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindByQuantumIDAndShiftModifiedBetween(ctx context.Context, quantumID string, start, end time.Time) ([]model.ShiftNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ShiftNotification
	for _, n := range r.records {
		if n.QuantumID == quantumID && !n.ShiftModified.Before(start) && !n.ShiftModified.After(end) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShiftModified.Before(out[j].ShiftModified) })
	return out, nil
}

func (r *fakeRepo) MarkProcessed(ctx context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if n, ok := r.records[id]; ok {
			n.Processed = true
		}
	}
	return nil
}

func (r *fakeRepo) processedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.records {
		if n.Processed {
			count++
		}
	}
	return count
}

type fakePrefs struct {
	prefs map[string]*model.UserPreference
}

func (p *fakePrefs) GetOrCreate(ctx context.Context, quantumID string) (*model.UserPreference, error) {
	if pref, ok := p.prefs[quantumID]; ok {
		return pref, nil
	}
	return &model.UserPreference{QuantumID: quantumID, Channel: model.ChannelNone}, nil
}

type sentMessage struct {
	kind        string // "email" or "sms"
	templateID  string
	destination string
	payload     map[string]string
}

type fakeClient struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]bool // destination -> refuse delivery
}

func (c *fakeClient) SendEmail(ctx context.Context, templateID, emailAddress string, personalisation map[string]string) error {
	return c.record("email", templateID, emailAddress, personalisation)
}

func (c *fakeClient) SendSms(ctx context.Context, templateID, phoneNumber string, personalisation map[string]string) error {
	return c.record("sms", templateID, phoneNumber, personalisation)
}

func (c *fakeClient) record(kind, templateID, destination string, payload map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFor[destination] {
		return &notify.ProviderError{StatusCode: 500, Message: "boom"}
	}
	c.sent = append(c.sent, sentMessage{kind: kind, templateID: templateID, destination: destination, payload: payload})
	return nil
}

func (c *fakeClient) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) Publish(routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

var fixedNow = time.Date(2020, time.April, 20, 14, 0, 0, 0, time.UTC)

func newTestService(repo *fakeRepo, prefs *fakePrefs, client *fakeClient, publisher *fakePublisher) *NotificationService {
	return NewNotificationService(
		repo,
		prefs,
		client,
		publisher,
		"email-template",
		"sms-template",
		3,
		func() time.Time { return fixedNow },
		zap.NewNop(),
	)
}

func record(quantumID string, daysAhead int) model.ShiftNotification {
	return model.ShiftNotification{
		QuantumID:     quantumID,
		ShiftModified: fixedNow.AddDate(0, 0, -1),
		DetailStart:   time.Date(2020, time.April, 21+daysAhead, 0, 0, 0, 0, time.UTC),
		DetailEnd:     time.Date(2020, time.April, 21+daysAhead, 0, 0, 0, 0, time.UTC),
		ParentType:    model.ParentTypeShift,
		ActionType:    model.ActionTypeAdd,
	}
}

func TestSendNotificationsChunksPerUser(t *testing.T) {
	repo := newFakeRepo()
	// Inserted in reverse so sorting is exercised.
	for i := 22; i >= 0; i-- {
		repo.add(record("USER1", i))
	}

	prefs := &fakePrefs{prefs: map[string]*model.UserPreference{
		"USER1": {QuantumID: "USER1", Channel: model.ChannelEmail, Email: "user1@example.com"},
	}}
	client := &fakeClient{}

	svc := newTestService(repo, prefs, client, &fakePublisher{})
	require.NoError(t, svc.SendNotifications(context.Background()))

	// 23 records: two full chunks of 10 plus a remainder of 3.
	require.Equal(t, 3, client.sentCount())
	assert.Equal(t, "email", client.sent[0].kind)
	assert.Equal(t, "email-template", client.sent[0].templateID)
	assert.Equal(t, "user1@example.com", client.sent[0].destination)

	// Concatenating the populated slots in chunk order reproduces the
	// records sorted by detail start.
	var lines []string
	for _, msg := range client.sent {
		require.Len(t, msg.payload, notify.TemplateSlotCount+1)
		for i := 1; i <= notify.TemplateSlotCount; i++ {
			if line := msg.payload[notify.SlotKey(i)]; line != "" {
				lines = append(lines, line)
			}
		}
	}
	require.Len(t, lines, 23)
	assert.Contains(t, lines[0], "21st April")
	assert.Contains(t, lines[22], "13th May")
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "* "), "email lines carry bullets: %q", line)
	}

	// Trailing slots of the last chunk are blank, not absent.
	last := client.sent[2].payload
	assert.Equal(t, "", last[notify.SlotKey(4)])
	assert.Equal(t, "", last[notify.SlotKey(10)])

	assert.Contains(t, last[notify.TitleKey], "Changes since ")
	assert.Contains(t, last[notify.TitleKey], model.FormatTemplateDate(fixedNow.AddDate(0, 0, -1)))

	assert.Equal(t, 23, repo.processedCount())
}

func TestSendNotificationsSmsChannel(t *testing.T) {
	repo := newFakeRepo()
	repo.add(record("USER1", 0))

	prefs := &fakePrefs{prefs: map[string]*model.UserPreference{
		"USER1": {QuantumID: "USER1", Channel: model.ChannelSms, Sms: "07700900000"},
	}}
	client := &fakeClient{}

	svc := newTestService(repo, prefs, client, &fakePublisher{})
	require.NoError(t, svc.SendNotifications(context.Background()))

	require.Equal(t, 1, client.sentCount())
	assert.Equal(t, "sms", client.sent[0].kind)
	assert.Equal(t, "sms-template", client.sent[0].templateID)
	assert.Equal(t, "07700900000", client.sent[0].destination)
	// No bullet rendering on SMS.
	assert.False(t, strings.HasPrefix(client.sent[0].payload[notify.SlotKey(1)], "* "))
}

func TestSendNotificationsSnoozeGate(t *testing.T) {
	tests := []struct {
		name        string
		snoozeUntil *time.Time
		wantSent    int
	}{
		{"snoozed until tomorrow", timePtr(fixedNow.AddDate(0, 0, 1)), 0},
		{"snoozed until today", timePtr(fixedNow), 0},
		{"snooze expired", timePtr(fixedNow.AddDate(0, 0, -1)), 1},
		{"never snoozed", nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			repo.add(record("USER1", 0))

			prefs := &fakePrefs{prefs: map[string]*model.UserPreference{
				"USER1": {
					QuantumID:   "USER1",
					Channel:     model.ChannelEmail,
					Email:       "user1@example.com",
					SnoozeUntil: tt.snoozeUntil,
				},
			}}
			client := &fakeClient{}

			svc := newTestService(repo, prefs, client, &fakePublisher{})
			require.NoError(t, svc.SendNotifications(context.Background()))

			assert.Equal(t, tt.wantSent, client.sentCount())
			if tt.wantSent == 0 {
				// Snoozed records stay unprocessed for the next run.
				assert.Equal(t, 0, repo.processedCount())
			} else {
				assert.Equal(t, 1, repo.processedCount())
			}
		})
	}
}

func TestSendNotificationsProviderFailureIsolation(t *testing.T) {
	repo := newFakeRepo()
	repo.add(record("FAILING_USER", 0))
	repo.add(record("HEALTHY_USER", 0))

	prefs := &fakePrefs{prefs: map[string]*model.UserPreference{
		"FAILING_USER": {QuantumID: "FAILING_USER", Channel: model.ChannelEmail, Email: "broken@example.com"},
		"HEALTHY_USER": {QuantumID: "HEALTHY_USER", Channel: model.ChannelEmail, Email: "ok@example.com"},
	}}
	client := &fakeClient{failFor: map[string]bool{"broken@example.com": true}}
	publisher := &fakePublisher{}

	svc := newTestService(repo, prefs, client, publisher)
	require.NoError(t, svc.SendNotifications(context.Background()))

	// The healthy user was delivered despite the other user's failure.
	require.Equal(t, 1, client.sentCount())
	assert.Equal(t, "ok@example.com", client.sent[0].destination)
	assert.Equal(t, 1, repo.processedCount())

	assert.Contains(t, publisher.events, contracts.RoutingKeyNotificationFailed)
	assert.Contains(t, publisher.events, contracts.RoutingKeyNotificationSent)

	// The failed user's record is retried on the next run once the provider
	// recovers.
	client.failFor = nil
	require.NoError(t, svc.SendNotifications(context.Background()))
	require.Equal(t, 2, client.sentCount())
	assert.Equal(t, "broken@example.com", client.sent[1].destination)
	assert.Equal(t, 2, repo.processedCount())
}

func TestSendNotificationsIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	repo.add(record("USER1", 0))

	prefs := &fakePrefs{prefs: map[string]*model.UserPreference{
		"USER1": {QuantumID: "USER1", Channel: model.ChannelEmail, Email: "user1@example.com"},
	}}
	client := &fakeClient{}

	svc := newTestService(repo, prefs, client, &fakePublisher{})
	require.NoError(t, svc.SendNotifications(context.Background()))
	require.Equal(t, 1, client.sentCount())

	// A second run with no new data produces zero additional provider calls.
	require.NoError(t, svc.SendNotifications(context.Background()))
	assert.Equal(t, 1, client.sentCount())
}

func TestSendNotificationsNoneChannel(t *testing.T) {
	repo := newFakeRepo()
	repo.add(record("USER1", 0))

	client := &fakeClient{}
	svc := newTestService(repo, &fakePrefs{}, client, &fakePublisher{})
	require.NoError(t, svc.SendNotifications(context.Background()))

	// No send capability, so no provider calls; the records are still
	// consumed so they don't pile up run after run.
	assert.Equal(t, 0, client.sentCount())
	assert.Equal(t, 1, repo.processedCount())
}

func TestGetNotifications(t *testing.T) {
	repo := newFakeRepo()
	inWindow := model.ShiftNotification{
		QuantumID:     "USER1",
		ShiftModified: time.Date(2020, time.April, 10, 9, 0, 0, 0, time.UTC),
		DetailStart:   time.Date(2020, time.April, 20, 9, 0, 0, 0, time.UTC),
		DetailEnd:     time.Date(2020, time.April, 20, 17, 0, 0, 0, time.UTC),
		Activity:      "Gym",
		ParentType:    model.ParentTypeShift,
		ActionType:    model.ActionTypeEdit,
	}
	repo.add(inWindow)

	outOfWindow := inWindow
	outOfWindow.ShiftModified = time.Date(2019, time.April, 10, 9, 0, 0, 0, time.UTC)
	repo.add(outOfWindow)

	svc := newTestService(repo, &fakePrefs{}, &fakeClient{}, &fakePublisher{})

	dtos, err := svc.GetNotifications(context.Background(), "USER1", false, nil, nil)
	require.NoError(t, err)
	require.Len(t, dtos, 1)

	// Rendered for an internal consumer: activity clause present, no bullet.
	assert.Equal(t, "Your detail on Monday, 20th April (09:00 - 17:00) has been changed to Gym.", dtos[0].Description)
	assert.Equal(t, inWindow.ShiftModified, dtos[0].ShiftModified)
	assert.False(t, dtos[0].Processed)

	// Reading marks the returned records processed.
	assert.Equal(t, 1, repo.processedCount())

	followUp, err := svc.GetNotifications(context.Background(), "USER1", true, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, followUp)
}

func TestGetNotificationsExplicitWindow(t *testing.T) {
	repo := newFakeRepo()
	n := model.ShiftNotification{
		QuantumID:     "USER1",
		ShiftModified: time.Date(2019, time.June, 15, 9, 0, 0, 0, time.UTC),
		DetailStart:   time.Date(2019, time.June, 20, 0, 0, 0, 0, time.UTC),
		DetailEnd:     time.Date(2019, time.June, 20, 0, 0, 0, 0, time.UTC),
		ParentType:    model.ParentTypeShift,
		ActionType:    model.ActionTypeAdd,
	}
	repo.add(n)

	svc := newTestService(repo, &fakePrefs{}, &fakeClient{}, &fakePublisher{})

	from := time.Date(2019, time.June, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2019, time.June, 30, 0, 0, 0, 0, time.UTC)
	dtos, err := svc.GetNotifications(context.Background(), "USER1", false, &from, &to)
	require.NoError(t, err)
	assert.Len(t, dtos, 1)

	// Record modified on the boundary day itself is included.
	boundary := time.Date(2019, time.June, 30, 23, 0, 0, 0, time.UTC)
	nb := n
	nb.ShiftModified = boundary
	repo.add(nb)
	dtos, err = svc.GetNotifications(context.Background(), "USER1", false, &from, &to)
	require.NoError(t, err)
	assert.Len(t, dtos, 2)
}

func TestChunkRecords(t *testing.T) {
	for _, n := range []int{0, 1, 9, 10, 11, 20, 23} {
		records := make([]model.ShiftNotification, n)
		for i := range records {
			records[i].ID = int64(i)
		}
		chunks := chunkRecords(records, 10)

		wantChunks := (n + 9) / 10
		require.Len(t, chunks, wantChunks, "n=%d", n)

		var total int
		for i, chunk := range chunks {
			assert.LessOrEqual(t, len(chunk), 10)
			if i < len(chunks)-1 {
				assert.Len(t, chunk, 10, "only the final chunk may be short")
			}
			for _, r := range chunk {
				assert.Equal(t, int64(total), r.ID, "chunking must preserve order")
				total++
			}
		}
		assert.Equal(t, n, total)
	}
}

func TestGroupByQuantumID(t *testing.T) {
	records := []model.ShiftNotification{
		{ID: 1, QuantumID: "A"},
		{ID: 2, QuantumID: "B"},
		{ID: 3, QuantumID: "A"},
	}
	groups := groupByQuantumID(records)
	require.Len(t, groups, 2)
	assert.Len(t, groups["A"], 2)
	assert.Len(t, groups["B"], 1)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
