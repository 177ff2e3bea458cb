package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/contracts/db"
	"mailtriage/internal/classifier"
	"mailtriage/internal/model"
	"mailtriage/internal/prompt"
	"mailtriage/internal/routing"
	"mailtriage/internal/sanitizer"
	"mailtriage/pkg/util"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", model.ErrObjectNotFound, bucket, key)
	}
	return body, nil
}

func (s *memStore) Put(_ context.Context, bucket, key string, body []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = body
	return nil
}

// subjectModel replies based on the subject, which is the whole prompt.
type subjectModel struct {
	replies map[string]string
}

func (m *subjectModel) Complete(_ context.Context, req model.CompletionRequest) (string, error) {
	reply, ok := m.replies[req.Prompt]
	if !ok {
		return "", fmt.Errorf("%w: provider down", model.ErrModelInvocation)
	}
	return reply, nil
}

type users map[string]model.KnownUser

func (u users) Resolve(_ context.Context, email string) (*model.KnownUser, error) {
	user, ok := u[email]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

type recordingOutbound struct {
	mu       sync.Mutex
	notifies []model.Notify
	confirms []model.ConfirmForward
}

func (r *recordingOutbound) Notify(_ context.Context, d model.Notify) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifies = append(r.notifies, d)
	return nil
}

func (r *recordingOutbound) ConfirmForward(_ context.Context, d model.ConfirmForward) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirms = append(r.confirms, d)
	return nil
}

func rawEmail(to, subject, body string) []byte {
	return []byte(strings.Join([]string{
		"From: Sender <sender@example.com>",
		"To: " + to,
		"Subject: " + subject,
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n"))
}

type fixture struct {
	store    *memStore
	outbound *recordingOutbound
	orch     *Orchestrator
}

func newFixture(replies map[string]string) *fixture {
	store := newMemStore()
	outbound := &recordingOutbound{}
	log := zap.NewNop()

	orch := NewOrchestrator(
		store,
		sanitizer.NewNormalizer(log),
		classifier.NewClassifier(prompt.NewBuilder("{subject}", 0), &subjectModel{replies: replies}, log),
		routing.NewPolicy(users{"alice@example.com": {Email: "alice@example.com", MessagingID: "7"}}),
		outbound,
		Options{OutputBucket: "normalized", Concurrency: 4},
		log,
	)
	return &fixture{store: store, outbound: outbound, orch: orch}
}

func (f *fixture) put(key string, raw []byte) model.InboundUnit {
	_ = f.store.Put(context.Background(), "raw", key, raw, "message/rfc822")
	return model.InboundUnit{Bucket: "raw", Key: key}
}

func TestProcessBatch_Routes(t *testing.T) {
	f := newFixture(map[string]string{
		"Invoice":    `{"worth_reading": true, "reason": "Payment due Friday"}`,
		"Forwarding": `{"worth_reading": false, "gmail_forward_confirm_link": "https://x/y", "email": "a@gmail.com", "reason": "n/a"}`,
		"Stranger":   `{"worth_reading": true, "reason": "anything"}`,
		"Newsletter": `{"worth_reading": false, "reason": "bulk mail"}`,
		"Unquoted":   `{"worth_reading": true, "reason": Hello, need your input}`,
	})

	units := []model.InboundUnit{
		f.put("in/1.eml", rawEmail("Alice@Example.com", "Invoice", "pay me")),
		f.put("in/2.eml", rawEmail("alice@example.com", "Forwarding", "confirm")),
		f.put("in/3.eml", rawEmail("bob@example.com", "Stranger", "hi")),
		f.put("in/4.eml", rawEmail("alice@example.com", "Newsletter", "deals")),
		f.put("in/5.eml", rawEmail("alice@example.com", "Unquoted", "?")),
	}

	require.NoError(t, f.orch.ProcessBatch(context.Background(), units))

	assert.ElementsMatch(t, []model.Notify{
		{UserEmail: "alice@example.com", Text: "Invoice\n\nPayment due Friday"},
		{UserEmail: "alice@example.com", Text: "Unquoted\n\nHello, need your input"},
	}, f.outbound.notifies)
	assert.Equal(t, []model.ConfirmForward{{Email: "a@gmail.com", URL: "https://x/y"}}, f.outbound.confirms)
}

func TestProcessBatch_PersistsNormalizedRecord(t *testing.T) {
	f := newFixture(map[string]string{"Invoice": `{"worth_reading": false, "reason": ""}`})
	unit := f.put("in/abc.eml", rawEmail("alice@example.com", "Invoice", "pay me"))

	require.NoError(t, f.orch.ProcessBatch(context.Background(), []model.InboundUnit{unit}))

	body, err := f.store.Get(context.Background(), "normalized", "abc.json")
	require.NoError(t, err)

	var rec db.NormalizedEmailRecord
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, db.NormalizedEmailRecord{
		From:        "sender@example.com",
		To:          "alice@example.com",
		Subject:     "Invoice",
		Body:        "pay me",
		DisplayName: "Sender",
	}, rec)
}

func TestProcessBatch_TerminalFailuresAreSkipped(t *testing.T) {
	f := newFixture(map[string]string{
		"Invoice": `{"worth_reading": true, "reason": "due"}`,
		"Garbled": `I am not JSON`,
	})

	units := []model.InboundUnit{
		f.put("bad.eml", []byte("no header colon here\r\n\r\nbody")),
		f.put("garbled.eml", rawEmail("alice@example.com", "Garbled", "x")),
		{Bucket: "raw", Key: "missing.eml"},
		f.put("good.eml", rawEmail("alice@example.com", "Invoice", "x")),
	}

	require.NoError(t, f.orch.ProcessBatch(context.Background(), units))
	assert.Len(t, f.outbound.notifies, 1)
}

func TestProcessBatch_RetryableFailurePropagates(t *testing.T) {
	f := newFixture(map[string]string{
		"Invoice": `{"worth_reading": true, "reason": "due"}`,
	})

	units := []model.InboundUnit{
		f.put("down.eml", rawEmail("alice@example.com", "Provider outage", "x")),
		f.put("good.eml", rawEmail("alice@example.com", "Invoice", "x")),
	}

	err := f.orch.ProcessBatch(context.Background(), units)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrModelInvocation))
	assert.Contains(t, err.Error(), "raw/down.eml")

	retryable, _ := util.IsRetryableError(err)
	assert.True(t, retryable)

	// 兄弟单元不受影响
	assert.Len(t, f.outbound.notifies, 1)
}

func TestProcessBatch_RedeliveryIsStable(t *testing.T) {
	f := newFixture(map[string]string{"Invoice": `{"worth_reading": true, "reason": "due"}`})
	unit := f.put("in/r.eml", rawEmail("alice@example.com", "Invoice", "x"))

	require.NoError(t, f.orch.ProcessBatch(context.Background(), []model.InboundUnit{unit}))
	first, _ := f.store.Get(context.Background(), "normalized", "r.json")

	require.NoError(t, f.orch.ProcessBatch(context.Background(), []model.InboundUnit{unit}))
	second, _ := f.store.Get(context.Background(), "normalized", "r.json")

	assert.Equal(t, first, second)
	assert.Len(t, f.outbound.notifies, 2)
}

// shutdownStore fails reads the way the Mongo driver does once the
// consumer context has been canceled.
type shutdownStore struct {
	*memStore
}

func (s shutdownStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	return nil, fmt.Errorf("get %s/%s: %w", bucket, key, context.Canceled)
}

func TestProcessBatch_CanceledStoreReadIsRedelivered(t *testing.T) {
	f := newFixture(map[string]string{"Invoice": `{"worth_reading": true, "reason": "due"}`})
	log := zap.NewNop()
	orch := NewOrchestrator(
		shutdownStore{f.store},
		sanitizer.NewNormalizer(log),
		classifier.NewClassifier(prompt.NewBuilder("{subject}", 0), &subjectModel{}, log),
		routing.NewPolicy(users{}),
		f.outbound,
		Options{OutputBucket: "normalized"},
		log,
	)

	err := orch.ProcessBatch(context.Background(), []model.InboundUnit{{Bucket: "raw", Key: "a.eml"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	retryable, _ := util.IsRetryableError(err)
	assert.True(t, retryable)
}

func TestProcessBatch_InterruptedBatchIsRedelivered(t *testing.T) {
	f := newFixture(map[string]string{"Invoice": `{"worth_reading": true, "reason": "due"}`})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 单元本身的错误是终止性的，但批次已被取消
	err := f.orch.ProcessBatch(ctx, []model.InboundUnit{{Bucket: "raw", Key: "missing.eml"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	retryable, _ := util.IsRetryableError(err)
	assert.True(t, retryable)
	assert.Empty(t, f.outbound.notifies)
}
