package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeinbox/intake/internal/dump"
	"github.com/lifeinbox/intake/internal/enrich"
	"github.com/lifeinbox/intake/pkg/kafka"
	"github.com/lifeinbox/intake/pkg/redis"
	"github.com/lifeinbox/intake/pkg/resilience"
)

type fakeStore struct {
	inserted []*dump.Dump
	err      error
}

func (s *fakeStore) Insert(_ context.Context, d *dump.Dump) error {
	if s.err != nil {
		return s.err
	}
	copied := *d
	s.inserted = append(s.inserted, &copied)
	return nil
}

type fakeAnalyzer struct {
	analysis enrich.Analysis
	err      error
	calls    int
}

func (a *fakeAnalyzer) Analyze(context.Context, string) (enrich.Analysis, error) {
	a.calls++
	if a.err != nil {
		return enrich.Analysis{}, a.err
	}
	return a.analysis, nil
}

type fakePublisher struct {
	events      []*kafka.ContentEvent
	persistedAt []int
	store       *fakeStore
}

func (p *fakePublisher) PublishContentEvent(event *kafka.ContentEvent) error {
	p.events = append(p.events, event)
	if p.store != nil {
		p.persistedAt = append(p.persistedAt, len(p.store.inserted))
	}
	return nil
}

type fakeHooks struct {
	created []*dump.Dump
}

func (h *fakeHooks) ContentCreated(d *dump.Dump) {
	h.created = append(h.created, d)
}

type fakeTranscriber struct {
	text string
	err  error
}

func (t *fakeTranscriber) Transcribe(context.Context, []byte, string) (TranscriptionResult, error) {
	if t.err != nil {
		return TranscriptionResult{}, t.err
	}
	return TranscriptionResult{Text: t.text, Confidence: 0.9}, nil
}

func fastRetry() resilience.Options {
	return resilience.Options{
		MaxRetries:     1,
		BaseDelay:      time.Millisecond,
		MaxDelay:       2 * time.Millisecond,
		AttemptTimeout: 200 * time.Millisecond,
	}
}

func testDeps(store *fakeStore, analyzer *fakeAnalyzer) Deps {
	logger := logrus.New()
	return Deps{
		Logger:   logger,
		Registry: resilience.NewRegistry(resilience.DefaultBreakerConfig(), logger),
		Store:    store,
		Analyzer: analyzer,
		Retry:    fastRetry(),
		Source:   "curator",
	}
}

func TestProcessHappyPath(t *testing.T) {
	store := &fakeStore{}
	analyzer := &fakeAnalyzer{analysis: enrich.Analysis{
		Summary:    "Flight booked for Friday",
		Category:   "travel",
		Sentiment:  "neutral",
		Urgency:    "medium",
		Confidence: 90,
	}}
	p := New(testDeps(store, analyzer))

	d, err := p.Process(context.Background(), Request{
		OwnerID: "owner-1",
		Kind:    dump.KindText,
		Content: "Flight to New York on Friday at 9am, confirmation ABC123",
	})
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)

	assert.Equal(t, dump.StatusCompleted, d.Status)
	assert.Equal(t, "Flight booked for Friday", d.AISummary)
	assert.Equal(t, 90, d.AIConfidence)
	assert.Equal(t, 2, d.UrgencyLevel)
	assert.NotEmpty(t, d.Entities.Dates)
	assert.Equal(t, "travel", d.Entities.Categorization.Category)
	// flight+confirmation plus AI agreement crosses the auto-apply threshold
	require.NotNil(t, d.Category)
	assert.Equal(t, "travel", *d.Category)
}

func TestProcessAnalysisFailureDegrades(t *testing.T) {
	store := &fakeStore{}
	analyzer := &fakeAnalyzer{err: errors.New("model permanently down")}
	p := New(testDeps(store, analyzer))

	d, err := p.Process(context.Background(), Request{
		OwnerID: "owner-1",
		Kind:    dump.KindText,
		Content: "pick up dry cleaning",
	})
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)

	assert.Equal(t, dump.StatusCompleted, d.Status)
	assert.Equal(t, enrich.PlaceholderSummary, d.AISummary)
	assert.Equal(t, enrich.FallbackConfidence, d.AIConfidence)
}

func TestProcessPersistenceFailureIsFatal(t *testing.T) {
	store := &fakeStore{err: errors.New("storage unavailable")}
	analyzer := &fakeAnalyzer{}
	p := New(testDeps(store, analyzer))

	d, err := p.Process(context.Background(), Request{
		OwnerID: "owner-1",
		Kind:    dump.KindText,
		Content: "anything",
	})
	require.Error(t, err)
	assert.Nil(t, d)
	assert.Empty(t, store.inserted)
}

func TestProcessEventFiresOnlyAfterPersist(t *testing.T) {
	store := &fakeStore{}
	publisher := &fakePublisher{store: store}
	deps := testDeps(store, &fakeAnalyzer{})
	deps.Publisher = publisher
	p := New(deps)

	d, err := p.Process(context.Background(), Request{
		OwnerID: "owner-1",
		Kind:    dump.KindText,
		Content: "call the plumber tomorrow",
	})
	require.NoError(t, err)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, kafka.EventContentCreated, event.EventType)
	assert.Equal(t, d.ID, event.DumpID)
	assert.Equal(t, "owner-1", event.OwnerID)
	// the row was already in the store when the event was published
	require.Len(t, publisher.persistedAt, 1)
	assert.Equal(t, 1, publisher.persistedAt[0])
}

func TestProcessNoEventOnPersistFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("down")}
	publisher := &fakePublisher{store: store}
	deps := testDeps(store, &fakeAnalyzer{})
	deps.Publisher = publisher
	p := New(deps)

	_, err := p.Process(context.Background(), Request{
		OwnerID: "owner-1",
		Kind:    dump.KindText,
		Content: "anything",
	})
	require.Error(t, err)
	assert.Empty(t, publisher.events)
}

func TestProcessInvokesHooksAfterPersist(t *testing.T) {
	store := &fakeStore{}
	hooks := &fakeHooks{}
	deps := testDeps(store, &fakeAnalyzer{})
	deps.Hooks = hooks
	p := New(deps)

	d, err := p.Process(context.Background(), Request{
		OwnerID: "owner-1",
		Kind:    dump.KindText,
		Content: "package arrives tomorrow, tracking 1Z999AA10123456784",
	})
	require.NoError(t, err)

	require.Len(t, hooks.created, 1)
	assert.Equal(t, d.ID, hooks.created[0].ID)
}

func TestProcessNoHooksOnPersistFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("down")}
	hooks := &fakeHooks{}
	deps := testDeps(store, &fakeAnalyzer{})
	deps.Hooks = hooks
	p := New(deps)

	_, err := p.Process(context.Background(), Request{
		OwnerID: "owner-1",
		Kind:    dump.KindText,
		Content: "anything",
	})
	require.Error(t, err)
	assert.Empty(t, hooks.created)
}

func TestProcessVoiceTranscription(t *testing.T) {
	store := &fakeStore{}
	deps := testDeps(store, &fakeAnalyzer{})
	deps.Transcriber = &fakeTranscriber{text: "remind me to renew the lease"}
	p := New(deps)

	d, err := p.Process(context.Background(), Request{
		OwnerID:  "owner-1",
		Kind:     dump.KindVoice,
		Media:    []byte("audio-bytes"),
		MimeType: "audio/ogg",
	})
	require.NoError(t, err)
	assert.Equal(t, "remind me to renew the lease", d.RawContent)
}

func TestProcessVoiceTranscriptionFallsBackToPlaceholder(t *testing.T) {
	store := &fakeStore{}
	deps := testDeps(store, &fakeAnalyzer{})
	deps.Transcriber = &fakeTranscriber{err: errors.New("unsupported format")}
	p := New(deps)

	d, err := p.Process(context.Background(), Request{
		OwnerID:  "owner-1",
		Kind:     dump.KindVoice,
		Media:    []byte("audio-bytes"),
		MimeType: "audio/ogg",
	})
	require.NoError(t, err)
	assert.Equal(t, dump.StatusCompleted, d.Status)
	assert.Equal(t, enrich.PlaceholderSummary, d.RawContent)
}

func TestProcessEmptyContentCompletes(t *testing.T) {
	store := &fakeStore{}
	p := New(testDeps(store, &fakeAnalyzer{err: errors.New("nothing to do")}))

	d, err := p.Process(context.Background(), Request{
		OwnerID: "owner-1",
		Kind:    dump.KindText,
		Content: "   ",
	})
	require.NoError(t, err)
	assert.Equal(t, dump.StatusCompleted, d.Status)
	assert.Equal(t, 0, d.Entities.Summary.Total)
}

func TestProcessUnsupportedKindTreatedAsText(t *testing.T) {
	store := &fakeStore{}
	p := New(testDeps(store, &fakeAnalyzer{}))

	d, err := p.Process(context.Background(), Request{
		OwnerID: "owner-1",
		Kind:    dump.Kind("hologram"),
		Content: "still captured",
	})
	require.NoError(t, err)
	assert.Equal(t, dump.KindText, d.Kind)
}

func TestProcessDuplicateContent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := &fakeStore{}
	deps := testDeps(store, &fakeAnalyzer{})
	deps.Deduper = redis.NewDeduper(client, "dedupe", time.Hour)
	p := New(deps)

	first, err := p.Process(context.Background(), Request{
		OwnerID: "owner-1",
		Kind:    dump.KindText,
		Content: "same note twice",
	})
	require.NoError(t, err)

	_, err = p.Process(context.Background(), Request{
		OwnerID: "owner-1",
		Kind:    dump.KindText,
		Content: "same note twice",
	})
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingID)
	assert.Len(t, store.inserted, 1)

	// a different owner with identical content is not a duplicate
	_, err = p.Process(context.Background(), Request{
		OwnerID: "owner-2",
		Kind:    dump.KindText,
		Content: "same note twice",
	})
	require.NoError(t, err)
}

func TestProcessReleasesClaimOnPersistFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := &fakeStore{err: errors.New("down")}
	deps := testDeps(store, &fakeAnalyzer{})
	deps.Deduper = redis.NewDeduper(client, "dedupe", time.Hour)
	p := New(deps)

	_, err := p.Process(context.Background(), Request{
		OwnerID: "owner-1",
		Kind:    dump.KindText,
		Content: "retry me later",
	})
	require.Error(t, err)

	// the claim was released, so a retry is not treated as a duplicate
	store.err = nil
	_, err = p.Process(context.Background(), Request{
		OwnerID: "owner-1",
		Kind:    dump.KindText,
		Content: "retry me later",
	})
	require.NoError(t, err)
}
