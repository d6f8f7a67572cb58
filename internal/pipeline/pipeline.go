// Package pipeline turns raw inbound content into a fully annotated,
// persisted dump, tolerating partial enrichment failure at every step.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lifeinbox/intake/internal/dump"
	"github.com/lifeinbox/intake/internal/enrich"
	"github.com/lifeinbox/intake/pkg/kafka"
	"github.com/lifeinbox/intake/pkg/logging"
	"github.com/lifeinbox/intake/pkg/redis"
	"github.com/lifeinbox/intake/pkg/resilience"
)

// Logical service names for the circuit-breaker registry. Each modality gets
// its own breaker so one failing upstream does not degrade the others.
const (
	ServiceTextAnalysis   = "text-analysis"
	ServiceTranscription  = "voice-transcription"
	ServiceImageVision    = "image-vision"
	ServiceDocumentVision = "document-vision"
	ServiceAnalysis       = "ai-analysis"
	ServiceCategorization = "categorization"
	ServiceEmbedding      = "embedding"
)

// TranscriptionResult is plain text recovered from an audio payload.
type TranscriptionResult struct {
	Text       string
	Confidence float64
}

// OCRResult is plain text recovered from an image or document payload.
type OCRResult struct {
	Text       string
	Confidence float64
	Blocks     []string
}

// Transcriber converts audio media to text.
type Transcriber interface {
	Transcribe(ctx context.Context, media []byte, mimeType string) (TranscriptionResult, error)
}

// TextExtractor performs OCR on image and document media.
type TextExtractor interface {
	ExtractText(ctx context.Context, media []byte) (OCRResult, error)
}

// SemanticAnalyzer produces the AI-derived view of the content.
type SemanticAnalyzer interface {
	Analyze(ctx context.Context, content string) (enrich.Analysis, error)
}

// Embedder generates search vectors for persisted content.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Store persists the annotated dump. Persistence is the only fatal step.
type Store interface {
	Insert(ctx context.Context, d *dump.Dump) error
}

// Publisher emits the post-persist content event.
type Publisher interface {
	PublishContentEvent(event *kafka.ContentEvent) error
}

// Hooks receives the persisted dump for asynchronous detection. Used when no
// event consumer is running, so suggestions still appear without Kafka.
type Hooks interface {
	ContentCreated(d *dump.Dump)
}

// Metrics are optional; a zero value disables instrumentation.
type Metrics struct {
	Processed    *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	Fallbacks    *prometheus.CounterVec
}

// Deps wires the pipeline's collaborators. Transcriber, TextExtractor,
// Embedder, Publisher, Hooks, and Deduper may be nil; the pipeline degrades
// to fallback behavior for anything missing.
type Deps struct {
	Logger      logging.Logger
	Registry    *resilience.Registry
	Store       Store
	Transcriber Transcriber
	OCR         TextExtractor
	Analyzer    SemanticAnalyzer
	Embedder    Embedder
	Publisher   Publisher
	Hooks       Hooks
	Deduper     *redis.Deduper
	Metrics     Metrics
	Retry       resilience.Options
	Source      string
}

// Pipeline orchestrates the enrichment steps for one dump at a time.
// Concurrent Process calls are independent; shared state lives in the
// injected breaker registry.
type Pipeline struct {
	deps Deps
}

func New(deps Deps) *Pipeline {
	if deps.Source == "" {
		deps.Source = "curator"
	}
	return &Pipeline{deps: deps}
}

// Request is one inbound submission.
type Request struct {
	OwnerID  string
	Kind     dump.Kind
	Content  string
	Media    []byte
	MimeType string
}

// DuplicateError reports that identical content from the same owner is
// already being processed or was recently ingested.
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate content, existing dump %s", e.ExistingID)
}

// Process runs the full enrichment sequence and persists the result.
// Enrichment failures degrade per step; only persistence failure is returned
// as an error. The caller always gets either a completed dump or a fatal
// persistence error, never a partial record.
func (p *Pipeline) Process(ctx context.Context, req Request) (*dump.Dump, error) {
	log := logging.WithComponent(p.deps.Logger, "pipeline")

	kind := req.Kind
	if !kind.Valid() {
		// Unsupported kinds are degradable, not fatal: capture as text.
		log.WithField("kind", string(req.Kind)).Warn("Unsupported content kind, treating as text")
		kind = dump.KindText
	}

	now := time.Now().UTC()
	d := &dump.Dump{
		ID:        uuid.New().String(),
		OwnerID:   req.OwnerID,
		Kind:      kind,
		Status:    dump.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	log = log.WithField("dump_id", d.ID)

	d.Status = dump.StatusProcessing

	// Step 1: media normalization.
	text := p.timed("normalize", func() string { return p.normalize(ctx, req, kind) })
	d.RawContent = text

	// Dedupe on the normalized content so a retransmitted voice note and its
	// transcript collapse to one claim.
	if p.deps.Deduper != nil && strings.TrimSpace(text) != "" {
		fingerprint := redis.Fingerprint(req.OwnerID, text)
		claimed, err := p.deps.Deduper.Claim(ctx, fingerprint, d.ID)
		if err != nil {
			log.WithError(err).Warn("Dedupe check unavailable, continuing")
		} else if !claimed {
			existing, _, _ := p.deps.Deduper.Holder(ctx, fingerprint)
			return nil, &DuplicateError{ExistingID: existing}
		}
	}

	// Step 2: entity extraction.
	entitiesResult := resilience.Execute(ctx, p.deps.Registry, enrichmentService(kind), p.deps.Retry,
		func(context.Context) (dump.Entities, error) {
			return enrich.ExtractEntities(text, now), nil
		},
		enrich.EmptyEntities,
	)
	p.countFallback(enrichmentService(kind), entitiesResult.FallbackUsed)
	entities := entitiesResult.Value

	// Step 3: AI semantic analysis.
	analysisResult := resilience.Execute(ctx, p.deps.Registry, ServiceAnalysis, p.deps.Retry,
		func(ctx context.Context) (enrich.Analysis, error) {
			if p.deps.Analyzer == nil {
				return enrich.Analysis{}, fmt.Errorf("no analyzer configured")
			}
			return p.deps.Analyzer.Analyze(ctx, text)
		},
		enrich.NeutralAnalysis,
	)
	p.countFallback(ServiceAnalysis, analysisResult.FallbackUsed)
	analysis := analysisResult.Value

	// Step 4: categorization, after analysis so it can use the AI hint.
	categorizationResult := resilience.Execute(ctx, p.deps.Registry, ServiceCategorization, p.deps.Retry,
		func(context.Context) (dump.Categorization, error) {
			return enrich.Categorize(text, analysis.Category), nil
		},
		enrich.DefaultCategorization,
	)
	p.countFallback(ServiceCategorization, categorizationResult.FallbackUsed)
	categorization := categorizationResult.Value

	entities.ActionItems = analysis.ActionItems
	entities.Sentiment = analysis.Sentiment
	entities.Urgency = analysis.Urgency
	entities.Categorization = categorization

	d.Entities = entities
	d.AISummary = analysis.Summary
	d.AIConfidence = analysis.Confidence
	d.UrgencyLevel = urgencyLevel(analysis.Urgency)
	if categorization.AutoApplied {
		category := categorization.Category
		d.Category = &category
	}

	if !d.Status.CanTransition(dump.StatusCompleted) {
		return nil, fmt.Errorf("illegal status transition from %s", d.Status)
	}
	d.Status = dump.StatusCompleted
	d.UpdatedAt = time.Now().UTC()

	// Step 5: persistence, the only fatal step.
	if err := p.deps.Store.Insert(ctx, d); err != nil {
		p.countProcessed(kind, dump.StatusFailed)
		p.releaseClaim(ctx, req.OwnerID, text)
		return nil, fmt.Errorf("persist dump: %w", err)
	}

	// The created event fires only after persistence commits.
	p.publishCreated(d, log)
	if p.deps.Hooks != nil {
		p.deps.Hooks.ContentCreated(d)
	}

	// Step 6: best-effort embedding.
	p.embed(ctx, d, log)

	p.countProcessed(kind, dump.StatusCompleted)
	return d, nil
}

func (p *Pipeline) normalize(ctx context.Context, req Request, kind dump.Kind) string {
	placeholder := func(context.Context) (string, error) {
		return enrich.PlaceholderSummary, nil
	}

	switch kind {
	case dump.KindVoice:
		result := resilience.Execute(ctx, p.deps.Registry, ServiceTranscription, p.deps.Retry,
			func(ctx context.Context) (string, error) {
				if p.deps.Transcriber == nil {
					return "", fmt.Errorf("no transcriber configured")
				}
				tr, err := p.deps.Transcriber.Transcribe(ctx, req.Media, req.MimeType)
				if err != nil {
					return "", err
				}
				return tr.Text, nil
			},
			placeholder,
		)
		p.countFallback(ServiceTranscription, result.FallbackUsed)
		return result.Value

	case dump.KindImage, dump.KindDocument:
		service := ServiceImageVision
		if kind == dump.KindDocument {
			service = ServiceDocumentVision
		}
		result := resilience.Execute(ctx, p.deps.Registry, service, p.deps.Retry,
			func(ctx context.Context) (string, error) {
				if p.deps.OCR == nil {
					return "", fmt.Errorf("no text extractor configured")
				}
				ocr, err := p.deps.OCR.ExtractText(ctx, req.Media)
				if err != nil {
					return "", err
				}
				return ocr.Text, nil
			},
			placeholder,
		)
		p.countFallback(service, result.FallbackUsed)
		return result.Value

	default:
		return strings.TrimSpace(req.Content)
	}
}

func (p *Pipeline) publishCreated(d *dump.Dump, log logging.Entry) {
	if p.deps.Publisher == nil {
		return
	}
	event := kafka.NewContentEvent(kafka.EventContentCreated, p.deps.Source, d.OwnerID, d.ID)
	event.Kind = string(d.Kind)
	event.Category = d.Category
	event.Data = map[string]interface{}{
		"summary":    d.AISummary,
		"confidence": d.AIConfidence,
		"urgency":    d.UrgencyLevel,
	}
	if err := p.deps.Publisher.PublishContentEvent(event); err != nil {
		log.WithError(err).Error("Failed to publish content.created event")
	}
}

func (p *Pipeline) embed(ctx context.Context, d *dump.Dump, log logging.Entry) {
	if p.deps.Embedder == nil || strings.TrimSpace(d.RawContent) == "" {
		return
	}
	result := resilience.Execute(ctx, p.deps.Registry, ServiceEmbedding, p.deps.Retry,
		func(ctx context.Context) ([][]float32, error) {
			return p.deps.Embedder.Embed(ctx, []string{d.RawContent})
		},
		nil,
	)
	p.countFallback(ServiceEmbedding, result.FallbackUsed)
	if result.Err != nil {
		log.WithError(result.Err).Warn("Embedding generation failed, record kept without vector")
		return
	}
	log.WithField("vectors", len(result.Value)).Debug("Embedding generated")
}

func (p *Pipeline) releaseClaim(ctx context.Context, ownerID, text string) {
	if p.deps.Deduper == nil || strings.TrimSpace(text) == "" {
		return
	}
	// A failed persist should not lock the content out for the TTL.
	_ = p.deps.Deduper.Release(ctx, redis.Fingerprint(ownerID, text))
}

func (p *Pipeline) countFallback(service string, used bool) {
	if !used || p.deps.Metrics.Fallbacks == nil {
		return
	}
	p.deps.Metrics.Fallbacks.WithLabelValues(service).Inc()
}

func (p *Pipeline) countProcessed(kind dump.Kind, status dump.Status) {
	if p.deps.Metrics.Processed == nil {
		return
	}
	p.deps.Metrics.Processed.WithLabelValues(string(kind), string(status)).Inc()
}

func (p *Pipeline) timed(step string, fn func() string) string {
	if p.deps.Metrics.StepDuration == nil {
		return fn()
	}
	start := time.Now()
	out := fn()
	p.deps.Metrics.StepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
	return out
}

func enrichmentService(kind dump.Kind) string {
	switch kind {
	case dump.KindVoice:
		return ServiceTranscription
	case dump.KindImage:
		return ServiceImageVision
	case dump.KindDocument:
		return ServiceDocumentVision
	default:
		return ServiceTextAnalysis
	}
}

func urgencyLevel(label string) int {
	switch strings.ToLower(label) {
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}
