// Package handlers exposes the intake HTTP API: content submission, dump
// reads with triage buckets, suggestion listings, and breaker introspection.
package handlers

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lifeinbox/intake/internal/dump"
	"github.com/lifeinbox/intake/internal/pipeline"
	"github.com/lifeinbox/intake/internal/triage"
	"github.com/lifeinbox/intake/pkg/cache"
	"github.com/lifeinbox/intake/pkg/logging"
	"github.com/lifeinbox/intake/pkg/middleware"
	"github.com/lifeinbox/intake/pkg/resilience"
)

// Store is the persistence surface the handlers read from.
type Store interface {
	GetByID(ctx context.Context, id string) (*dump.Dump, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*dump.Dump, error)
	UpdateCategory(ctx context.Context, id, category string) error
	ListSuggestionsByDump(ctx context.Context, dumpID string) ([]*dump.Suggestion, error)
}

// Dependencies holds all external dependencies for handlers
type Dependencies struct {
	Logger    logging.Logger
	Pipeline  *pipeline.Pipeline
	Store     Store
	Registry  *resilience.Registry
	DumpCache *cache.Cache[*dump.Dump]
	Clock     func() time.Time
}

var deps Dependencies

// Init initializes the handlers with dependencies
func Init(d Dependencies) {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	deps = d
	deps.Logger.Info("Handlers initialized")
}

// IngestRequest is one inbound submission.
type IngestRequest struct {
	OwnerID     string `json:"owner_id"`
	Kind        string `json:"kind"`
	Content     string `json:"content"`
	MediaBase64 string `json:"media_base64"`
	MimeType    string `json:"mime_type"`
}

// Ingest accepts a submission and runs it through the processing pipeline.
func Ingest(c middleware.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, middleware.H{"error": err.Error()})
		return
	}

	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		ownerID = c.GetHeader("X-Owner-ID")
	}
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, middleware.H{"error": "owner_id is required"})
		return
	}

	kind := dump.Kind(req.Kind)
	if req.Kind == "" {
		kind = dump.KindText
	}

	var media []byte
	if req.MediaBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.MediaBase64)
		if err != nil {
			c.JSON(http.StatusBadRequest, middleware.H{"error": "media_base64 is not valid base64"})
			return
		}
		media = decoded
	}

	if strings.TrimSpace(req.Content) == "" && len(media) == 0 {
		c.JSON(http.StatusBadRequest, middleware.H{"error": "content or media is required"})
		return
	}

	d, err := deps.Pipeline.Process(c.Request.Context(), pipeline.Request{
		OwnerID:  ownerID,
		Kind:     kind,
		Content:  req.Content,
		Media:    media,
		MimeType: req.MimeType,
	})
	if err != nil {
		var dup *pipeline.DuplicateError
		if errors.As(err, &dup) {
			c.JSON(http.StatusConflict, middleware.H{
				"error":            "duplicate content",
				"existing_dump_id": dup.ExistingID,
			})
			return
		}
		deps.Logger.WithError(err).Error("Pipeline run failed")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Failed to process content"})
		return
	}

	c.JSON(http.StatusCreated, dumpResponse(d))
}

// GetDump returns a single dump with its triage bucket.
func GetDump(c middleware.Context) {
	id := c.Param("id")

	d, err := loadDump(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, middleware.H{"error": "Dump not found"})
			return
		}
		deps.Logger.WithError(err).Error("Failed to load dump")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, dumpResponse(d))
}

// ListDumps returns an owner's dumps, newest first, each with its bucket.
func ListDumps(c middleware.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		ownerID = c.GetHeader("X-Owner-ID")
	}
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, middleware.H{"error": "owner_id is required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	dumps, err := deps.Store.ListByOwner(c.Request.Context(), ownerID, limit, offset)
	if err != nil {
		deps.Logger.WithError(err).Error("Failed to list dumps")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Internal server error"})
		return
	}

	out := make([]middleware.H, 0, len(dumps))
	for _, d := range dumps {
		out = append(out, dumpResponse(d))
	}
	c.JSON(http.StatusOK, middleware.H{"dumps": out, "count": len(out)})
}

// Triage groups an owner's dumps by time bucket, in display order.
func Triage(c middleware.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		ownerID = c.GetHeader("X-Owner-ID")
	}
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, middleware.H{"error": "owner_id is required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	dumps, err := deps.Store.ListByOwner(c.Request.Context(), ownerID, limit, 0)
	if err != nil {
		deps.Logger.WithError(err).Error("Failed to list dumps for triage")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Internal server error"})
		return
	}

	now := deps.Clock()
	grouped := make(map[triage.Bucket][]middleware.H)
	for _, d := range dumps {
		bucket := triage.ForDates(d.Entities.DateValues(), now)
		grouped[bucket] = append(grouped[bucket], dumpResponse(d))
	}

	buckets := make([]middleware.H, 0, len(triage.Buckets()))
	for _, bucket := range triage.Buckets() {
		items := grouped[bucket]
		if items == nil {
			items = []middleware.H{}
		}
		buckets = append(buckets, middleware.H{
			"bucket": bucket,
			"items":  items,
			"count":  len(items),
		})
	}
	c.JSON(http.StatusOK, middleware.H{"buckets": buckets})
}

// ListSuggestions returns the hook-produced suggestions for one dump.
// Detection is eventually consistent: an empty list right after creation only
// means the hooks have not run yet.
func ListSuggestions(c middleware.Context) {
	id := c.Param("id")

	suggestions, err := deps.Store.ListSuggestionsByDump(c.Request.Context(), id)
	if err != nil {
		deps.Logger.WithError(err).Error("Failed to list suggestions")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Internal server error"})
		return
	}
	if suggestions == nil {
		suggestions = []*dump.Suggestion{}
	}
	c.JSON(http.StatusOK, middleware.H{"suggestions": suggestions, "count": len(suggestions)})
}

// UpdateCategoryRequest is a human review correction.
type UpdateCategoryRequest struct {
	Category string `json:"category" binding:"required"`
}

// UpdateCategory overrides a dump's category.
func UpdateCategory(c middleware.Context) {
	id := c.Param("id")

	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, middleware.H{"error": err.Error()})
		return
	}

	if err := deps.Store.UpdateCategory(c.Request.Context(), id, req.Category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, middleware.H{"error": "Dump not found"})
			return
		}
		deps.Logger.WithError(err).Error("Failed to update category")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Internal server error"})
		return
	}

	if deps.DumpCache != nil {
		deps.DumpCache.Delete(id)
	}
	c.JSON(http.StatusOK, middleware.H{"message": "Category updated"})
}

// BreakerStates reports every circuit breaker the registry has seen.
func BreakerStates(c middleware.Context) {
	states := deps.Registry.States()
	out := make(map[string]string, len(states))
	for service, state := range states {
		out[service] = state.String()
	}
	c.JSON(http.StatusOK, middleware.H{"breakers": out})
}

// ResetBreaker clears one named breaker back to closed. Operator action.
func ResetBreaker(c middleware.Context) {
	service := c.Param("service")
	deps.Registry.Reset(service)
	c.JSON(http.StatusOK, middleware.H{"message": "Breaker reset", "service": service})
}

func loadDump(ctx context.Context, id string) (*dump.Dump, error) {
	if deps.DumpCache == nil {
		return deps.Store.GetByID(ctx, id)
	}
	d, ok, err := deps.DumpCache.Get(ctx, id, func(ctx context.Context, key string) (*dump.Dump, bool, error) {
		loaded, loadErr := deps.Store.GetByID(ctx, key)
		if loadErr != nil {
			return nil, false, loadErr
		}
		return loaded, true, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sql.ErrNoRows
	}
	return d, nil
}

func dumpResponse(d *dump.Dump) middleware.H {
	return middleware.H{
		"id":            d.ID,
		"owner_id":      d.OwnerID,
		"raw_content":   d.RawContent,
		"kind":          d.Kind,
		"status":        d.Status,
		"ai_summary":    d.AISummary,
		"ai_confidence": d.AIConfidence,
		"category":      d.Category,
		"entities":      d.Entities,
		"urgency_level": d.UrgencyLevel,
		"time_bucket":   triage.ForDates(d.Entities.DateValues(), deps.Clock()),
		"created_at":    d.CreatedAt,
		"updated_at":    d.UpdatedAt,
	}
}
