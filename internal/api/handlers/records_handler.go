package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/moodlens/backend/internal/insights"
	"github.com/moodlens/backend/internal/metrics"
	"github.com/moodlens/backend/internal/stats"
	"github.com/moodlens/backend/internal/storage/models"
	"github.com/moodlens/backend/internal/storage/sqlite"
	"github.com/moodlens/backend/pkg/logger"
)

type RecordsHandler struct {
	store  *sqlite.Client
	engine *insights.Engine
}

func NewRecordsHandler(store *sqlite.Client, engine *insights.Engine) *RecordsHandler {
	return &RecordsHandler{
		store:  store,
		engine: engine,
	}
}

func (h *RecordsHandler) CreateRecord(c *fiber.Ctx) error {
	var req struct {
		SubjectID  string   `json:"subject_id"`
		Emotion    string   `json:"emotion"`
		Confidence *float64 `json:"confidence"`
		Source     string   `json:"source"`
		Notes      string   `json:"notes"`
		ObservedAt string   `json:"observed_at"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.SubjectID == "" || req.Emotion == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "subject_id and emotion are required",
		})
	}

	source := req.Source
	if source == "" {
		source = models.SourceAutomatic
	}
	if source != models.SourceAutomatic && source != models.SourceManual {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "source must be automatic-detection or manual-entry",
		})
	}

	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 100) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "confidence must be between 0 and 100",
		})
	}

	observedAt := time.Now().UTC()
	if req.ObservedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ObservedAt)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "observed_at must be RFC3339",
			})
		}
		observedAt = parsed.UTC()
	}

	record := &models.MoodRecord{
		SubjectID:  req.SubjectID,
		Emotion:    stats.Normalize(req.Emotion),
		Confidence: req.Confidence,
		Source:     source,
		Notes:      req.Notes,
		ObservedAt: observedAt,
	}

	if err := h.store.SaveRecord(c.Context(), record); err != nil {
		logger.Error("Failed to save record", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save record",
		})
	}

	metrics.RecordsIngested.WithLabelValues(source).Inc()
	if record.Confidence != nil {
		metrics.DetectionConfidence.Observe(*record.Confidence)
	}

	// The index only embeds when augmentation is on; otherwise the next
	// rebuild picks the record up.
	if h.engine.Augmented() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := h.engine.RebuildIndex(ctx); err != nil {
				logger.Warn("Background index rebuild failed", zap.Error(err))
			}
		}()
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":          record.ID,
		"subject_id":  record.SubjectID,
		"emotion":     record.Emotion,
		"source":      record.Source,
		"observed_at": record.ObservedAt,
	})
}

func (h *RecordsHandler) ListRecords(c *fiber.Ctx) error {
	subjectID := c.Query("subject_id")
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	records, err := h.store.ListRecords(c.Context(), subjectID, limit)
	if err != nil {
		logger.Error("Failed to list records", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list records",
		})
	}

	out := make([]fiber.Map, len(records))
	for i, r := range records {
		item := fiber.Map{
			"id":           r.ID,
			"subject_id":   r.SubjectID,
			"subject_name": r.SubjectName,
			"department":   r.Department,
			"emotion":      r.Emotion,
			"source":       r.Source,
			"notes":        r.Notes,
			"observed_at":  r.ObservedAt,
		}
		if r.Confidence != nil {
			item["confidence"] = *r.Confidence
		}
		out[i] = item
	}

	return c.JSON(fiber.Map{
		"records": out,
		"count":   len(out),
	})
}

func (h *RecordsHandler) CreateSubject(c *fiber.Ctx) error {
	var req struct {
		SubjectID  string `json:"subject_id"`
		FullName   string `json:"full_name"`
		Email      string `json:"email"`
		Department string `json:"department"`
		Role       string `json:"role"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.SubjectID == "" || req.FullName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "subject_id and full_name are required",
		})
	}

	subject := &models.Subject{
		SubjectID:  req.SubjectID,
		FullName:   req.FullName,
		Email:      req.Email,
		Department: req.Department,
		Role:       req.Role,
	}

	if err := h.store.UpsertSubject(c.Context(), subject); err != nil {
		logger.Error("Failed to upsert subject", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save subject",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"subject_id": subject.SubjectID,
	})
}

func (h *RecordsHandler) ListSubjects(c *fiber.Ctx) error {
	subjects, err := h.store.ListSubjects(c.Context())
	if err != nil {
		logger.Error("Failed to list subjects", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list subjects",
		})
	}

	out := make([]fiber.Map, len(subjects))
	for i, s := range subjects {
		out[i] = fiber.Map{
			"subject_id": s.SubjectID,
			"full_name":  s.FullName,
			"email":      s.Email,
			"department": s.Department,
			"role":       s.Role,
			"created_at": s.CreatedAt,
		}
	}

	return c.JSON(fiber.Map{
		"subjects": out,
		"count":    len(out),
	})
}
