package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/moodlens/backend/internal/insights"
	"github.com/moodlens/backend/internal/stats"
	"github.com/moodlens/backend/pkg/logger"
)

type InsightsHandler struct {
	engine *insights.Engine
}

func NewInsightsHandler(engine *insights.Engine) *InsightsHandler {
	return &InsightsHandler{
		engine: engine,
	}
}

func (h *InsightsHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Question  string `json:"question"`
		SubjectID string `json:"subject_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}

	response := h.engine.Query(c.Context(), req.Question, req.SubjectID)

	return c.JSON(response)
}

func (h *InsightsHandler) GetStatistics(c *fiber.Ctx) error {
	subjectID := c.Query("subject_id")

	st := h.engine.Statistics(c.Context(), subjectID)

	resp := fiber.Map{
		"no_data":       st.NoData,
		"total_records": st.TotalRecords,
	}

	if !st.NoData {
		resp["counts"] = st.Counts
		resp["shares"] = st.Shares
		resp["most_common"] = st.MostCommon
		resp["least_common"] = st.LeastCommon
		resp["latest_emotion"] = st.LatestEmotion
		resp["latest_at"] = st.LatestAt
		resp["negative_share"] = st.NegativeShare()
		resp["departments"] = groupMaps(st.Departments)
		resp["subjects"] = groupMaps(st.Subjects)
		resp["trend"] = fiber.Map{
			"window_hours": st.Trend.WindowLength.Hours(),
			"recent":       windowMap(st.Trend.Recent),
			"previous":     windowMap(st.Trend.Previous),
		}
		if st.MeanConfidence != nil {
			resp["mean_confidence"] = *st.MeanConfidence
			resp["confidence_by_emotion"] = st.ConfidenceByEmotion
		}
	}

	return c.JSON(resp)
}

func (h *InsightsHandler) GetSuggestions(c *fiber.Ctx) error {
	max, _ := strconv.Atoi(c.Query("max", "0"))

	suggestions := h.engine.Suggestions(c.Context(), max)

	return c.JSON(fiber.Map{
		"suggestions": suggestions,
	})
}

func (h *InsightsHandler) GetReport(c *fiber.Ctx) error {
	subjectID := c.Query("subject_id")

	report := h.engine.Report(c.Context(), subjectID)

	return c.JSON(fiber.Map{
		"report": report,
	})
}

func groupMaps(groups map[string]stats.GroupSummary) fiber.Map {
	out := fiber.Map{}
	for key, g := range groups {
		out[key] = fiber.Map{
			"name":           g.Name,
			"records":        g.Records,
			"counts":         g.Counts,
			"top_emotion":    g.TopEmotion,
			"negative_share": g.NegativeShare,
		}
	}
	return out
}

func windowMap(w stats.Window) fiber.Map {
	return fiber.Map{
		"start":          w.Start,
		"end":            w.End,
		"total":          w.Total,
		"counts":         w.Counts,
		"negative_share": w.NegativeShare(),
	}
}
