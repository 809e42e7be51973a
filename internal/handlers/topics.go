package handlers

import (
	"strings"

	"github.com/coursebook/backend/internal/middleware"
	"github.com/coursebook/backend/internal/models"
	"github.com/coursebook/backend/internal/services"
	"github.com/coursebook/backend/pkg/logger"
	"github.com/coursebook/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TopicsHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewTopicsHandler(db *gorm.DB, audit *services.AuditService) *TopicsHandler {
	return &TopicsHandler{DB: db, Audit: audit}
}

// loadTopic resolves a topic and enforces ownership through its parent
// course. The ownership error shapes match the course handlers.
func (h *TopicsHandler) loadTopic(topicID uuid.UUID, user *models.User) (*models.Topic, error) {
	var topic models.Topic
	if err := h.DB.First(&topic, "id = ?", topicID).Error; err != nil {
		return nil, err
	}

	var course models.Course
	if err := h.DB.First(&course, "id = ?", topic.CourseID).Error; err != nil {
		return nil, err
	}
	if course.OwnerID != user.ID && !user.IsAdmin() {
		return nil, errAccessDenied
	}

	return &topic, nil
}

func topicLoadError(c *fiber.Ctx, err error) error {
	switch err {
	case gorm.ErrRecordNotFound:
		return utils.Error(c, fiber.StatusNotFound, "topic not found")
	case errAccessDenied:
		return utils.Error(c, fiber.StatusForbidden, "course access denied")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading topic")
	}
}

type createTopicRequest struct {
	Title string `json:"title"`
}

func (h *TopicsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	courseID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	var course models.Course
	if err := h.DB.First(&course, "id = ?", courseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "course not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading course")
	}
	if course.OwnerID != currentUser.ID && !currentUser.IsAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "course access denied")
	}

	var req createTopicRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return utils.Error(c, fiber.StatusBadRequest, "title is required")
	}

	topic := models.Topic{
		Title:    req.Title,
		CourseID: course.ID,
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		order, err := nextSortOrder(tx, &models.Topic{}, "course_id", course.ID)
		if err != nil {
			return err
		}
		topic.SortOrder = order
		return tx.Create(&topic).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating topic")
	}

	logger.InfoWithUser(currentUser.ID.String(), "topic_created", map[string]interface{}{
		"topic_id":  topic.ID.String(),
		"course_id": course.ID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "topic.create",
		ResourceType: "topic",
		ResourceID:   &topic.ID,
		Details: map[string]interface{}{
			"title":     topic.Title,
			"course_id": course.ID.String(),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, topic)
}

type updateTopicRequest struct {
	Title string `json:"title"`
}

func (h *TopicsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	topicID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid topic id")
	}

	topic, err := h.loadTopic(topicID, currentUser)
	if err != nil {
		return topicLoadError(c, err)
	}

	var req updateTopicRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return utils.Error(c, fiber.StatusBadRequest, "title is required")
	}

	if err := h.DB.Model(&models.Topic{}).Where("id = ?", topic.ID).Update("title", req.Title).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating topic")
	}

	var updated models.Topic
	if err := h.DB.First(&updated, "id = ?", topic.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated topic")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *TopicsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	topicID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid topic id")
	}

	topic, err := h.loadTopic(topicID, currentUser)
	if err != nil {
		return topicLoadError(c, err)
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("topic_id = ?", topic.ID).Delete(&models.Subject{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Topic{}, "id = ?", topic.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting topic")
	}

	logger.InfoWithUser(currentUser.ID.String(), "topic_deleted", map[string]interface{}{
		"topic_id": topic.ID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "topic.delete",
		ResourceType: "topic",
		ResourceID:   &topic.ID,
		Details: map[string]interface{}{
			"title": topic.Title,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "topic deleted"})
}

// Reorder reassigns sort_order 1..N over a course's topics.
func (h *TopicsHandler) Reorder(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	courseID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	var course models.Course
	if err := h.DB.First(&course, "id = ?", courseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "course not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading course")
	}
	if course.OwnerID != currentUser.ID && !currentUser.IsAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "course access denied")
	}

	var req reorderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.OrderedIDs) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "orderedIDs is required")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var existing []models.Topic
		if err := tx.Where("course_id = ?", course.ID).Find(&existing).Error; err != nil {
			return err
		}
		set := make(map[uuid.UUID]bool, len(existing))
		for _, topic := range existing {
			set[topic.ID] = true
		}
		if err := validateReorderSet(req.OrderedIDs, set); err != nil {
			return err
		}
		for index, id := range req.OrderedIDs {
			if err := tx.Model(&models.Topic{}).
				Where("id = ? AND course_id = ?", id, course.ID).
				Update("sort_order", index+1).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if err == errReorderSetMismatch {
			return utils.Error(c, fiber.StatusBadRequest, "orderedIDs must name every topic exactly once")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed reordering topics")
	}

	var topics []models.Topic
	if err := h.DB.
		Where("course_id = ?", course.ID).
		Order("sort_order ASC").
		Find(&topics).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing topics")
	}

	return utils.Success(c, fiber.StatusOK, topics)
}
