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

type CoursesHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewCoursesHandler(db *gorm.DB, audit *services.AuditService) *CoursesHandler {
	return &CoursesHandler{DB: db, Audit: audit}
}

// loadCourse fetches a course the user may act on: the owner, or an admin
// acting on any user's course. Errors map to responses via courseLoadError.
func (h *CoursesHandler) loadCourse(courseID uuid.UUID, user *models.User) (*models.Course, error) {
	var course models.Course
	if err := h.DB.First(&course, "id = ?", courseID).Error; err != nil {
		return nil, err
	}
	if course.OwnerID != user.ID && !user.IsAdmin() {
		return nil, errAccessDenied
	}
	return &course, nil
}

func courseLoadError(c *fiber.Ctx, err error) error {
	switch err {
	case gorm.ErrRecordNotFound:
		return utils.Error(c, fiber.StatusNotFound, "course not found")
	case errAccessDenied:
		return utils.Error(c, fiber.StatusForbidden, "course access denied")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading course")
	}
}

type createCourseRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *CoursesHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	course := models.Course{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     currentUser.ID,
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		order, err := nextSortOrder(tx, &models.Course{}, "owner_id", currentUser.ID)
		if err != nil {
			return err
		}
		course.SortOrder = order
		return tx.Create(&course).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating course")
	}

	logger.InfoWithUser(currentUser.ID.String(), "course_created", map[string]interface{}{
		"course_id":   course.ID.String(),
		"course_name": course.Name,
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "course.create",
		ResourceType: "course",
		ResourceID:   &course.ID,
		Details: map[string]interface{}{
			"name": course.Name,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, course)
}

func (h *CoursesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var courses []models.Course
	if err := h.DB.
		Where("owner_id = ?", currentUser.ID).
		Order("sort_order ASC").
		Find(&courses).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing courses")
	}

	return utils.Success(c, fiber.StatusOK, courses)
}

func (h *CoursesHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	courseID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	if _, err := h.loadCourse(courseID, currentUser); err != nil {
		return courseLoadError(c, err)
	}

	var course models.Course
	if err := h.DB.
		Preload("Topics", func(db *gorm.DB) *gorm.DB {
			return db.Order("topics.sort_order ASC")
		}).
		Preload("Topics.Subjects", func(db *gorm.DB) *gorm.DB {
			return db.Order("subjects.sort_order ASC")
		}).
		First(&course, "id = ?", courseID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading course")
	}

	return utils.Success(c, fiber.StatusOK, course)
}

type updateCourseRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *CoursesHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	courseID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	course, err := h.loadCourse(courseID, currentUser)
	if err != nil {
		return courseLoadError(c, err)
	}

	var req updateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		value := strings.TrimSpace(*req.Name)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		updates["name"] = value
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.Course{}).Where("id = ?", course.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating course")
	}

	var updated models.Course
	if err := h.DB.First(&updated, "id = ?", course.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated course")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *CoursesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	courseID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	course, err := h.loadCourse(courseID, currentUser)
	if err != nil {
		return courseLoadError(c, err)
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		return deleteCourseTree(tx, course.ID)
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting course")
	}

	logger.InfoWithUser(currentUser.ID.String(), "course_deleted", map[string]interface{}{
		"course_id": course.ID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "course.delete",
		ResourceType: "course",
		ResourceID:   &course.ID,
		Details: map[string]interface{}{
			"name": course.Name,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "course deleted"})
}

type reorderRequest struct {
	OrderedIDs []uuid.UUID `json:"orderedIDs"`
}

// Reorder reassigns sort_order 1..N over the session user's courses in the
// given order. The request must name every course the user owns exactly once;
// other users' courses are never touched.
func (h *CoursesHandler) Reorder(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req reorderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.OrderedIDs) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "orderedIDs is required")
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		var existing []models.Course
		if err := tx.Where("owner_id = ?", currentUser.ID).Find(&existing).Error; err != nil {
			return err
		}
		if err := validateReorderSet(req.OrderedIDs, courseIDSet(existing)); err != nil {
			return err
		}
		for index, id := range req.OrderedIDs {
			if err := tx.Model(&models.Course{}).
				Where("id = ? AND owner_id = ?", id, currentUser.ID).
				Update("sort_order", index+1).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if err == errReorderSetMismatch {
			return utils.Error(c, fiber.StatusBadRequest, "orderedIDs must name every course exactly once")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed reordering courses")
	}

	var courses []models.Course
	if err := h.DB.
		Where("owner_id = ?", currentUser.ID).
		Order("sort_order ASC").
		Find(&courses).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing courses")
	}

	return utils.Success(c, fiber.StatusOK, courses)
}

func courseIDSet(courses []models.Course) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(courses))
	for _, course := range courses {
		set[course.ID] = true
	}
	return set
}
