package handlers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/coursebook/backend/internal/middleware"
	"github.com/coursebook/backend/internal/models"
	"github.com/coursebook/backend/internal/services"
	"github.com/coursebook/backend/internal/storage"
	"github.com/coursebook/backend/pkg/logger"
	"github.com/coursebook/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxImageUploadSize = 10 * 1024 * 1024

type SubjectsHandler struct {
	DB      *gorm.DB
	Storage *storage.MinIOClient
	Audit   *services.AuditService
}

func NewSubjectsHandler(db *gorm.DB, storageClient *storage.MinIOClient, audit *services.AuditService) *SubjectsHandler {
	return &SubjectsHandler{DB: db, Storage: storageClient, Audit: audit}
}

// loadSubject resolves a subject and enforces ownership through its parent
// topic's course.
func (h *SubjectsHandler) loadSubject(subjectID uuid.UUID, user *models.User) (*models.Subject, error) {
	var subject models.Subject
	if err := h.DB.First(&subject, "id = ?", subjectID).Error; err != nil {
		return nil, err
	}

	var topic models.Topic
	if err := h.DB.First(&topic, "id = ?", subject.TopicID).Error; err != nil {
		return nil, err
	}
	var course models.Course
	if err := h.DB.First(&course, "id = ?", topic.CourseID).Error; err != nil {
		return nil, err
	}
	if course.OwnerID != user.ID && !user.IsAdmin() {
		return nil, errAccessDenied
	}

	return &subject, nil
}

func subjectLoadError(c *fiber.Ctx, err error) error {
	switch err {
	case gorm.ErrRecordNotFound:
		return utils.Error(c, fiber.StatusNotFound, "subject not found")
	case errAccessDenied:
		return utils.Error(c, fiber.StatusForbidden, "course access denied")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading subject")
	}
}

func (h *SubjectsHandler) loadOwnedTopic(topicID uuid.UUID, user *models.User) (*models.Topic, error) {
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

type createSubjectRequest struct {
	Title string `json:"title"`
}

func (h *SubjectsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	topicID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid topic id")
	}

	topic, err := h.loadOwnedTopic(topicID, currentUser)
	if err != nil {
		return topicLoadError(c, err)
	}

	var req createSubjectRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return utils.Error(c, fiber.StatusBadRequest, "title is required")
	}

	subject := models.Subject{
		Title:   req.Title,
		Images:  []string{},
		TopicID: topic.ID,
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		order, err := nextSortOrder(tx, &models.Subject{}, "topic_id", topic.ID)
		if err != nil {
			return err
		}
		subject.SortOrder = order
		return tx.Create(&subject).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating subject")
	}

	logger.InfoWithUser(currentUser.ID.String(), "subject_created", map[string]interface{}{
		"subject_id": subject.ID.String(),
		"topic_id":   topic.ID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "subject.create",
		ResourceType: "subject",
		ResourceID:   &subject.ID,
		Details: map[string]interface{}{
			"title":    subject.Title,
			"topic_id": topic.ID.String(),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, subject)
}

type updateSubjectRequest struct {
	Title string `json:"title"`
}

func (h *SubjectsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	subjectID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid subject id")
	}

	subject, err := h.loadSubject(subjectID, currentUser)
	if err != nil {
		return subjectLoadError(c, err)
	}

	var req updateSubjectRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return utils.Error(c, fiber.StatusBadRequest, "title is required")
	}

	if err := h.DB.Model(&models.Subject{}).Where("id = ?", subject.ID).Update("title", req.Title).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating subject")
	}

	var updated models.Subject
	if err := h.DB.First(&updated, "id = ?", subject.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated subject")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

type updateSubjectDetailsRequest struct {
	Notes  *string   `json:"notes"`
	Images *[]string `json:"images"`
}

// UpdateDetails replaces a subject's notes and image list, the content-editing
// operation behind the detail page.
func (h *SubjectsHandler) UpdateDetails(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	subjectID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid subject id")
	}

	subject, err := h.loadSubject(subjectID, currentUser)
	if err != nil {
		return subjectLoadError(c, err)
	}

	var req updateSubjectDetailsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Notes == nil && req.Images == nil {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if req.Notes != nil {
		subject.Notes = *req.Notes
	}
	if req.Images != nil {
		images := *req.Images
		for _, image := range images {
			if strings.TrimSpace(image) == "" {
				return utils.Error(c, fiber.StatusBadRequest, "images cannot contain empty entries")
			}
		}
		subject.Images = images
	}

	if err := h.DB.Model(subject).Select("notes", "images").Updates(subject).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating subject")
	}

	return utils.Success(c, fiber.StatusOK, subject)
}

func (h *SubjectsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	subjectID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid subject id")
	}

	subject, err := h.loadSubject(subjectID, currentUser)
	if err != nil {
		return subjectLoadError(c, err)
	}

	if err := h.DB.Delete(&models.Subject{}, "id = ?", subject.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting subject")
	}

	logger.InfoWithUser(currentUser.ID.String(), "subject_deleted", map[string]interface{}{
		"subject_id": subject.ID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "subject.delete",
		ResourceType: "subject",
		ResourceID:   &subject.ID,
		Details: map[string]interface{}{
			"title": subject.Title,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "subject deleted"})
}

// Reorder reassigns sort_order 1..N over a topic's subjects.
func (h *SubjectsHandler) Reorder(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	topicID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid topic id")
	}

	topic, err := h.loadOwnedTopic(topicID, currentUser)
	if err != nil {
		return topicLoadError(c, err)
	}

	var req reorderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.OrderedIDs) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "orderedIDs is required")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var existing []models.Subject
		if err := tx.Where("topic_id = ?", topic.ID).Find(&existing).Error; err != nil {
			return err
		}
		set := make(map[uuid.UUID]bool, len(existing))
		for _, subject := range existing {
			set[subject.ID] = true
		}
		if err := validateReorderSet(req.OrderedIDs, set); err != nil {
			return err
		}
		for index, id := range req.OrderedIDs {
			if err := tx.Model(&models.Subject{}).
				Where("id = ? AND topic_id = ?", id, topic.ID).
				Update("sort_order", index+1).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if err == errReorderSetMismatch {
			return utils.Error(c, fiber.StatusBadRequest, "orderedIDs must name every subject exactly once")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed reordering subjects")
	}

	var subjects []models.Subject
	if err := h.DB.
		Where("topic_id = ?", topic.ID).
		Order("sort_order ASC").
		Find(&subjects).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing subjects")
	}

	return utils.Success(c, fiber.StatusOK, subjects)
}

// UploadImage stores a binary image in object storage and appends its public
// URL to the subject's image list. Requires configured storage.
func (h *SubjectsHandler) UploadImage(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	if h.Storage == nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "image storage not configured")
	}

	subjectID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid subject id")
	}

	subject, err := h.loadSubject(subjectID, currentUser)
	if err != nil {
		return subjectLoadError(c, err)
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "image file is required")
	}
	if fileHeader.Size > maxImageUploadSize {
		return utils.Error(c, fiber.StatusBadRequest, "image exceeds 10MB limit")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return utils.Error(c, fiber.StatusBadRequest, "file must be an image")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening upload")
	}
	defer file.Close()

	objectName := fmt.Sprintf("subjects/%s/%s%s", subject.ID, uuid.New(), filepath.Ext(fileHeader.Filename))
	if err := h.Storage.Upload(c.Context(), objectName, file, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing image")
	}

	imageURL := h.Storage.PublicURL(objectName)
	subject.Images = append(subject.Images, imageURL)

	if err := h.DB.Model(subject).Select("images").Updates(subject).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating subject")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "subject.image_upload",
		ResourceType: "subject",
		ResourceID:   &subject.ID,
		Details: map[string]interface{}{
			"object_name": objectName,
			"size":        fileHeader.Size,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": imageURL})
}
