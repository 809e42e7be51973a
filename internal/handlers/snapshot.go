package handlers

import (
	"strings"
	"time"

	"github.com/coursebook/backend/internal/middleware"
	"github.com/coursebook/backend/internal/models"
	"github.com/coursebook/backend/internal/services"
	"github.com/coursebook/backend/pkg/logger"
	"github.com/coursebook/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const snapshotVersion = 1

type SnapshotHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewSnapshotHandler(db *gorm.DB, audit *services.AuditService) *SnapshotHandler {
	return &SnapshotHandler{DB: db, Audit: audit}
}

// snapshotUser carries the persisted user record including the password hash,
// so a restored snapshot keeps working credentials. Snapshots are an
// admin-only backup surface, never a user-facing view.
type snapshotUser struct {
	ID           uuid.UUID       `json:"id"`
	Email        string          `json:"email"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"passwordHash"`
	Role         models.UserRole `json:"role"`
	AvatarURL    *string         `json:"avatarURL,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type snapshot struct {
	Version    int             `json:"version"`
	ExportedAt time.Time       `json:"exportedAt"`
	Users      []snapshotUser  `json:"users"`
	Courses    []models.Course `json:"courses"`
}

func (h *SnapshotHandler) Export(c *fiber.Ctx) error {
	var users []models.User
	if err := h.DB.Order("created_at ASC").Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed exporting users")
	}

	courses := make([]models.Course, 0)
	if err := h.DB.
		Preload("Topics", func(db *gorm.DB) *gorm.DB {
			return db.Order("topics.sort_order ASC")
		}).
		Preload("Topics.Subjects", func(db *gorm.DB) *gorm.DB {
			return db.Order("subjects.sort_order ASC")
		}).
		Order("created_at ASC").
		Find(&courses).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed exporting courses")
	}

	export := snapshot{
		Version:    snapshotVersion,
		ExportedAt: time.Now().UTC(),
		Users:      make([]snapshotUser, 0, len(users)),
		Courses:    courses,
	}
	for _, user := range users {
		export.Users = append(export.Users, snapshotUser{
			ID:           user.ID,
			Email:        user.Email,
			Username:     user.Username,
			PasswordHash: user.PasswordHash,
			Role:         user.Role,
			AvatarURL:    user.AvatarURL,
			CreatedAt:    user.CreatedAt,
		})
	}

	return utils.Success(c, fiber.StatusOK, export)
}

type importRequest struct {
	Confirm bool            `json:"confirm"`
	Version int             `json:"version"`
	Users   []snapshotUser  `json:"users"`
	Courses []models.Course `json:"courses"`
}

// Import wholesale-replaces every user and course collection with the
// snapshot's contents. The confirm flag is the destructive-action gate; the
// whole replacement runs in one transaction so a rejected snapshot leaves
// the database untouched.
func (h *SnapshotHandler) Import(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req importRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !req.Confirm {
		return utils.Error(c, fiber.StatusBadRequest, "confirm must be true to replace all data")
	}
	if req.Version != snapshotVersion {
		return utils.Error(c, fiber.StatusBadRequest, "unsupported snapshot version")
	}
	if len(req.Users) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "snapshot must contain at least one user")
	}

	userIDs := make(map[uuid.UUID]bool, len(req.Users))
	emails := make(map[string]bool, len(req.Users))
	hasAdmin := false
	for _, user := range req.Users {
		email := strings.ToLower(strings.TrimSpace(user.Email))
		if user.ID == uuid.Nil || email == "" || user.PasswordHash == "" {
			return utils.Error(c, fiber.StatusBadRequest, "snapshot contains an invalid user record")
		}
		if emails[email] || userIDs[user.ID] {
			return utils.Error(c, fiber.StatusBadRequest, "snapshot contains duplicate users")
		}
		emails[email] = true
		userIDs[user.ID] = true
		if user.Role == models.UserRoleAdmin {
			hasAdmin = true
		}
	}
	if !hasAdmin {
		return utils.Error(c, fiber.StatusBadRequest, "snapshot must contain an admin user")
	}

	for _, course := range req.Courses {
		if !userIDs[course.OwnerID] {
			return utils.Error(c, fiber.StatusBadRequest, "snapshot contains a course with an unknown owner")
		}
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Subject{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.Topic{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.Course{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.User{}).Error; err != nil {
			return err
		}

		for _, user := range req.Users {
			record := models.User{
				BaseModel: models.BaseModel{
					ID:        user.ID,
					CreatedAt: user.CreatedAt,
				},
				Email:        strings.ToLower(strings.TrimSpace(user.Email)),
				Username:     user.Username,
				PasswordHash: user.PasswordHash,
				Role:         user.Role,
				AvatarURL:    user.AvatarURL,
			}
			if err := tx.Omit("Courses").Create(&record).Error; err != nil {
				return err
			}
		}

		for i := range req.Courses {
			if err := tx.Omit("Owner").Create(&req.Courses[i]).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		logger.Error("snapshot_import_failed", err, map[string]interface{}{
			"user_count":   len(req.Users),
			"course_count": len(req.Courses),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed importing snapshot")
	}

	logger.InfoWithUser(currentUser.ID.String(), "snapshot_imported", map[string]interface{}{
		"user_count":   len(req.Users),
		"course_count": len(req.Courses),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "snapshot.import",
		ResourceType: "snapshot",
		Details: map[string]interface{}{
			"user_count":   len(req.Users),
			"course_count": len(req.Courses),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"users":   len(req.Users),
		"courses": len(req.Courses),
	})
}
