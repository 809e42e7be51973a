package handlers

import (
	"errors"
	"strings"

	"github.com/coursebook/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	errReorderSetMismatch = errors.New("reorder set mismatch")

	// errAccessDenied marks an entity that exists but belongs to another
	// user's course tree; load helpers return it and callers translate it
	// to a 403.
	errAccessDenied = errors.New("access denied")
)

// validateReorderSet checks that orderedIDs is exactly the sibling set:
// every existing id named once, nothing extra, no duplicates.
func validateReorderSet(orderedIDs []uuid.UUID, existing map[uuid.UUID]bool) error {
	if len(orderedIDs) != len(existing) {
		return errReorderSetMismatch
	}
	seen := make(map[uuid.UUID]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !existing[id] || seen[id] {
			return errReorderSetMismatch
		}
		seen[id] = true
	}
	return nil
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func getRequestID(c *fiber.Ctx) string {
	if value, ok := c.Locals("requestID").(string); ok {
		return value
	}
	return ""
}

// deleteCourseTree removes a course and its full topic/subject closure.
// Must run inside a transaction so a partial cascade never persists.
func deleteCourseTree(tx *gorm.DB, courseID uuid.UUID) error {
	topicIDs := tx.Model(&models.Topic{}).Select("id").Where("course_id = ?", courseID)
	if err := tx.Where("topic_id IN (?)", topicIDs).Delete(&models.Subject{}).Error; err != nil {
		return err
	}
	if err := tx.Where("course_id = ?", courseID).Delete(&models.Topic{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Course{}, "id = ?", courseID).Error
}

// deleteCoursesByOwner bulk-removes every course an owner has, with nested
// topics and subjects. Invoked on account deletion and snapshot import.
func deleteCoursesByOwner(tx *gorm.DB, ownerID uuid.UUID) error {
	courseIDs := tx.Model(&models.Course{}).Select("id").Where("owner_id = ?", ownerID)
	topicIDs := tx.Model(&models.Topic{}).Select("id").Where("course_id IN (?)", courseIDs)
	if err := tx.Where("topic_id IN (?)", topicIDs).Delete(&models.Subject{}).Error; err != nil {
		return err
	}
	if err := tx.Where("course_id IN (?)", courseIDs).Delete(&models.Topic{}).Error; err != nil {
		return err
	}
	return tx.Where("owner_id = ?", ownerID).Delete(&models.Course{}).Error
}

// nextSortOrder returns max(sort_order)+1 for a sibling group. New siblings
// are always appended; reorder endpoints reassign the contiguous 1..N range.
func nextSortOrder(db *gorm.DB, model interface{}, scopeColumn string, scopeID uuid.UUID) (int, error) {
	var max int
	err := db.Model(model).
		Where(scopeColumn+" = ?", scopeID).
		Select("COALESCE(MAX(sort_order), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
