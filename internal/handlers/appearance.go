package handlers

import (
	"fmt"

	"github.com/coursebook/backend/internal/middleware"
	"github.com/coursebook/backend/internal/services"
	"github.com/coursebook/backend/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var validate = validator.New()

// Appearance holds a user's display preferences. Enumerated values mirror the
// palettes and patterns the client offers; anything else is rejected.
type Appearance struct {
	Theme                 string  `json:"theme" validate:"oneof=light dark"`
	AccentColor           string  `json:"accentColor" validate:"oneof=sky emerald rose violet amber teal orange indigo"`
	BackgroundPattern     string  `json:"backgroundPattern" validate:"oneof=grid dots plus waves triangles checkerboard none"`
	CustomBackgroundImage *string `json:"customBackgroundImage,omitempty"`
}

func DefaultAppearance() Appearance {
	return Appearance{
		Theme:             "dark",
		AccentColor:       "sky",
		BackgroundPattern: "grid",
	}
}

func appearanceKey(userID uuid.UUID) string {
	return fmt.Sprintf("appearance:%s", userID)
}

type AppearanceHandler struct {
	Settings *services.SettingsService
}

func NewAppearanceHandler(settings *services.SettingsService) *AppearanceHandler {
	return &AppearanceHandler{Settings: settings}
}

func (h *AppearanceHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	appearance := DefaultAppearance()
	if _, err := h.Settings.Get(appearanceKey(currentUser.ID), &appearance); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading appearance settings")
	}

	return utils.Success(c, fiber.StatusOK, appearance)
}

type updateAppearanceRequest struct {
	Theme                 *string `json:"theme"`
	AccentColor           *string `json:"accentColor"`
	BackgroundPattern     *string `json:"backgroundPattern"`
	CustomBackgroundImage *string `json:"customBackgroundImage"`
}

func (h *AppearanceHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateAppearanceRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	appearance := DefaultAppearance()
	if _, err := h.Settings.Get(appearanceKey(currentUser.ID), &appearance); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading appearance settings")
	}

	if req.Theme != nil {
		appearance.Theme = *req.Theme
	}
	if req.AccentColor != nil {
		appearance.AccentColor = *req.AccentColor
	}
	if req.BackgroundPattern != nil {
		appearance.BackgroundPattern = *req.BackgroundPattern
	}
	if req.CustomBackgroundImage != nil {
		if *req.CustomBackgroundImage == "" {
			appearance.CustomBackgroundImage = nil
		} else {
			appearance.CustomBackgroundImage = req.CustomBackgroundImage
		}
	}

	if err := validate.Struct(appearance); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid appearance settings")
	}

	if err := h.Settings.Put(appearanceKey(currentUser.ID), appearance); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed saving appearance settings")
	}

	return utils.Success(c, fiber.StatusOK, appearance)
}
