package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/notification-hub/internal/apperr"
	"github.com/fathima-sithara/notification-hub/internal/model"
	"github.com/fathima-sithara/notification-hub/internal/service"
)

type NotificationHandler struct {
	svc *service.NotificationService
}

func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	return c.JSON(h.svc.List(c.UserContext()))
}

func (h *NotificationHandler) Get(c *fiber.Ctx) error {
	n, err := h.svc.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(n)
}

func (h *NotificationHandler) ListForUser(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return fmt.Errorf("user ID is required: %w", apperr.ErrInvalidArgument)
	}
	list, err := h.svc.ListForUser(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *NotificationHandler) Send(c *fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return fmt.Errorf("notification data is required: %w", apperr.ErrInvalidArgument)
	}
	var draft *model.Draft
	if err := c.BodyParser(&draft); err != nil {
		return fmt.Errorf("invalid notification body: %v: %w", err, apperr.ErrInvalidArgument)
	}
	if draft == nil {
		return fmt.Errorf("notification data is required: %w", apperr.ErrInvalidArgument)
	}

	n, err := h.svc.Send(c.UserContext(), draft.Notification())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(n)
}

func (h *NotificationHandler) SendTest(c *fiber.Ctx) error {
	n, err := h.svc.SendTest(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(n)
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id := c.Params("id")
	ok, err := h.svc.MarkRead(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("notification with ID %s: %w", id, apperr.ErrNotFound)
	}
	return c.JSON(fiber.Map{"message": "Notification marked as read"})
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return fmt.Errorf("user ID is required: %w", apperr.ErrInvalidArgument)
	}
	if _, err := h.svc.MarkAllRead(c.UserContext(), userID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "All notifications marked as read"})
}

func (h *NotificationHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	ok, err := h.svc.Delete(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("notification with ID %s: %w", id, apperr.ErrNotFound)
	}
	return c.JSON(fiber.Map{"message": "Notification deleted successfully"})
}
