package handler

import (
	"fmt"
	"net/http"

	notifDto "anoa.com/notifyhub/internal/modules/notification/dto"
	notif "anoa.com/notifyhub/internal/modules/notification/service"
	"anoa.com/notifyhub/pkg/apperror"
	"anoa.com/notifyhub/pkg/response"
	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	commands notif.CommandService
	queries  notif.QueryService
}

func NewNotificationHandler(commands notif.CommandService, queries notif.QueryService) *NotificationHandler {
	return &NotificationHandler{commands: commands, queries: queries}
}

// RegisterRoutes mounts the read and command endpoints on an authenticated group.
func (h *NotificationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.GetNotifications)
	rg.GET("/unread", h.GetUnreadNotifications)
	rg.GET("/unread-count", h.UnreadCount)
	rg.GET("/:event_id", h.GetNotification)
	rg.PATCH("/read-all", h.MarkAllAsRead)
	rg.PATCH("/:event_id/read", h.MarkAsRead)
	rg.DELETE("", h.ClearNotifications)
	rg.DELETE("/:event_id", h.DeleteNotification)
}

func (h *NotificationHandler) cursorQuery(c *gin.Context) (notifDto.CursorQuery, error) {
	userID, err := response.GetUserID(c)
	if err != nil {
		return notifDto.CursorQuery{}, err
	}

	var req notifDto.CursorRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		return notifDto.CursorQuery{}, fmt.Errorf("%w: %v", apperror.ErrBadRequest, err)
	}
	return req.ToQuery(userID)
}

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	q, err := h.cursorQuery(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	page, err := h.queries.FindNotificationByCursor(c.Request.Context(), q)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *NotificationHandler) GetUnreadNotifications(c *gin.Context) {
	q, err := h.cursorQuery(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	page, err := h.queries.FindUnreadNotificationByCursor(c.Request.Context(), q)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	count, err := h.queries.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, notifDto.UnreadCountResponse{Count: count})
}

func (h *NotificationHandler) GetNotification(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	details, err := h.queries.FindNotificationDetail(c.Request.Context(), userID, c.Param("event_id"))
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.commands.MarkNotificationAsRead(c.Request.Context(), c.Param("event_id"), userID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.commands.MarkAllNotificationsAsRead(c.Request.Context(), userID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.commands.RemoveNotification(c.Request.Context(), c.Param("event_id"), userID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *NotificationHandler) ClearNotifications(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.commands.ClearNotifications(c.Request.Context(), userID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
