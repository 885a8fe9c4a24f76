package service

import (
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"

	"eventhub/internal/dto"
	"eventhub/internal/model"
	"eventhub/internal/notify"
	"eventhub/pkg/validator"
)

const inAppPageSize = 50

func (s *service) GetNotifications(ctx *ginext.Context) {
	id, ok := caller(ctx)
	if !ok {
		return
	}

	items, err := s.repo.GetInAppNotifications(ctx.Request.Context(), id.UserID, inAppPageSize)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list notifications")
		dto.InternalServerError(ctx)
		return
	}
	if items == nil {
		items = []model.InAppNotification{}
	}
	dto.SuccessResponse(ctx, items)
}

func (s *service) MarkNotificationRead(ctx *ginext.Context) {
	id, ok := caller(ctx)
	if !ok {
		return
	}

	notificationID := ctx.Param("id")
	if _, err := uuid.Parse(notificationID); err != nil {
		dto.FieldBadFormatError(ctx, "id")
		return
	}

	found, err := s.repo.MarkInAppNotificationRead(ctx.Request.Context(), notificationID, id.UserID, s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to mark notification read")
		dto.InternalServerError(ctx)
		return
	}
	if !found {
		dto.NotFoundError(ctx, dto.NotFound, "Notification not found")
		return
	}
	dto.SuccessResponse(ctx, map[string]string{"id": notificationID})
}

func (s *service) GetPreferences(ctx *ginext.Context) {
	id, ok := caller(ctx)
	if !ok {
		return
	}

	pref, err := s.repo.GetNotificationPreference(ctx.Request.Context(), id.UserID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get notification preferences")
		dto.InternalServerError(ctx)
		return
	}
	if pref == nil {
		def := model.DefaultNotificationPreference(id.UserID)
		pref = &def
	}
	dto.SuccessResponse(ctx, pref)
}

func (s *service) UpdatePreferences(ctx *ginext.Context) {
	id, ok := caller(ctx)
	if !ok {
		return
	}

	var req dto.UpdatePreferencesRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	pref := &model.NotificationPreference{
		UserID:           id.UserID,
		EmailEnabled:     *req.EmailEnabled,
		SMSEnabled:       *req.SMSEnabled,
		InAppEnabled:     *req.InAppEnabled,
		MarketingEnabled: *req.MarketingEnabled,
	}
	if err := s.repo.UpsertNotificationPreference(ctx.Request.Context(), pref); err != nil {
		s.log.Error().Err(err).Msg("failed to store notification preferences")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, pref)
}

// SendNotification lets an admin queue a message for one user.
func (s *service) SendNotification(ctx *ginext.Context) {
	id, ok := caller(ctx)
	if !ok {
		return
	}

	var req dto.SendNotificationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	if err := s.notifier.Enqueue(ctx.Request.Context(), notify.Message{
		UserID:    req.UserID,
		Type:      req.Type,
		Subject:   req.Subject,
		Body:      req.Body,
		ActionURL: req.ActionURL,
		Priority:  req.Priority,
	}); err != nil {
		s.log.Error().Err(err).Msg("failed to queue notification")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("admin_id", id.UserID).Str("user_id", req.UserID).Str("type", req.Type).Msg("notification queued by admin")
	dto.SuccessCreatedResponse(ctx, map[string]string{"user_id": req.UserID, "type": req.Type})
}
