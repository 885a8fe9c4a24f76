package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"

	"eventhub/internal/auth"
	"eventhub/internal/dto"
	"eventhub/internal/model"
	"eventhub/internal/repo"
	"eventhub/pkg/validator"
)

const eventStatusUpcoming = "upcoming"

func (s *service) CreateEvent(ctx *ginext.Context) {
	id, ok := caller(ctx)
	if !ok {
		return
	}

	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create event request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		s.log.Debug().Err(verr).Msg("create event validation failed")
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	event := &model.Event{
		ID:              uuid.NewString(),
		Title:           req.Title,
		Description:     req.Description,
		Category:        req.Category,
		Price:           req.Price,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Status:          eventStatusUpcoming,
		MaxParticipants: req.MaxParticipants,
	}

	if err := s.repo.CreateEvent(ctx.Request.Context(), event); err != nil {
		s.log.Error().Err(err).Msg("failed to create event in DB")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("event_id", event.ID).Str("admin_id", id.UserID).Msg("event created successfully")
	dto.SuccessCreatedResponse(ctx, dto.EventResponse{Event: *event, AvailableSeats: event.MaxParticipants})
}

func (s *service) GetEvent(ctx *ginext.Context) {
	id, ok := caller(ctx)
	if !ok {
		return
	}

	eventID := ctx.Param("id")
	if _, err := uuid.Parse(eventID); err != nil {
		dto.FieldBadFormatError(ctx, "id")
		return
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID)
	if errors.Is(err, repo.ErrEventNotFound) {
		dto.EventNotFoundError(ctx)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to get event")
		dto.InternalServerError(ctx)
		return
	}

	resp, err := s.eventView(ctx.Request.Context(), id, *event)
	if err != nil {
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to build event view")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) GetAllEvents(ctx *ginext.Context) {
	id, ok := caller(ctx)
	if !ok {
		return
	}

	events, err := s.repo.GetAllEvents(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list events")
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.EventResponse, 0, len(events))
	for _, e := range events {
		item, err := s.eventView(ctx.Request.Context(), id, e)
		if err != nil {
			s.log.Error().Err(err).Str("event_id", e.ID).Msg("failed to build event view")
			continue
		}
		resp = append(resp, item)
	}

	dto.SuccessResponse(ctx, resp)
}

// eventView adds seat accounting, and for admins the registration list.
func (s *service) eventView(ctx context.Context, id auth.Identity, e model.Event) (dto.EventResponse, error) {
	count, err := s.repo.CountRegistrations(ctx, e.ID)
	if err != nil {
		return dto.EventResponse{}, fmt.Errorf("count registrations: %w", err)
	}

	resp := dto.EventResponse{Event: e, RegisteredCount: count}
	if e.MaxParticipants != nil {
		left := *e.MaxParticipants - count
		if left < 0 {
			left = 0
		}
		resp.AvailableSeats = &left
	}

	if id.Admin {
		regs, err := s.repo.GetRegistrationsByEventID(ctx, e.ID)
		if err != nil {
			return dto.EventResponse{}, fmt.Errorf("list registrations: %w", err)
		}
		resp.Registrations = regs
	}
	return resp, nil
}
