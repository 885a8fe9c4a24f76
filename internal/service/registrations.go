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
	"eventhub/internal/notify"
	"eventhub/internal/repo"
	"eventhub/pkg/validator"
)

var (
	errEventFull       = errors.New("event is full")
	errUnknownReferral = errors.New("referral code not found")
	errSelfReferral    = errors.New("you cannot use your own referral code")
)

func (s *service) Register(ctx *ginext.Context) {
	id, ok := caller(ctx)
	if !ok {
		return
	}

	eventID := ctx.Param("id")
	if _, err := uuid.Parse(eventID); err != nil {
		dto.FieldBadFormatError(ctx, "id")
		return
	}

	var req dto.RegisterRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
			return
		}
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	resp, err := s.register(ctx.Request.Context(), id, eventID, req)
	switch {
	case err == nil:
		dto.SuccessCreatedResponse(ctx, resp)
	case errors.Is(err, repo.ErrEventNotFound):
		dto.EventNotFoundError(ctx)
	case errors.Is(err, repo.ErrDuplicateRegistration):
		dto.RegistrationDuplicateError(ctx)
	case errors.Is(err, errEventFull):
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Event is full")
	case errors.Is(err, errUnknownReferral), errors.Is(err, errSelfReferral):
		dto.BadResponseError(ctx, dto.ReferralInvalid, err.Error())
	default:
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to register")
		dto.InternalServerError(ctx)
	}
}

func (s *service) register(ctx context.Context, id auth.Identity, eventID string, req dto.RegisterRequest) (dto.RegistrationResponse, error) {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return dto.RegistrationResponse{}, err
	}

	if event.MaxParticipants != nil {
		count, err := s.repo.CountRegistrations(ctx, event.ID)
		if err != nil {
			return dto.RegistrationResponse{}, fmt.Errorf("count registrations: %w", err)
		}
		if count >= *event.MaxParticipants {
			return dto.RegistrationResponse{}, errEventFull
		}
	}

	var referrer *model.Profile
	if req.ReferralCode != "" {
		referrer, err = s.repo.GetProfileByReferralCode(ctx, req.ReferralCode)
		if errors.Is(err, repo.ErrNotFound) {
			return dto.RegistrationResponse{}, errUnknownReferral
		}
		if err != nil {
			return dto.RegistrationResponse{}, fmt.Errorf("resolve referral code: %w", err)
		}
		if referrer.ID == id.UserID {
			return dto.RegistrationResponse{}, errSelfReferral
		}
	}

	reg := &model.Registration{
		ID:            uuid.NewString(),
		UserID:        id.UserID,
		EventID:       event.ID,
		PaymentStatus: model.PaymentPending,
		CouponCode:    req.CouponCode,
	}
	if event.Price == 0 {
		reg.PaymentStatus = model.PaymentFree
	}

	if err := s.repo.CreateRegistration(ctx, reg); err != nil {
		return dto.RegistrationResponse{}, err
	}
	s.log.Info().
		Str("registration_id", reg.ID).
		Str("event_id", event.ID).
		Str("payment_status", reg.PaymentStatus).
		Msg("registration created successfully")

	resp := dto.RegistrationResponse{Registration: *reg}

	if referrer != nil {
		ref := &model.Referral{
			ID:             uuid.NewString(),
			ReferrerID:     referrer.ID,
			RefereeID:      id.UserID,
			EventID:        event.ID,
			RegistrationID: reg.ID,
			Status:         model.ReferralPending,
		}
		if err := s.repo.CreateReferral(ctx, ref); err != nil {
			s.log.Error().Err(err).Str("registration_id", reg.ID).Msg("failed to record referral")
		} else {
			resp.ReferredBy = referrer.ID
		}
	}

	if reg.PaymentStatus == model.PaymentPending {
		if err := s.expirer.ExpireRegistration(ctx, reg.ID, event.ID, s.paymentTimeout); err != nil {
			s.log.Error().Err(err).Str("registration_id", reg.ID).Msg("failed to schedule registration expiry")
		}
		s.notify(ctx, notify.Message{
			UserID:    id.UserID,
			Type:      model.NotificationInApp,
			Subject:   "Complete your registration",
			Body:      fmt.Sprintf("Your seat for %s is reserved. Complete payment within %d minutes to confirm it.", event.Title, int(s.paymentTimeout.Minutes())),
			ActionURL: "/registrations/" + reg.ID + "/checkout",
		})
	} else {
		s.notify(ctx,
			notify.Message{
				UserID:    id.UserID,
				Type:      model.NotificationInApp,
				Subject:   "You're registered",
				Body:      fmt.Sprintf("You're registered for %s.", event.Title),
				ActionURL: "/events/" + event.ID,
				Level:     model.LevelSuccess,
			},
			notify.Message{
				UserID:  id.UserID,
				Type:    model.NotificationEmail,
				Subject: "Registration Confirmed - " + event.Title,
				Body:    fmt.Sprintf("Hello!\n\nYour registration for %s is confirmed. See you there!", event.Title),
			},
		)
	}

	return resp, nil
}
