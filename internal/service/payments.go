package service

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"

	"eventhub/internal/dto"
	"eventhub/internal/model"
	"eventhub/internal/payment"
	"eventhub/internal/repo"
)

const maxWebhookBody = 1 << 20

func (s *service) Checkout(ctx *ginext.Context) {
	id, ok := caller(ctx)
	if !ok {
		return
	}

	regID := ctx.Param("id")
	if _, err := uuid.Parse(regID); err != nil {
		dto.FieldBadFormatError(ctx, "id")
		return
	}

	txn, err := payment.Checkout(ctx.Request.Context(), s.repo, id.UserID, regID, s.currency)
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrRegistrationNotFound):
		dto.RegistrationNotFoundError(ctx)
		return
	case errors.Is(err, payment.ErrNotOwner):
		dto.ForbiddenError(ctx)
		return
	case errors.Is(err, payment.ErrAlreadySettled):
		dto.BadResponseError(ctx, dto.PaymentNotRequired, "This registration does not need a payment")
		return
	case errors.Is(err, repo.ErrEventNotFound):
		dto.EventNotFoundError(ctx)
		return
	default:
		s.log.Error().Err(err).Str("registration_id", regID).Msg("failed to start checkout")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("transaction_id", txn.ID).
		Str("order_id", txn.GatewayOrderID).
		Float64("amount", txn.Amount).
		Msg("checkout started")

	dto.SuccessCreatedResponse(ctx, dto.CheckoutResponse{
		TransactionID: txn.ID,
		OrderID:       txn.GatewayOrderID,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
	})
}

func (s *service) GetPayments(ctx *ginext.Context) {
	id, ok := caller(ctx)
	if !ok {
		return
	}

	txns, err := s.repo.GetTransactionsByUser(ctx.Request.Context(), id.UserID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list payments")
		dto.InternalServerError(ctx)
		return
	}
	if txns == nil {
		txns = []model.PaymentTransaction{}
	}
	dto.SuccessResponse(ctx, txns)
}

// RazorpayWebhook is called by the gateway, not by users; the signature is
// its only credential.
func (s *service) RazorpayWebhook(ctx *ginext.Context) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBody))
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Unable to read request body")
		return
	}

	res, err := s.webhooks.Handle(ctx.Request.Context(), body, ctx.GetHeader(payment.SignatureHeader))
	switch {
	case err == nil:
		dto.SuccessResponse(ctx, res)
	case errors.Is(err, payment.ErrInvalidSignature):
		s.log.Warn().Str("client_ip", ctx.ClientIP()).Msg("webhook rejected: invalid signature")
		dto.UnauthorizedError(ctx, "Invalid webhook signature")
	case errors.Is(err, payment.ErrMalformed):
		dto.BadResponseError(ctx, dto.FieldBadFormat, err.Error())
	case errors.Is(err, payment.ErrTransactionNotFound):
		dto.NotFoundError(ctx, dto.TransactionNotFound, "Transaction not found")
	default:
		s.log.Error().Err(err).Msg("webhook processing failed")
		ctx.JSON(http.StatusInternalServerError, dto.Response{
			Status: "error",
			Error:  &dto.Error{Code: dto.ServiceUnavailable, Desc: "Webhook processing failed"},
		})
	}
}
