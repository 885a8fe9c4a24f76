package service

import (
	"github.com/wb-go/wbf/ginext"

	"eventhub/internal/dto"
)

func (s *service) ProcessReferrals(ctx *ginext.Context) {
	res, err := s.jobs.ProcessReferrals(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("referral pass failed")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, res)
}

func (s *service) SendNotifications(ctx *ginext.Context) {
	res, err := s.jobs.SendNotifications(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("notification dispatch failed")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, res)
}
