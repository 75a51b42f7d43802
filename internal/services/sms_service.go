package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storefront/internal/utils"
)

type SMSService interface {
	SendOTP(ctx context.Context, phone, purpose, code string, ttl time.Duration) error
}

type smsService struct {
	client *utils.Client
	log    *zap.SugaredLogger
}

func NewSMSService(client *utils.Client, log *zap.SugaredLogger) SMSService {
	return &smsService{client: client, log: log}
}

func (s *smsService) SendOTP(ctx context.Context, phone, purpose, code string, ttl time.Duration) error {
	text := fmt.Sprintf("%s code: %s. Valid for %s.", purpose, code, humanDuration(ttl))
	resp, err := s.client.SendSMS(ctx, phone, text)
	if err != nil {
		return fmt.Errorf("mobizon error: %w", err)
	}
	s.log.Infof("[sms][otp][send] phone=%s messageID=%s", maskIdentifier(phone), resp.Data.MessageID)
	return nil
}
