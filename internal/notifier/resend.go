package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrMissingAPIKey is returned when no Resend API key is configured.
var ErrMissingAPIKey = errors.New("RESEND_API_KEY is not configured")

// Email 待发送邮件
type Email struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

type resendError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ResendClient Resend 邮件 API 客户端
type ResendClient struct {
	httpClient *resty.Client
	apiKey     string
	logger     *zap.Logger
}

// NewResendClient 创建 Resend 客户端
func NewResendClient(baseURL, apiKey string, timeout time.Duration, retryCount int, logger *zap.Logger) *ResendClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// 仅重试网络错误、限流和服务端错误
			if err != nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})

	return &ResendClient{
		httpClient: client,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// Send posts one e-mail and returns the provider message id.
func (c *ResendClient) Send(ctx context.Context, email Email) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	var result resendResponse
	var apiErr resendError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(email).
		SetResult(&result).
		SetError(&apiErr).
		Post("/emails")
	if err != nil {
		return "", fmt.Errorf("failed to call Resend API: %w", err)
	}
	if resp.IsError() {
		c.logger.Error("Resend API returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("message", apiErr.Message),
		)
		msg := apiErr.Message
		if msg == "" {
			msg = resp.String()
		}
		return "", fmt.Errorf("Resend API error: %d - %s", resp.StatusCode(), msg)
	}

	return result.ID, nil
}
