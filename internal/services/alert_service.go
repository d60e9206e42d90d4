package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"golang.org/x/time/rate"
)

const alertSendTimeout = 10 * time.Second

// Alerter notifies operators that a backend the login pipeline depends on is failing
type Alerter interface {
	Alert(ctx context.Context, subsystem string, err error)
}

// LogAlerter writes alerts to the structured log only
type LogAlerter struct {
	logger *slog.Logger
}

// NewLogAlerter creates a new LogAlerter
func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(ctx context.Context, subsystem string, err error) {
	a.logger.ErrorContext(ctx, "ops alert",
		slog.String("subsystem", subsystem),
		slog.String("error", err.Error()))
}

// SESClient is the subset of the SES API used for alerts
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESAlerter emails operators through AWS SES. Sends are throttled per subsystem
// and happen off the request path.
type SESAlerter struct {
	client      SESClient
	fromAddress string
	toAddress   string
	minInterval time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	wg       sync.WaitGroup
}

// NewSESAlerter creates an SESAlerter from the default AWS credential chain
func NewSESAlerter(region, fromAddress, toAddress string, minInterval time.Duration, logger *slog.Logger) (*SESAlerter, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESAlerterWithClient(ses.NewFromConfig(cfg), fromAddress, toAddress, minInterval, logger), nil
}

// NewSESAlerterWithClient creates an SESAlerter around an existing client
func NewSESAlerterWithClient(client SESClient, fromAddress, toAddress string, minInterval time.Duration, logger *slog.Logger) *SESAlerter {
	return &SESAlerter{
		client:      client,
		fromAddress: fromAddress,
		toAddress:   toAddress,
		minInterval: minInterval,
		logger:      logger,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Alert logs every call and emails at most once per minInterval per subsystem
func (a *SESAlerter) Alert(ctx context.Context, subsystem string, err error) {
	a.logger.ErrorContext(ctx, "ops alert",
		slog.String("subsystem", subsystem),
		slog.String("error", err.Error()))

	if !a.limiter(subsystem).Allow() {
		return
	}

	subject := fmt.Sprintf("[turnstile] %s unavailable", subsystem)
	body := fmt.Sprintf("The login pipeline observed a %s failure at %s and is rejecting logins.\n\nError: %v\n",
		subsystem, time.Now().UTC().Format(time.RFC3339), err)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.Background(), alertSendTimeout)
		defer cancel()
		a.send(sendCtx, subject, body)
	}()
}

// Wait blocks until in-flight sends complete. Call it during shutdown.
func (a *SESAlerter) Wait() {
	a.wg.Wait()
}

func (a *SESAlerter) limiter(subsystem string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.limiters[subsystem]
	if !ok {
		l = rate.NewLimiter(rate.Every(a.minInterval), 1)
		a.limiters[subsystem] = l
	}
	return l
}

func (a *SESAlerter) send(ctx context.Context, subject, body string) {
	input := &ses.SendEmailInput{
		Source: aws.String(a.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{a.toAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body),
				},
			},
		},
	}

	result, err := a.client.SendEmail(ctx, input)
	if err != nil {
		a.logger.Error("failed to send alert via SES", slog.Any("error", err))
		return
	}

	a.logger.Info("alert sent", slog.String("message_id", aws.ToString(result.MessageId)))
}
