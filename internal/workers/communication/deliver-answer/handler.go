// Package deliveranswer pushes a synthesized answer to the requester over
// SES email or SNS SMS. Sessions answered interactively use channel "none"
// and skip delivery.
package deliveranswer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "analyst-workers/internal/common/errors"
	"analyst-workers/internal/common/logger"
	"analyst-workers/internal/common/metrics"
	"analyst-workers/internal/common/validation"
)

const TaskType = "communication.answer.deliver"

const Name = "deliver-answer"

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelNone  = "none"
)

// EmailSender is satisfied by *aws.SESClient.
type EmailSender interface {
	SendPlainEmail(ctx context.Context, from, to, subject, body string) (*ses.SendEmailOutput, error)
}

// SMSSender is satisfied by *aws.SNSClient.
type SMSSender interface {
	PublishSMS(ctx context.Context, phoneNumber, message, senderID string) (*sns.PublishOutput, error)
}

type Handler struct {
	config *Config
	email  EmailSender
	sms    SMSSender
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

// NewHandler wires the delivery worker. A nil sender leaves that channel
// unavailable regardless of configuration.
func NewHandler(config *Config, email EmailSender, sms SMSSender, log logger.Logger) *Handler {
	scoped := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		email:  email,
		sms:    sms,
		errors: apperrors.NewErrorHandler(scoped),
		logger: scoped,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if err := validation.ValidateJobInput([]byte(job.Variables), InputSchema()); err != nil {
		h.failJob(ctx, client, job, apperrors.NewInputValidationError(TaskType, err))
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, apperrors.NewBusinessRuleError(
			"Delivery input unreadable", fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.SessionID == "" {
		return nil, apperrors.NewSessionNotFoundError("")
	}

	channel := strings.ToLower(strings.TrimSpace(input.Channel))
	if channel == "" || channel == ChannelNone {
		h.logger.Info("delivery skipped", map[string]interface{}{
			"sessionId": input.SessionID,
			"answerId":  input.AnswerID,
		})
		return &Output{
			SessionID: input.SessionID,
			AnswerID:  input.AnswerID,
			Channel:   ChannelNone,
		}, nil
	}

	answer := strings.TrimSpace(input.Answer)
	if answer == "" {
		return nil, apperrors.NewBusinessRuleError(
			"Nothing to deliver", fmt.Sprintf("answer is empty for session %s", input.SessionID))
	}
	recipient := strings.TrimSpace(input.Recipient)

	var (
		messageID string
		err       error
	)
	switch channel {
	case ChannelEmail:
		messageID, err = h.sendEmail(ctx, recipient, input.Subject, answer)
	case ChannelSMS:
		messageID, err = h.sendSMS(ctx, recipient, answer)
	default:
		return nil, apperrors.NewInvalidDeliveryChannelError(channel)
	}
	if err != nil {
		return nil, err
	}

	h.logger.Info("answer delivered", map[string]interface{}{
		"sessionId": input.SessionID,
		"answerId":  input.AnswerID,
		"channel":   channel,
		"messageId": messageID,
	})

	return &Output{
		SessionID: input.SessionID,
		AnswerID:  input.AnswerID,
		Channel:   channel,
		Delivered: true,
		MessageID: messageID,
	}, nil
}

func (h *Handler) sendEmail(ctx context.Context, recipient, subject, body string) (string, error) {
	if !h.config.EmailEnabled || h.email == nil {
		return "", apperrors.NewInvalidDeliveryChannelError("email (disabled)")
	}
	if !validation.ValidateEmail(recipient) {
		return "", apperrors.NewInvalidDeliveryChannelError(
			fmt.Sprintf("email (invalid recipient %q)", recipient))
	}
	if strings.TrimSpace(subject) == "" {
		subject = h.config.DefaultSubject
	}

	start := time.Now()
	res, err := h.email.SendPlainEmail(ctx, h.config.FromEmail, recipient, subject, body)
	metrics.ExternalCallDuration.WithLabelValues("ses").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", apperrors.NewDeliverySendFailedError(ChannelEmail, err)
	}
	if res == nil {
		return "", nil
	}
	return aws.ToString(res.MessageId), nil
}

func (h *Handler) sendSMS(ctx context.Context, recipient, body string) (string, error) {
	if !h.config.SMSEnabled || h.sms == nil {
		return "", apperrors.NewInvalidDeliveryChannelError("sms (disabled)")
	}
	if !validation.ValidatePhone(recipient) {
		return "", apperrors.NewInvalidDeliveryChannelError(
			fmt.Sprintf("sms (invalid recipient %q)", recipient))
	}

	start := time.Now()
	res, err := h.sms.PublishSMS(ctx, recipient, truncateRunes(body, h.config.MaxSMSRunes), h.config.SenderID)
	metrics.ExternalCallDuration.WithLabelValues("sns").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", apperrors.NewDeliverySendFailedError(ChannelSMS, err)
	}
	if res == nil {
		return "", nil
	}
	return aws.ToString(res.MessageId), nil
}

// truncateRunes shortens s to at most max runes, marking the cut with an
// ellipsis. max <= 0 means unlimited.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.CodeOf(err))).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}

// Execute runs delivery outside a job context.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
