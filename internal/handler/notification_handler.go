package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-service/internal/domain"
	"github.com/kursadbilgin/notification-service/internal/observability"
	"github.com/kursadbilgin/notification-service/internal/queue"
	"github.com/kursadbilgin/notification-service/internal/repository"
	"github.com/kursadbilgin/notification-service/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type Dispatcher interface {
	Submit(ctx context.Context, req domain.DeliveryRequest, origin service.Origin) (service.Result, error)
}

type NotificationService interface {
	Enqueue(ctx context.Context, event queue.NotificationEvent) (queue.NotificationEvent, error)
	GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.NotificationRecord, int64, error)
	Stats(ctx context.Context, params repository.ListParams) (repository.Stats, error)
}

type NotificationHandler struct {
	dispatcher Dispatcher
	service    NotificationService
}

func NewNotificationHandler(dispatcher Dispatcher, service NotificationService) (*NotificationHandler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{dispatcher: dispatcher, service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, dispatcher Dispatcher, service NotificationService) error {
	h, err := NewNotificationHandler(dispatcher, service)
	if err != nil {
		return err
	}

	api := router.Group("/api/notifications")
	api.Post("/email", h.SendEmail)
	api.Post("/whatsapp", h.SendWhatsApp)
	api.Post("/send", h.SendNotification)
	api.Post("/queue", h.EnqueueNotification)
	api.Get("/health", ServiceHealthHandler())
	api.Get("/stats", h.GetStats)
	api.Get("/:id", h.GetNotification)
	router.Get("/api/notifications", h.ListNotifications)

	return nil
}

type sendEmailRequest struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	HtmlBody string            `json:"htmlBody"`
	TextBody string            `json:"textBody"`
	From     string            `json:"from"`
	ReplyTo  string            `json:"replyTo"`
	Headers  map[string]string `json:"headers"`
}

type sendWhatsAppRequest struct {
	To       string            `json:"to"`
	Message  string            `json:"message"`
	MediaURL string            `json:"mediaUrl"`
	Metadata map[string]string `json:"metadata"`
}

type sendNotificationRequest struct {
	Type     string `json:"type"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HtmlBody string `json:"htmlBody"`
	TextBody string `json:"textBody"`
	From     string `json:"from"`
	ReplyTo  string `json:"replyTo"`
}

type sendResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	MessageID string `json:"messageId,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	RecordID  string `json:"recordId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type enqueueResponse struct {
	Message        string `json:"message"`
	NotificationID string `json:"notificationId"`
}

type recordResponse struct {
	ID           string            `json:"id"`
	Channel      string            `json:"channel"`
	Source       string            `json:"source"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Message      string            `json:"message,omitempty"`
	Outcome      string            `json:"outcome"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	AttemptCount int               `json:"attemptCount"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

type listRecordsResponse struct {
	Data []recordResponse `json:"data"`
	Meta listMeta         `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) SendEmail(c *fiber.Ctx) error {
	var req sendEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return h.sendEmail(c, req, "email")
}

func (h *NotificationHandler) SendWhatsApp(c *fiber.Ctx) error {
	var req sendWhatsAppRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return h.sendWhatsApp(c, req, "whatsapp")
}

// SendNotification routes a type-discriminated request to the email or
// WhatsApp flow.
func (h *NotificationHandler) SendNotification(c *fiber.Ctx) error {
	var req sendNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notificationType := strings.TrimSpace(req.Type)
	if notificationType == "" {
		return toHTTPError(fmt.Errorf("%w: type is required (email or whatsapp)", domain.ErrValidation))
	}

	switch domain.ParseChannel(notificationType) {
	case domain.ChannelEmail:
		return h.sendEmail(c, sendEmailRequest{
			To:       req.To,
			Subject:  req.Subject,
			HtmlBody: req.HtmlBody,
			TextBody: req.TextBody,
			From:     req.From,
			ReplyTo:  req.ReplyTo,
		}, notificationType)
	case domain.ChannelWhatsApp:
		message := req.TextBody
		if strings.TrimSpace(message) == "" {
			message = req.HtmlBody
		}
		return h.sendWhatsApp(c, sendWhatsAppRequest{To: req.To, Message: message}, notificationType)
	default:
		return toHTTPError(fmt.Errorf("%w: %v %q", domain.ErrValidation, domain.ErrUnsupportedChannel, notificationType))
	}
}

func (h *NotificationHandler) EnqueueNotification(c *fiber.Ctx) error {
	var event queue.NotificationEvent
	if err := c.BodyParser(&event); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(event.NotificationID) == "" {
		event.NotificationID = requestCorrelationID(c)
	}

	published, err := h.service.Enqueue(requestContext(c), event)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(enqueueResponse{
		Message:        "notification queued",
		NotificationID: published.NotificationID,
	})
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	record, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toRecordResponse(record))
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	records, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listRecordsResponse{
		Data: toRecordResponses(records),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *NotificationHandler) GetStats(c *fiber.Ctx) error {
	params, err := parseFilters(c)
	if err != nil {
		return toHTTPError(err)
	}

	stats, err := h.service.Stats(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}

func (h *NotificationHandler) sendEmail(c *fiber.Ctx, req sendEmailRequest, originalType string) error {
	to := strings.TrimSpace(req.To)
	switch {
	case to == "":
		return toHTTPError(fmt.Errorf("%w: to is required", domain.ErrValidation))
	case strings.TrimSpace(req.Subject) == "":
		return toHTTPError(fmt.Errorf("%w: subject is required", domain.ErrValidation))
	case strings.TrimSpace(req.HtmlBody) == "" && strings.TrimSpace(req.TextBody) == "":
		return toHTTPError(fmt.Errorf("%w: htmlBody or textBody is required", domain.ErrValidation))
	}

	email := domain.EmailRequest{
		To:        to,
		Subject:   req.Subject,
		HtmlBody:  req.HtmlBody,
		TextBody:  req.TextBody,
		From:      strings.TrimSpace(req.From),
		ReplyTo:   strings.TrimSpace(req.ReplyTo),
		Headers:   req.Headers,
		MessageID: uuid.NewString(),
	}

	return h.dispatch(c, email, email.MessageID, originalType, "email")
}

func (h *NotificationHandler) sendWhatsApp(c *fiber.Ctx, req sendWhatsAppRequest, originalType string) error {
	to := strings.TrimSpace(req.To)
	switch {
	case to == "":
		return toHTTPError(fmt.Errorf("%w: to is required", domain.ErrValidation))
	case strings.TrimSpace(req.Message) == "":
		return toHTTPError(fmt.Errorf("%w: message is required", domain.ErrValidation))
	}

	whatsapp := domain.WhatsAppRequest{
		To:        to,
		Message:   req.Message,
		MediaURL:  strings.TrimSpace(req.MediaURL),
		MessageID: uuid.NewString(),
		Metadata:  req.Metadata,
	}

	return h.dispatch(c, whatsapp, whatsapp.MessageID, originalType, "whatsapp")
}

func (h *NotificationHandler) dispatch(
	c *fiber.Ctx,
	req domain.DeliveryRequest,
	messageID string,
	originalType string,
	label string,
) error {
	result, err := h.dispatcher.Submit(requestContext(c), req, service.Origin{
		Source:       domain.SourceSyncAPI,
		Endpoint:     c.Path(),
		OriginalType: originalType,
		Payload:      c.Body(),
	})
	if err != nil {
		return fmt.Errorf("failed to record %s notification: %w", label, err)
	}

	if !result.Succeeded() {
		return c.Status(fiber.StatusInternalServerError).JSON(sendResponse{
			Success:   false,
			Message:   fmt.Sprintf("failed to send %s", label),
			MessageID: messageID,
			RecordID:  result.RecordID,
			Error:     result.Message,
		})
	}

	return c.Status(fiber.StatusOK).JSON(sendResponse{
		Success:   true,
		Message:   fmt.Sprintf("%s sent", label),
		MessageID: messageID,
		Recipient: req.Recipient(),
		RecordID:  result.RecordID,
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params, err := parseFilters(c)
	if err != nil {
		return repository.ListParams{}, err
	}

	params.Page = c.QueryInt("page", defaultPage)
	params.PageSize = c.QueryInt("pageSize", defaultPageSize)

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	return params, nil
}

func parseFilters(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Recipient: strings.TrimSpace(c.Query("recipient")),
	}

	if rawOutcome := strings.TrimSpace(c.Query("outcome")); rawOutcome != "" {
		outcome, err := domain.ParseOutcomeFromString(rawOutcome)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Outcome = &outcome
	}

	if rawChannel := strings.TrimSpace(c.Query("channel")); rawChannel != "" {
		channel, err := domain.ParseChannelFromString(rawChannel)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Channel = &channel
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := context.Context(c.Context())
	if id := requestCorrelationID(c); id != "" {
		ctx = observability.WithCorrelationID(ctx, id)
	}
	return ctx
}

func toRecordResponses(records []domain.NotificationRecord) []recordResponse {
	responses := make([]recordResponse, 0, len(records))
	for _, record := range records {
		r := record
		responses = append(responses, toRecordResponse(&r))
	}
	return responses
}

func toRecordResponse(r *domain.NotificationRecord) recordResponse {
	if r == nil {
		return recordResponse{}
	}

	return recordResponse{
		ID:           r.ID,
		Channel:      r.Channel.String(),
		Source:       r.Source.String(),
		Recipient:    r.Recipient,
		Subject:      r.Subject,
		Message:      r.Message,
		Outcome:      r.Outcome.String(),
		ErrorMessage: r.ErrorMessage,
		AttemptCount: r.AttemptCount,
		Metadata:     r.Metadata,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
