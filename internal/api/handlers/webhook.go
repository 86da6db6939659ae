package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/clientcomm/core/internal/services"
	"github.com/clientcomm/core/internal/transport"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler answers the provider's SMS, status and voice callbacks
type WebhookHandler struct {
	inbound   *services.InboundService
	voiceText string
	logger    *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler instance
func NewWebhookHandler(inbound *services.InboundService, voiceText string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		inbound:   inbound,
		voiceText: voiceText,
		logger:    logger,
	}
}

// IncomingSMS stores an inbound text. Unknown senders are dropped but still
// acknowledged so the provider does not retry.
// POST /incoming/sms
func (h *WebhookHandler) IncomingSMS(c *gin.Context) {
	sms := services.InboundSMS{
		From:   c.PostForm("From"),
		To:     c.PostForm("To"),
		Body:   c.PostForm("Body"),
		SID:    c.PostForm("SmsSid"),
		Status: c.PostForm("SmsStatus"),
	}
	if sms.SID == "" {
		sms.SID = c.PostForm("MessageSid")
	}
	numMedia, _ := strconv.Atoi(c.PostForm("NumMedia"))
	for i := 0; i < numMedia; i++ {
		if mediaURL := c.PostForm(fmt.Sprintf("MediaUrl%d", i)); mediaURL != "" {
			sms.MediaURLs = append(sms.MediaURLs, mediaURL)
		}
	}

	_, err := h.inbound.ReceiveMessage(c.Request.Context(), sms)
	if err != nil && !errors.Is(err, services.ErrUnknownSender) {
		h.logger.Error("Failed to store inbound message", zap.String("sid", sms.SID), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

// IncomingStatus records a delivery status callback
// POST /incoming/sms/status
func (h *WebhookHandler) IncomingStatus(c *gin.Context) {
	sid := c.PostForm("SmsSid")
	if sid == "" {
		sid = c.PostForm("MessageSid")
	}
	status := c.PostForm("SmsStatus")
	if status == "" {
		status = c.PostForm("MessageStatus")
	}

	if err := h.inbound.UpdateStatus(c.Request.Context(), sid, status); err != nil {
		h.logger.Error("Failed to record message status", zap.String("sid", sid), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

// IncomingVoice tells callers the number only takes texts
// POST /incoming/voice
func (h *WebhookHandler) IncomingVoice(c *gin.Context) {
	doc, err := transport.SayResponse(h.voiceText)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", doc)
}
