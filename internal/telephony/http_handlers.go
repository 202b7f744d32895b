package telephony

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"care-call-scheduler/internal/calls"
	"care-call-scheduler/pkg/logger"
)

// StatusSink receives definitive call outcomes. callID is the record id
// echoed on the callback URL and may be empty.
type StatusSink interface {
	HandleProviderStatus(ctx context.Context, callID, handle string, outcome calls.Outcome, duration int) error
}

// ReplySink answers inbound reminder replies.
type ReplySink interface {
	HandleReminderReply(ctx context.Context, from, body string) (string, error)
}

// Conversation produces the assistant's lines during a live call.
type Conversation interface {
	Open(ctx context.Context, callID, handle string) (string, error)
	Respond(ctx context.Context, callID, handle, utterance string) (string, error)
}

const (
	msgNotHeard      = "Sorry, I didn't catch that. Could you say that again?"
	msgCallError     = "Sorry, something went wrong on our side. We will call you back later. Goodbye."
	msgMessagesError = "Sorry, we couldn't process your reply right now. Please try again in a few minutes."
)

// WebhookHandler converts Twilio webhooks to internal calls and writes the
// TwiML or status code Twilio expects. Decisions are made by the sinks.
type WebhookHandler struct {
	Status       StatusSink
	Replies      ReplySink
	Conversation Conversation
	Voice        string
}

func (h WebhookHandler) voice() string {
	if h.Voice == "" {
		return DefaultVoice
	}
	return h.Voice
}

func writeTwiML(c *gin.Context, status int, body string) {
	c.Data(status, "application/xml; charset=utf-8", []byte(body))
}

// HandleStatus applies the outcome of a finished call. Interim statuses are
// acknowledged and ignored.
func (h WebhookHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Status == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status sink not configured"})
		return
	}

	form, err := ParseStatusCallback(c.Request)
	if err != nil {
		log.Warn("twilio status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, ok := form.Outcome()
	if !ok {
		log.Debug("twilio interim status ignored", "call_sid", form.CallSid, "status", form.CallStatus)
		c.Status(http.StatusNoContent)
		return
	}

	err = h.Status.HandleProviderStatus(c.Request.Context(), form.CallID, form.CallSid, outcome, form.CallDuration)
	switch {
	case errors.Is(err, calls.ErrUnknownHandle):
		log.Warn("status for unknown call", "call_sid", form.CallSid, "call_id", form.CallID)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
	case errors.Is(err, calls.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		log.Error("status apply failed", "call_sid", form.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status update failed"})
	default:
		c.Status(http.StatusNoContent)
	}
}

// HandleVoice answers the connected call with the opening line.
func (h WebhookHandler) HandleVoice(c *gin.Context) {
	log := logger.FromGin(c)
	in, err := ParseSpeechInput(c.Request)
	if err != nil || h.Conversation == nil {
		log.Warn("voice webhook rejected", "err", err)
		h.sayError(c)
		return
	}

	text, err := h.Conversation.Open(c.Request.Context(), in.CallID, in.CallSid)
	if err != nil {
		log.Error("conversation open failed", "call_id", in.CallID, "call_sid", in.CallSid, "err", err)
		h.sayError(c)
		return
	}
	h.gather(c, text, in.CallID)
}

// HandleSpeech continues the conversation with the caller's last utterance.
func (h WebhookHandler) HandleSpeech(c *gin.Context) {
	log := logger.FromGin(c)
	in, err := ParseSpeechInput(c.Request)
	if err != nil || h.Conversation == nil {
		log.Warn("speech webhook rejected", "err", err)
		h.sayError(c)
		return
	}
	if in.SpeechResult == "" {
		h.gather(c, msgNotHeard, in.CallID)
		return
	}

	text, err := h.Conversation.Respond(c.Request.Context(), in.CallID, in.CallSid, in.SpeechResult)
	if err != nil {
		log.Error("conversation respond failed", "call_id", in.CallID, "call_sid", in.CallSid, "err", err)
		h.sayError(c)
		return
	}
	h.gather(c, text, in.CallID)
}

func (h WebhookHandler) gather(c *gin.Context, text, callID string) {
	body, err := RenderGather(text, withCallID("", PathSpeech, callID), h.voice())
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	writeTwiML(c, http.StatusOK, body)
}

func (h WebhookHandler) sayError(c *gin.Context) {
	body, err := RenderSayHangup(msgCallError, h.voice())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	writeTwiML(c, http.StatusInternalServerError, body)
}

// HandleWhatsApp answers a reminder reply with a message.
func (h WebhookHandler) HandleWhatsApp(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Replies == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reply sink not configured"})
		return
	}
	msg, err := ParseInboundMessage(c.Request)
	if err != nil {
		log.Warn("inbound message parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := h.Replies.HandleReminderReply(c.Request.Context(), msg.From, msg.Body)
	status := http.StatusOK
	if err != nil {
		log.Error("reminder reply failed", "message_sid", msg.MessageSid, "err", err)
		reply, status = msgMessagesError, http.StatusInternalServerError
	}
	body, err := RenderMessage(reply)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	writeTwiML(c, status, body)
}
