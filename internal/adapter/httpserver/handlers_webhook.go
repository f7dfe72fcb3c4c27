package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/phxgg/kickbridge/internal/domain"
	"github.com/phxgg/kickbridge/internal/kick"
	"github.com/phxgg/kickbridge/internal/metrics"
	apperrors "github.com/phxgg/kickbridge/internal/platform/errors"
	"github.com/phxgg/kickbridge/internal/platform/logging"
)

// maxWebhookBody caps inbound webhook bodies. Kick events are small JSON
// documents; anything past 1 MiB is not one of them.
const maxWebhookBody = 1 << 20

// handleWebhook verifies and routes one webhook delivery. The signature
// covers the exact raw bytes of the body, so it is read before any parsing.
func (s *Server) handleWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return apperrors.InternalError("failed to read webhook body", err)
	}
	if len(body) > maxWebhookBody {
		metrics.WebhooksRejected.WithLabelValues("malformed").Inc()
		return apperrors.ValidationError("webhook body too large")
	}

	envelope := envelopeFromRequest(c.Request(), body)

	start := time.Now()
	err = s.verifier.Verify(c.Request().Context(), envelope)
	metrics.WebhookVerifyDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, kick.ErrMalformedEnvelope):
		metrics.WebhooksRejected.WithLabelValues("malformed").Inc()
		return apperrors.ValidationError("missing webhook headers")
	case errors.Is(err, kick.ErrSignatureInvalid):
		metrics.WebhooksRejected.WithLabelValues("bad_signature").Inc()
		return apperrors.ForbiddenError("invalid webhook signature")
	case err != nil:
		return apperrors.InternalError("failed to verify webhook signature", err)
	}

	eventType := domain.EventType(envelope.EventType)
	metrics.WebhooksReceived.WithLabelValues(envelope.EventType).Inc()

	if err := s.router.Route(c.Request().Context(), eventType, body); err != nil {
		return apperrors.InternalError("failed to route webhook event", err)
	}
	metrics.EventsRouted.WithLabelValues(envelope.EventType).Inc()
	logging.WithEvent(envelope.EventType, envelope.MessageID).Debug("Webhook delivery routed")

	if err := c.JSON(http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		return fmt.Errorf("failed to write webhook response: %w", err)
	}
	return nil
}

func envelopeFromRequest(r *http.Request, body []byte) *kick.WebhookEnvelope {
	return &kick.WebhookEnvelope{
		MessageID:      r.Header.Get(kick.HeaderEventMessageID),
		SubscriptionID: r.Header.Get(kick.HeaderEventSubscriptionID),
		SignatureB64:   r.Header.Get(kick.HeaderEventSignature),
		Timestamp:      r.Header.Get(kick.HeaderEventMessageTimestamp),
		EventType:      r.Header.Get(kick.HeaderEventType),
		EventVersion:   r.Header.Get(kick.HeaderEventVersion),
		RawBody:        body,
	}
}
