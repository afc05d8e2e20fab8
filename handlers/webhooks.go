package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	xerrors "github.com/subvoxlabs/transcribe-api/errors"
	"github.com/subvoxlabs/transcribe-api/log"
	"github.com/subvoxlabs/transcribe-api/providers"
	"github.com/subvoxlabs/transcribe-api/requests"
)

// SyncSTTWebhook implements POST /webhooks/stt, §6: the sync-STT
// provider's async callback mode, HMAC-SHA256 signed in the `dg-signature`
// header over the raw body.
func (c *Collection) SyncSTTWebhook() httprouter.Handle {
	return c.webhookHandler("sync-stt", "dg-signature", c.syncSTTWebhookSecret, func(ctx context.Context, requestID string, body []byte) {
		var payload struct {
			RequestID string `json:"request_id"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			log.LogError(requestID, "sync-stt webhook: failed to decode payload", err)
			return
		}
		log.Log(requestID, "sync-stt webhook accepted", "upstream_request_id", payload.RequestID)
	})
}

// AutoTranscriptWebhook implements POST /webhooks/auto-transcript, §6.
func (c *Collection) AutoTranscriptWebhook() httprouter.Handle {
	return c.webhookHandler("auto-transcript", "X-Signature", c.autoTranscriptWebhookSecret, func(ctx context.Context, requestID string, body []byte) {
		var payload struct {
			JobID string `json:"jobId"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			log.LogError(requestID, "auto-transcript webhook: failed to decode payload", err)
			return
		}
		log.Log(requestID, "auto-transcript webhook accepted", "job_id", payload.JobID)
	})
}

type subscriptionEventBody struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			Customer string `json:"customer"`
			Lines    struct {
				Data []struct {
					SKU      string `json:"sku"`
					Quantity int    `json:"quantity"`
				} `json:"data"`
			} `json:"lines"`
		} `json:"object"`
	} `json:"data"`
}

// minutesPerUnit maps a billed line-item SKU to the minutes it grants,
// per §6: "minutes derive from the invoice line-item mapping."
var minutesPerUnit = map[string]float64{
	"transcription_minutes_100":  100,
	"transcription_minutes_500":  500,
	"transcription_minutes_2000": 2000,
}

// SubscriptionWebhook implements POST /webhooks/subscription, §6: on
// invoice.paid, credits the customer's balance; idempotency key is the
// event id.
func (c *Collection) SubscriptionWebhook() httprouter.Handle {
	return c.webhookHandler("subscription", "X-Signature", c.subscriptionWebhookSecret, func(ctx context.Context, requestID string, body []byte) {
		var event subscriptionEventBody
		if err := json.Unmarshal(body, &event); err != nil {
			log.LogError(requestID, "subscription webhook: failed to decode payload", err)
			return
		}
		if event.Type != "invoice.paid" {
			log.Log(requestID, "subscription webhook: ignoring non-invoice.paid event", "type", event.Type)
			return
		}

		var minutes float64
		for _, line := range event.Data.Object.Lines.Data {
			minutes += minutesPerUnit[line.SKU] * float64(line.Quantity)
		}
		if minutes <= 0 || event.Data.Object.Customer == "" {
			log.Log(requestID, "subscription webhook: no billable minutes resolved", "event_id", event.ID)
			return
		}

		if err := c.billing.Add(ctx, event.Data.Object.Customer, minutes); err != nil {
			log.LogError(requestID, "subscription webhook: failed to credit balance", err,
				"user_id", event.Data.Object.Customer, "minutes", minutes)
			return
		}
		log.Log(requestID, "subscription webhook credited balance", "user_id", event.Data.Object.Customer, "minutes", minutes)
	})
}

// webhookHandler wraps the shared shape every inbound webhook needs:
// read the raw body, verify its HMAC signature, claim idempotency by
// event id, then hand the already-verified body to process. A duplicate
// delivery or a bad signature never reaches process, per §7.
func (c *Collection) webhookHandler(source, signatureHeader, secret string, process func(ctx context.Context, requestID string, body []byte)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(r)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			xerrors.WriteTaskError(w, requestID, xerrors.New(xerrors.CodeInvalidInput, "cannot read webhook body", err))
			return
		}

		signature := r.Header.Get(signatureHeader)
		if !providers.VerifyWebhookSignature([]byte(secret), body, signature) {
			xerrors.WriteTaskError(w, requestID, xerrors.New(xerrors.CodeUnauthorized, "invalid webhook signature", nil))
			return
		}

		eventID := r.Header.Get("X-Event-Id")
		if eventID == "" {
			eventID = signature
		}
		firstClaim, err := c.webhooks.ClaimWebhookEvent(r.Context(), source, eventID)
		if err != nil {
			xerrors.WriteTaskError(w, requestID, xerrors.New(xerrors.CodeInternalError, "failed to claim webhook event", err))
			return
		}
		if !firstClaim {
			log.Log(requestID, "webhook event already processed, skipping", "source", source, "event_id", eventID)
			w.WriteHeader(http.StatusOK)
			return
		}

		process(r.Context(), requestID, body)
		w.WriteHeader(http.StatusOK)
	}
}
