/**
 * @description
 * HTTP handlers for the payout gateway: the inbound payment webhook and the internal
 * ledger query endpoint. Handlers read the request, call the application service and
 * write the JSON response.
 *
 * @dependencies
 * - github.com/google/uuid: For request ids when the caller sends none.
 * - internal/app, internal/domain: For service logic and models.
 */

package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/transfa/payout-gateway/internal/domain"
)

const requestIDHeader = "X-Request-ID"

// WebhookProcessor is the application service as seen by the HTTP layer.
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, requestID string, body []byte, signature string) (*domain.WebhookResult, error)
	LedgerRecords(ctx context.Context, reference string, limit int) ([]domain.LedgerRecord, error)
}

// GatewayHandlers holds the application service that handlers will use.
type GatewayHandlers struct {
	service         WebhookProcessor
	signatureHeader string
	maxBodyBytes    int64
}

type rejectionResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type ledgerRecordsResponse struct {
	Reference string                `json:"reference"`
	Records   []domain.LedgerRecord `json:"records"`
}

// NewGatewayHandlers creates a new instance of GatewayHandlers.
func NewGatewayHandlers(service WebhookProcessor, signatureHeader string, maxBodyBytes int64) *GatewayHandlers {
	if signatureHeader == "" {
		signatureHeader = "X-FIM-Signature"
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &GatewayHandlers{
		service:         service,
		signatureHeader: signatureHeader,
		maxBodyBytes:    maxBodyBytes,
	}
}

// WebhookHandler accepts one signed payment document.
func (h *GatewayHandlers) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		log.Printf("level=warn component=http msg=\"read webhook body failed\" request_id=%s err=%q", requestID, err)
		h.writeFailure(w, err)
		return
	}

	result, err := h.service.ProcessWebhook(r.Context(), requestID, body, r.Header.Get(h.signatureHeader))
	if err != nil {
		if errorKind(err) == "internal" {
			log.Printf("level=error component=http msg=\"webhook processing failed\" request_id=%s err=%q", requestID, err)
		}
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// LedgerRecordsHandler lists ledger rows for a remittance reference.
func (h *GatewayHandlers) LedgerRecordsHandler(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		writeRejection(w, http.StatusBadRequest, "validation", "reference query parameter is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeRejection(w, http.StatusBadRequest, "validation", "limit must be an integer")
			return
		}
		limit = parsed
	}

	records, err := h.service.LedgerRecords(r.Context(), reference, limit)
	if err != nil {
		subject, _ := GetSubject(r.Context())
		log.Printf("level=error component=http msg=\"ledger query failed\" subject=%s reference=%q err=%q", subject, reference, err)
		writeRejection(w, http.StatusInternalServerError, "internal", "Unable to query ledger")
		return
	}
	if records == nil {
		records = []domain.LedgerRecord{}
	}

	h.writeJSON(w, http.StatusOK, ledgerRecordsResponse{Reference: reference, Records: records})
}

func (h *GatewayHandlers) writeFailure(w http.ResponseWriter, err error) {
	writeRejection(w, httpStatus(err), errorKind(err), publicMessage(err))
}

// writeJSON is a helper for writing JSON responses.
func (h *GatewayHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, data)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeRejection is a helper for writing JSON error responses.
func writeRejection(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, rejectionResponse{Status: domain.WebhookRejected, Error: kind, Message: message})
}
