package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/auth"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/service"
	"github.com/danielmoisemontezima/compliance-payment-service/pkg/utils"
)

const (
	maxBodyBytes   = 1 << 20
	requestTimeout = 30 * time.Second
)

type PaymentController struct {
	service *service.PaymentService
}

func NewPaymentController(service *service.PaymentService) *PaymentController {
	return &PaymentController{service: service}
}

func (c *PaymentController) InitializePayment(w http.ResponseWriter, r *http.Request) {
	provider := model.PaymentProvider(r.PathValue("provider"))

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req model.InitiateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	response, err := c.service.Initiate(ctx, auth.UserID(ctx), provider, req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, response)
}

func (c *PaymentController) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req model.VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	tx, err := c.service.Verify(ctx, auth.UserID(ctx), req.Reference)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, model.TransactionResponse{Transaction: tx})
}

func (c *PaymentController) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tx, err := c.service.GetTransaction(ctx, auth.UserID(ctx), r.PathValue("reference"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, model.TransactionResponse{Transaction: tx})
}

// HandleWebhook needs the body byte-for-byte as sent, since the signature
// covers the raw payload.
func (c *PaymentController) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := model.PaymentProvider(r.PathValue("provider"))

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	result, err := c.service.HandleWebhook(ctx, provider, rawBody, r.Header)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, result)
}

func (c *PaymentController) GetHealthCheck(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"status": "OK",
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

// respondWithServiceError maps the service error taxonomy onto status codes.
// Upstream and persistence details are logged, not returned.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ports.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.RespondWithError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, ports.ErrUnknownProvider), errors.Is(err, ports.ErrMalformedEvent):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ports.ErrUnauthenticated):
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, ports.ErrMissingSignature), errors.Is(err, ports.ErrInvalidSignature):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("rejected webhook signature")
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid signature")
	case errors.Is(err, ports.ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, ports.ErrRateLimited):
		utils.RespondWithError(w, http.StatusTooManyRequests, "Too many requests")
	case errors.Is(err, ports.ErrUpstream):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("payment processor error")
		utils.RespondWithError(w, http.StatusBadGateway, "Payment processor error")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
