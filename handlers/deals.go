package handlers

import (
	"context"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yourdeals/deals-web/config"
	"github.com/yourdeals/deals-web/middleware"
	"github.com/yourdeals/deals-web/services"
	"github.com/yourdeals/deals-web/services/remoteapi"
	"github.com/yourdeals/deals-web/utils"
	"go.uber.org/zap"
)

// maxDealUploadBytes caps multipart deal bodies forwarded upstream.
const maxDealUploadBytes = 10 << 20

// DealsAPI is the subset of the remote API client used by the deal proxy.
type DealsAPI interface {
	TableData(ctx context.Context, req remoteapi.TableDataRequest) (*remoteapi.Response, error)
	DealDetails(ctx context.Context, req remoteapi.DealDetailsRequest) (*remoteapi.Response, error)
	RandomTopDeals(ctx context.Context, req remoteapi.TopDealsRequest) (*remoteapi.Response, error)
	CreateDeal(ctx context.Context, token, contentType string, body io.Reader) (*remoteapi.Response, error)
	UpdateDeal(ctx context.Context, token, contentType string, body io.Reader) (*remoteapi.Response, error)
	DeleteDeal(ctx context.Context, token string, req remoteapi.DeleteDealRequest) (*remoteapi.Response, error)
}

// DealsHandler forwards deal requests to the remote API. It holds no deal
// logic of its own: it resolves references, attaches the session's bearer
// token and relays replies.
type DealsHandler struct {
	api     DealsAPI
	refs    DealRefCodec
	locales config.LocalesConfig
	logger  *zap.Logger
}

// NewDealsHandler creates a new DealsHandler
func NewDealsHandler(api DealsAPI, refs DealRefCodec, locales config.LocalesConfig, logger *zap.Logger) *DealsHandler {
	return &DealsHandler{
		api:     api,
		refs:    refs,
		locales: locales,
		logger:  logger,
	}
}

// TopDealsRequest is the client body for POST /api/deals/top. The current
// deal is named by reference.
type TopDealsRequest struct {
	CategoryIDs []int64 `json:"categoryIds" validate:"required,min=1"`
	Locale      string  `json:"lg"`
	DealRef     string  `json:"deal_ref"`
}

// HandleTable handles POST /api/deals/table
func (h *DealsHandler) HandleTable(w http.ResponseWriter, r *http.Request) {
	var req remoteapi.TableDataRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if req.Pagination.ItemsPerPage == 0 {
		req.Pagination.ItemsPerPage = 10
	}
	if !h.resolveLocale(w, &req.Locale) {
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	resp, err := h.api.TableData(r.Context(), req)
	h.relayListing(w, r, resp, err)
}

// HandleDetails handles GET /api/deals/{ref}
func (h *DealsHandler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	dealID, err := h.refs.Decode(chi.URLParam(r, "ref"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	locale := r.URL.Query().Get("lng")
	if !h.resolveLocale(w, &locale) {
		return
	}

	resp, err := h.api.DealDetails(r.Context(), remoteapi.DealDetailsRequest{DealID: dealID, Locale: locale})
	if err == nil && resp.StatusCode == http.StatusNotFound {
		HandleServiceError(w, services.ErrDealNotFound.Wrap(nil).WithDetail("deal_id", dealID), h.logger)
		return
	}
	h.relay(w, r, resp, err)
}

// HandleTopDeals handles POST /api/deals/top
func (h *DealsHandler) HandleTopDeals(w http.ResponseWriter, r *http.Request) {
	var body TopDealsRequest
	if err := utils.DecodeJSON(r, &body); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if !h.resolveLocale(w, &body.Locale) {
		return
	}
	if err := utils.ValidateStruct(&body); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	req := remoteapi.TopDealsRequest{CategoryIDs: body.CategoryIDs, Locale: body.Locale}
	if body.DealRef != "" {
		dealID, err := h.refs.Decode(body.DealRef)
		if err != nil {
			HandleServiceError(w, err, h.logger)
			return
		}
		req.DealID = dealID
	}

	resp, err := h.api.RandomTopDeals(r.Context(), req)
	h.relayListing(w, r, resp, err)
}

// HandleCreate handles POST /api/deals
func (h *DealsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	h.forwardMultipart(w, r, h.api.CreateDeal)
}

// HandleUpdate handles PUT /api/deals
func (h *DealsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	h.forwardMultipart(w, r, h.api.UpdateDeal)
}

// HandleDelete handles DELETE /api/deals/{ref}
func (h *DealsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	token, ok := h.bearer(w, r)
	if !ok {
		return
	}
	dealID, err := h.refs.Decode(chi.URLParam(r, "ref"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	locale := r.URL.Query().Get("lng")
	if !h.resolveLocale(w, &locale) {
		return
	}

	resp, err := h.api.DeleteDeal(r.Context(), token, remoteapi.DeleteDealRequest{Locale: locale, DealID: dealID})
	h.relay(w, r, resp, err)
}

type multipartForwarder func(ctx context.Context, token, contentType string, body io.Reader) (*remoteapi.Response, error)

func (h *DealsHandler) forwardMultipart(w http.ResponseWriter, r *http.Request, forward multipartForwarder) {
	token, ok := h.bearer(w, r)
	if !ok {
		return
	}

	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" {
		HandleServiceError(w, services.ErrInvalidInput.Wrap(err).
			WithDetail("content_type", "multipart/form-data required"), h.logger)
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxDealUploadBytes)
	resp, err := forward(r.Context(), token, contentType, body)
	h.relay(w, r, resp, err)
}

// bearer returns the session's access token, answering 401 when absent.
func (h *DealsHandler) bearer(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil || claims.AccessToken() == "" {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return "", false
	}
	return claims.AccessToken(), true
}

func (h *DealsHandler) resolveLocale(w http.ResponseWriter, locale *string) bool {
	resolved, ok := h.locales.Resolve(*locale)
	if !ok {
		HandleServiceError(w, services.ErrInvalidLocale.Wrap(nil).WithDetail("lg", *locale), h.logger)
		return false
	}
	*locale = resolved
	return true
}

// relayListing annotates successful listings with deal references before relaying.
func (h *DealsHandler) relayListing(w http.ResponseWriter, r *http.Request, resp *remoteapi.Response, err error) {
	if err == nil && resp.OK() {
		annotated, annotateErr := remoteapi.AnnotateDealRefs(resp.Body, h.refs.Encode)
		if annotateErr != nil {
			HandleServiceError(w, annotateErr, h.logger)
			return
		}
		resp.Body = annotated
	}
	h.relay(w, r, resp, err)
}

func (h *DealsHandler) relay(w http.ResponseWriter, r *http.Request, resp *remoteapi.Response, err error) {
	if err != nil {
		h.logger.Warn("deal request failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}
	if err := utils.WriteUpstream(w, resp.StatusCode, resp.ContentType, resp.Body); err != nil {
		h.logger.Error("failed to relay deal response", zap.Error(err))
	}
}
