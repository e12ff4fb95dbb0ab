package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskflow/api/transport"
	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/internal/middleware"
	"github.com/fastygo/taskflow/pkg/httpcontext"
	"github.com/fastygo/taskflow/pkg/logger"
)

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data, nil))
}

func (h baseHandler) respondNoContent(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(http.StatusNoContent)
	ctx.ResetBody()
}

func (h baseHandler) respondInvalidPayload(ctx *fasthttp.RequestCtx) {
	h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), domain.ErrInvalidPayload.Message, nil))
}

// respondError writes the envelope for err. Anything without a domain code is
// logged and reported with a generic message.
func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, stdCtx context.Context, err error) {
	status, code := mapError(err)
	if code == domain.ErrCodeInternal {
		logger.WithRequestID(stdCtx, h.logger).Error("request failed",
			zap.String("path", string(ctx.Path())),
			zap.Error(err))
		h.respondJSON(ctx, status, transport.NewError(string(code), "internal server error", nil))
		return
	}

	var meta interface{}
	if field := fieldOf(err); field != "" {
		meta = transport.ErrorMeta{Field: field}
	}
	h.respondJSON(ctx, status, transport.NewError(string(code), messageOf(err), meta))
}

// token returns the bearer token stored by middleware.BearerToken.
func (h baseHandler) token(ctx *fasthttp.RequestCtx) string {
	return middleware.Token(ctx)
}

type authorizer interface {
	Authorize(ctx context.Context, token string) error
}

// authorize answers 401 unless the bearer token identifies a caller. Handlers
// run it before reading input so an expired token never surfaces as a 400.
func (h baseHandler) authorize(ctx *fasthttp.RequestCtx, stdCtx context.Context, uc authorizer) bool {
	if err := uc.Authorize(stdCtx, h.token(ctx)); err != nil {
		h.respondError(ctx, stdCtx, err)
		return false
	}
	return true
}

func mapError(err error) (int, domain.ErrorCode) {
	code := domain.CodeOf(err)
	switch code {
	case domain.ErrCodeInvalid, domain.ErrCodeDuplicateEmail:
		return http.StatusBadRequest, code
	case domain.ErrCodeInvalidCredentials, domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized, code
	case domain.ErrCodeForbidden:
		return http.StatusForbidden, code
	case domain.ErrCodeNotFound:
		return http.StatusNotFound, code
	case domain.ErrCodeTooManyAttempts:
		return http.StatusTooManyRequests, code
	default:
		return http.StatusInternalServerError, domain.ErrCodeInternal
	}
}

func fieldOf(err error) string {
	var dErr *domain.Error
	if errors.As(err, &dErr) {
		return dErr.Field
	}
	return ""
}

func messageOf(err error) string {
	var dErr *domain.Error
	if errors.As(err, &dErr) {
		return dErr.Message
	}
	return err.Error()
}
