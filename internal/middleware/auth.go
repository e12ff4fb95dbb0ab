package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskflow/api/transport"
	"github.com/fastygo/taskflow/domain"
)

const tokenKey = "bearer_token"

// BearerToken rejects requests without an Authorization bearer token and
// stores the raw token for the handler. Validation happens in the use cases,
// which resolve the caller from the token on every call.
func BearerToken(logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			token := extractToken(ctx)
			if token == "" {
				logger.Debug("missing bearer token", zap.String("path", string(ctx.Path())))
				unauthorized(ctx)
				return
			}
			ctx.SetUserValue(tokenKey, token)
			next(ctx)
		}
	}
}

// Token returns the bearer token stored by BearerToken.
func Token(ctx *fasthttp.RequestCtx) string {
	token, _ := ctx.UserValue(tokenKey).(string)
	return token
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := strings.TrimSpace(string(ctx.Request.Header.Peek("Authorization")))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

func unauthorized(ctx *fasthttp.RequestCtx) {
	body, _ := json.Marshal(transport.NewError(string(domain.ErrCodeUnauthorized), domain.ErrUnauthorized.Message, nil))
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(http.StatusUnauthorized)
	ctx.SetBody(body)
}
