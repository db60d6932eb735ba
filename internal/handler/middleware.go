package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/repository"
	"github.com/gvafram3/parcel-console/internal/service"
	"github.com/gvafram3/parcel-console/pkg/response"
)

const (
	requestIDHeader = "X-Request-ID"
	ctxUserKey      = "user"
)

// RequestLogger logs one line per request and echoes (or assigns) a request id.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(requestIDHeader, rid)
		c.Next()

		ev := log.Debug()
		if c.Writer.Status() >= 500 {
			ev = log.Error()
		}
		ev.Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("query", c.Request.URL.RawQuery).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

// RequireAuth resolves the bearer token to an active user or answers 401.
func RequireAuth(tokens repository.TokenRepository, users repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		token := strings.TrimSpace(raw)
		if !ok || token == "" {
			response.WriteError(c, response.ErrUnauthorized)
			return
		}
		ctx := c.Request.Context()
		userID, err := tokens.Resolve(ctx, token)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				err = response.ErrUnauthorized
			}
			response.WriteError(c, err)
			return
		}
		u, err := users.GetByID(ctx, userID)
		if err != nil || !u.Active {
			response.WriteError(c, response.ErrUnauthorized)
			return
		}
		c.Set(ctxUserKey, u)
		c.Next()
	}
}

func currentUser(c *gin.Context) model.User {
	u, _ := c.MustGet(ctxUserKey).(model.User)
	return u
}

var tagNamesOnce sync.Once

// useFormFieldNames makes binding errors name fields the way clients spell them.
func useFormFieldNames() {
	tagNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"form", "json"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
}

// bindError turns a gin binding failure into an aggregated validation error.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return service.InvalidInput(service.FieldError{Field: "request", Message: "malformed request"})
	}
	fields := make([]service.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		fields = append(fields, service.FieldError{Field: fe.Field(), Message: msg})
	}
	return service.InvalidInput(fields...)
}
