package middleware

import (
	"bytes"
	"encoding/json"
	"io"

	"studyprogress/internal/observability"
	contextutils "studyprogress/internal/utils"

	"github.com/gin-gonic/gin"
)

// RequestValidationMiddleware validates JSON request bodies against the schema registered
// for the matched route. Routes without a schema pass through untouched.
func RequestValidationMiddleware(loader *SchemaLoader, logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		schemaName, ok := loader.SchemaFor(c.Request.Method, c.FullPath())
		if !ok {
			c.Next()
			return
		}

		ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "request_validation")
		defer span.End()

		var body []byte
		if c.Request.Body != nil {
			var err error
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "Failed to read request body"))
				c.Abort()
				return
			}
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if len(bytes.TrimSpace(body)) == 0 {
			body = []byte("{}")
		}

		var payload interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			HandleAppError(c, contextutils.NewAppErrorWithCause(
				contextutils.ErrorCodeInvalidInput,
				contextutils.SeverityWarn,
				"Invalid JSON",
				err.Error(),
				err,
			))
			c.Abort()
			return
		}

		if err := loader.ValidateData(payload, schemaName); err != nil {
			logger.Warn(ctx, "Request validation failed", map[string]interface{}{
				"http.method": c.Request.Method,
				"http.route":  c.FullPath(),
				"schema_name": schemaName,
				"error":       err.Error(),
			})
			HandleAppError(c, err)
			c.Abort()
			return
		}

		c.Next()
	}
}
