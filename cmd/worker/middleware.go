package main

import (
	"time"

	"github.com/gin-gonic/gin"

	"post-digest/cmd/internal/trace"
	"post-digest/internal/logger"
)

// RequestTrace 는 요청마다 Request ID 를 보장해 컨텍스트와 응답 헤더에 싣고, 완료 로그를 남긴다.
// 스케줄러가 보낸 X-Request-Id 가 있으면 그대로 쓴다.
func RequestTrace() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request

		requestID := req.Header.Get(trace.HeaderRequestID)
		if requestID == "" {
			requestID = trace.GenerateID()
		}
		c.Request = req.WithContext(trace.WithRequestID(req.Context(), requestID))
		c.Writer.Header().Set(trace.HeaderRequestID, requestID)

		c.Next()

		logger.InfoWithFields("completed request", logger.Fields{
			"method":     req.Method,
			"path":       req.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
			"request_id": requestID,
		})
	}
}
