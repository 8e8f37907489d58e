package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"post-digest/cmd/internal/trace"
	"post-digest/internal/logger"
	"post-digest/services"
)

type runner interface {
	RunOnce(ctx context.Context) (services.RunReport, error)
	Queue() string
}

// NewRouter 는 워커 트리거 엔드포인트를 등록한다.
// POST / 한 번이 메시지 하나를 임대해 처리한다.
func NewRouter(consumer runner, invocationTimeout time.Duration) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestTrace())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/", runOnceHandler(consumer, invocationTimeout))
	return r
}

func runOnceHandler(consumer runner, invocationTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if invocationTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, invocationTimeout)
			defer cancel()
		}

		report, err := consumer.RunOnce(ctx)
		fields := logger.Fields{
			"request_id": trace.RequestIDFromContext(ctx),
			"queue":      consumer.Queue(),
			"result":     string(report.Result),
		}
		if report.ItemID != 0 {
			fields["item_id"] = report.ItemID
		}
		if err != nil {
			fields["error"] = err.Error()
			logger.ErrorWithFields("worker invocation failed", fields)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}

		switch report.Result {
		case services.ResultEmpty:
			logger.DebugWithFields("queue empty", fields)
			c.Status(http.StatusNoContent)
		case services.ResultAcked:
			logger.InfoWithFields("message processed", fields)
			c.JSON(http.StatusOK, gin.H{"ok": true, "message": report.Message, "item_id": report.ItemID})
		case services.ResultRequeued:
			logger.WarnWithFields("message requeued", fields)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": report.Message, "item_id": report.ItemID})
		default:
			logger.WarnWithFields("message dropped", fields)
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": report.Message, "item_id": report.ItemID})
		}
	}
}
