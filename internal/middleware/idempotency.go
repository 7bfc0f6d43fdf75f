package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderIdempotencyHit = "X-Idempotency-Hit"

	idempotencyProcessing = "PROCESSING"
	// lockTTL releases the key if the process dies mid-request.
	lockTTL = 30 * time.Second
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// POST requests. Responses with status >= 500 are not stored. If Redis is
// unavailable the request is processed normally. A nil client disables it.
func Idempotency(rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		redisKey := "idempotency:" + c.Request.Method + ":" + routeOf(c) + ":" + key

		val, err := rdb.Get(ctx, redisKey).Result()
		switch {
		case err == nil:
			if val == idempotencyProcessing {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this Idempotency-Key is still in progress"})
				return
			}
			var stored storedResponse
			if jerr := json.Unmarshal([]byte(val), &stored); jerr == nil {
				c.Header(HeaderIdempotencyHit, "true")
				c.Data(stored.Status, stored.ContentType, stored.Body)
				c.Abort()
				return
			}
			slog.Warn("idempotency: corrupt stored response, processing request", "key", key)
			c.Next()
			return
		case err != redis.Nil:
			slog.Warn("idempotency: redis unavailable, processing request", "error", err)
			c.Next()
			return
		}

		acquired, err := rdb.SetNX(ctx, redisKey, idempotencyProcessing, lockTTL).Result()
		if err != nil {
			slog.Warn("idempotency: lock failed, processing request", "error", err)
			c.Next()
			return
		}
		if !acquired {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this Idempotency-Key is still in progress"})
			return
		}

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw
		c.Next()

		status := cw.Status()
		if status >= 500 {
			if err := rdb.Del(ctx, redisKey).Err(); err != nil {
				slog.Warn("idempotency: release key", "error", err)
			}
			return
		}
		data, err := json.Marshal(storedResponse{
			Status:      status,
			ContentType: cw.Header().Get("Content-Type"),
			Body:        cw.buf.Bytes(),
		})
		if err == nil {
			err = rdb.Set(ctx, redisKey, data, ttl).Err()
		}
		if err != nil {
			slog.Warn("idempotency: store response", "error", err)
		}
	}
}
