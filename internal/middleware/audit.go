package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DownMan01/evot4r/internal/models"
	"github.com/DownMan01/evot4r/internal/repository"
)

// Audit creates a middleware that records audit logs after successful requests.
func Audit(repo *repository.VoterRepository, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var voterID *string
		if claims, ok := c.Get(ContextVoterKey); ok {
			voter := claims.(*models.JWTClaims)
			voterID = &voter.VoterID
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		_ = repo.CreateAuditLog(c.Request.Context(), &models.AuditLog{
			VoterID:    voterID,
			Action:     action,
			Resource:   resource,
			ResourceID: nil,
			NewValues:  body,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		})
	}
}
