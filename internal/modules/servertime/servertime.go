// Package servertime gives the mobile client a clock reference. Streaks
// bucket entries by calendar day, so a device clock that drifts across
// midnight files an entry on the wrong day; the app uses the offset from
// this endpoint to correct timestamps before writing.
package servertime

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Exchange is the three-timestamp reply. t1 echoes the client send time
// when provided, t2/t3 are server receive/reply times in unix millis.
// The client computes offset as ((t2-t1)+(t3-t4))/2 with its own t4.
type Exchange struct {
	T1     int64 `json:"t1,omitempty"`
	T2     int64 `json:"t2"`
	T3     int64 `json:"t3"`
	Offset int64 `json:"offset,omitempty"`
}

func handle(now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := Exchange{T2: now().UnixMilli()}
		if raw := c.Query("t1"); raw != "" {
			if t1, err := strconv.ParseInt(raw, 10, 64); err == nil && t1 > 0 {
				out.T1 = t1
				// One-way estimate; the client halves it against t4.
				out.Offset = out.T2 - t1
			}
		}
		out.T3 = now().UnixMilli()
		c.JSON(http.StatusOK, out)
	}
}

// RegisterRoutes mounts the clock sync endpoint.
func RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/server-time", handle(time.Now))
}
