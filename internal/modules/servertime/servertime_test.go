package servertime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func setupServerTime(t *testing.T, now func() time.Time) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/server-time", handle(now))
	return r
}

func TestServerTimeOffset(t *testing.T) {
	fixed := time.UnixMilli(1_755_900_000_000)
	r := setupServerTime(t, func() time.Time { return fixed })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/server-time?t1=1755899999000", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var out Exchange
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, int64(1_755_899_999_000), out.T1)
	require.Equal(t, fixed.UnixMilli(), out.T2)
	require.Equal(t, fixed.UnixMilli(), out.T3)
	require.Equal(t, int64(1000), out.Offset)
}

func TestServerTimeWithoutClientTimestamp(t *testing.T) {
	fixed := time.UnixMilli(1_755_900_000_000)
	r := setupServerTime(t, func() time.Time { return fixed })

	for _, q := range []string{"", "?t1=junk", "?t1=-5"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/server-time"+q, nil)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
		require.Contains(t, raw, "t2")
		require.NotContains(t, raw, "t1", "query %q", q)
		require.NotContains(t, raw, "offset", "query %q", q)
	}
}
