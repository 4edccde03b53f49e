package swaps

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"swapstation/internal/domain"
	"swapstation/internal/shared/middleware"
	"swapstation/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
}

func (e envelope) kind(t *testing.T) string {
	t.Helper()
	var detail response.ErrorDetail
	require.NoError(t, json.Unmarshal(e.Errors, &detail))
	return detail.Kind
}

// as stands in for JWTAuth and authenticates every request as actor.
func as(actor domain.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, actor.ID.String())
		c.Set(middleware.ContextUserRole, string(actor.Role))
		c.Next()
	}
}

func newRouter(h *harness, actor domain.Actor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	controller := NewController(h.svc, 5*time.Second)

	r := gin.New()
	g := r.Group("/swaps", as(actor))
	g.GET("", controller.GetSwapHistory)
	g.GET("/:id", controller.GetSwap)
	g.POST("", controller.InitiateSwap)
	g.POST("/:id/old-battery", controller.InsertOldBattery)
	g.POST("/:id/complete", controller.CompleteSwap)
	g.POST("/:id/cancel", controller.CancelSwap)
	g.POST("/:id/fail", controller.FailSwap)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestSwapEndpointsHappyPath(t *testing.T) {
	h := newHarness(t)
	dropOff := h.pillar(t, 1, 1)
	rack := h.pillar(t, 2, 1)
	h.stock(t, rack[0].ID, "B1", 90, domain.BatteryFull)
	r := newRouter(h, driver)

	w, env := do(t, r, http.MethodPost, "/swaps", InitiateSwapRequest{StationID: h.station.ID.String(), VehicleID: "EV-42"})
	require.Equal(t, http.StatusCreated, w.Code, string(env.Errors))
	var initiated InitiateSwapResponse
	require.NoError(t, json.Unmarshal(env.Data, &initiated))
	assert.Equal(t, dropOff[0].ID, initiated.Instructions.DropOff.SlotID)
	id := initiated.Swap.ID.String()

	w, _ = do(t, r, http.MethodPost, "/swaps/"+id+"/old-battery", InsertOldBatteryRequest{SerialNumber: "OLD-1", SlotID: dropOff[0].ID.String()})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, r, http.MethodPost, "/swaps/"+id+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var completed domain.SwapTransaction
	require.NoError(t, json.Unmarshal(env.Data, &completed))
	assert.Equal(t, domain.SwapCompleted, completed.Status)

	w, env = do(t, r, http.MethodPost, "/swaps/"+id+"/cancel", CloseSwapRequest{Reason: "late"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "invalid_state", env.kind(t))

	w, env = do(t, r, http.MethodGet, "/swaps?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items      []domain.SwapTransaction `json:"items"`
		TotalCount int64                    `json:"total_count"`
		TotalPages int                      `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(1), page.TotalCount)
	assert.Equal(t, 1, page.TotalPages)
}

func TestSwapEndpointsRejectBadInput(t *testing.T) {
	h := newHarness(t)
	r := newRouter(h, driver)

	w, _ := do(t, r, http.MethodPost, "/swaps", InitiateSwapRequest{StationID: "nope", VehicleID: "EV"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := do(t, r, http.MethodPost, "/swaps", InitiateSwapRequest{StationID: h.station.ID.String(), VehicleID: "EV"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "resource_unavailable", env.kind(t))

	w, _ = do(t, r, http.MethodGet, "/swaps/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(t, r, http.MethodGet, "/swaps/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", env.kind(t))

	w, _ = do(t, r, http.MethodGet, "/swaps?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/swaps?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSwapEndpointsScopeToOwner(t *testing.T) {
	h := newHarness(t)
	h.pillar(t, 1, 1)
	rack := h.pillar(t, 2, 1)
	h.stock(t, rack[0].ID, "B1", 90, domain.BatteryFull)
	swap := h.initiate(t, nil)

	stranger := domain.Actor{ID: uuid.New(), Role: domain.RoleDriver}
	r := newRouter(h, stranger)

	w, _ := do(t, r, http.MethodGet, "/swaps/"+swap.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, r, http.MethodPost, "/swaps/"+swap.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// user_id is ignored for drivers
	w, env := do(t, r, http.MethodGet, "/swaps?user_id="+driver.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page response.PaginatedData
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Zero(t, page.TotalCount)

	staff := newRouter(h, operator)
	w, env = do(t, staff, http.MethodGet, "/swaps?user_id="+driver.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(1), page.TotalCount)

	w, env = do(t, staff, http.MethodPost, "/swaps/"+swap.ID.String()+"/fail", CloseSwapRequest{Reason: "bay offline"})
	require.Equal(t, http.StatusOK, w.Code)
	var failed domain.SwapTransaction
	require.NoError(t, json.Unmarshal(env.Data, &failed))
	assert.Equal(t, domain.SwapFailed, failed.Status)
	assert.Equal(t, "bay offline", failed.FailureReason)
}
