package stations

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"swapstation/internal/domain"
	"swapstation/internal/repository/memory"

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
	var detail struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(e.Errors, &detail))
	return detail.Kind
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	controller := NewController(NewService(memory.NewStore()))

	r := gin.New()
	r.POST("/stations", controller.CreateStation)
	r.GET("/stations", controller.ListStations)
	r.GET("/stations/:stationId", controller.GetStation)
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

func TestStationEndpoints(t *testing.T) {
	r := newRouter()

	w, env := do(t, r, http.MethodPost, "/stations", CreateStationRequest{Name: "Harbour", Code: "hbr1"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created domain.Station
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "HBR1", created.Code)
	assert.Equal(t, domain.StationActive, created.Status)

	w, env = do(t, r, http.MethodPost, "/stations", CreateStationRequest{Name: "Other", Code: "HBR1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", env.kind(t))

	w, env = do(t, r, http.MethodGet, "/stations/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched domain.Station
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	assert.Equal(t, created.ID, fetched.ID)

	w, _ = do(t, r, http.MethodGet, "/stations", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStationEndpointErrors(t *testing.T) {
	r := newRouter()

	w, env := do(t, r, http.MethodGet, "/stations/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", env.kind(t))

	w, _ = do(t, r, http.MethodGet, "/stations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/stations", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
