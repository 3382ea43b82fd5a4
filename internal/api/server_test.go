package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/taskdock/internal/model"
	"github.com/bryanchriswhite/taskdock/internal/overlay"
	"github.com/bryanchriswhite/taskdock/internal/pins"
	"github.com/bryanchriswhite/taskdock/internal/pipeline"
	"github.com/bryanchriswhite/taskdock/internal/publish"
	"github.com/bryanchriswhite/taskdock/internal/window"
)

type recordingIntents struct {
	mu   sync.Mutex
	got  []pipeline.Intent
	errs map[string]error
}

func (r *recordingIntents) Submit(_ context.Context, in pipeline.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, in)
	return r.errs[fmt.Sprintf("%T", in)]
}

func (r *recordingIntents) last() pipeline.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return nil
	}
	return r.got[len(r.got)-1]
}

var testContainer = model.ContainerID{Display: 1, Space: 0}

func testView(gen uint64) model.View {
	return model.View{
		Generation: gen,
		Containers: []model.ContainerView{
			{ID: testContainer, Windows: []model.Window{{ID: 10, AppID: "term"}, {ID: 11, AppID: "web"}}},
		},
		Aggregate: model.ContainerView{
			ID:      model.AggregateContainer,
			Windows: []model.Window{{ID: 11, AppID: "web"}, {ID: 10, AppID: "term"}},
		},
	}
}

type fixture struct {
	intents *recordingIntents
	hub     *publish.Hub
	pins    *pins.Registry
	overlay *overlay.Manager
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := pins.Open("yaml", filepath.Join(t.TempDir(), "pins.yaml"))
	require.NoError(t, err)
	reg, err := pins.NewRegistry(store)
	require.NoError(t, err)

	f := &fixture{
		intents: &recordingIntents{errs: map[string]error{}},
		hub:     publish.NewHub(),
		pins:    reg,
		overlay: overlay.NewManager(overlay.Settings{Enabled: true, Height: 40}),
	}
	f.handler = NewServer(f.intents, f.hub, f.pins, f.overlay).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"healthy"`)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "OPTIONS", "/api/view", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestViewEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/view", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.hub.Publish(testView(3))

	tests := []struct {
		name string
		path string
		code int
		ids  []model.WindowID
	}{
		{"aggregate", "/api/containers/aggregate", http.StatusOK, []model.WindowID{11, 10}},
		{"space", "/api/containers/1/0", http.StatusOK, []model.WindowID{10, 11}},
		{"unknown space", "/api/containers/9/0", http.StatusNotFound, nil},
		{"reserved space", "/api/containers/0/18446744073709551615", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, "GET", tt.path, "")
			require.Equal(t, tt.code, rec.Code)
			if tt.ids == nil {
				return
			}
			var cv model.ContainerView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cv))
			require.Equal(t, tt.ids, cv.IDs())
		})
	}

	rec = f.do(t, "GET", "/api/view", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v model.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	require.Equal(t, uint64(3), v.Generation)
}

func TestIntentRoutes(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   pipeline.Intent
	}{
		{"move aggregate", "PUT", "/api/containers/aggregate/order", `{"order":[3,1,2]}`,
			pipeline.Move{Container: model.AggregateContainer, Order: []model.WindowID{3, 1, 2}}},
		{"move space", "PUT", "/api/containers/1/2/order", `{"order":[5]}`,
			pipeline.Move{Container: model.ContainerID{Display: 1, Space: 2}, Order: []model.WindowID{5}}},
		{"pin window", "POST", "/api/pins/windows/7", "", pipeline.PinWindow{ID: 7, Op: pipeline.PinOpPin}},
		{"unpin window", "DELETE", "/api/pins/windows/7", "", pipeline.PinWindow{ID: 7, Op: pipeline.PinOpUnpin}},
		{"toggle window", "POST", "/api/pins/windows/7/toggle", "", pipeline.PinWindow{ID: 7, Op: pipeline.PinOpToggle}},
		{"pin app", "POST", "/api/pins/apps/firefox", "", pipeline.PinApp{AppID: "firefox", Op: pipeline.PinOpPin}},
		{"unpin app", "DELETE", "/api/pins/apps/firefox", "", pipeline.PinApp{AppID: "firefox", Op: pipeline.PinOpUnpin}},
		{"activate", "POST", "/api/windows/9/activate", "", pipeline.Activate{ID: 9}},
		{"close", "POST", "/api/windows/9/close", "", pipeline.Close{ID: 9}},
		{"minimize", "POST", "/api/windows/9/minimize", "", pipeline.Minimize{ID: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			require.Equal(t, tt.want, f.intents.last())
		})
	}
}

func TestIntentErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		err  error
		code int
	}{
		{"unknown window", "/api/windows/9/activate", "", fmt.Errorf("activate: %w", pipeline.ErrUnknownWindow), http.StatusNotFound},
		{"unsupported", "/api/windows/9/close", "", fmt.Errorf("close: %w", window.ErrUnsupported), http.StatusConflict},
		{"stopped", "/api/windows/9/minimize", "", pipeline.ErrStopped, http.StatusServiceUnavailable},
		{"other", "/api/windows/9/activate", "", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.intents.errs["pipeline.Activate"] = tt.err
			f.intents.errs["pipeline.Close"] = tt.err
			f.intents.errs["pipeline.Minimize"] = tt.err
			rec := f.do(t, "POST", tt.path, tt.body)
			require.Equal(t, tt.code, rec.Code)
			require.Contains(t, rec.Body.String(), `"error"`)
		})
	}

	f := newFixture(t)
	rec := f.do(t, "PUT", "/api/containers/aggregate/order", `{"order":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Nil(t, f.intents.last())

	rec = f.do(t, "POST", "/api/windows/99999999999/activate", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPins(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pins.Pin(4))
	require.NoError(t, f.pins.PinApp("term"))

	rec := f.do(t, "GET", "/api/pins", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st pins.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, []model.WindowID{4}, st.Windows)
	require.Equal(t, []model.AppID{"term"}, st.Apps)
}

func TestOverlayRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/overlay", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"enabled":true,"height":40,"display":0}`, rec.Body.String())

	rec = f.do(t, "PUT", "/api/overlay", `{"height":64}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, overlay.Settings{Enabled: true, Height: 64}, f.overlay.Settings())
	require.Equal(t, pipeline.Refresh{}, f.intents.last())

	rec = f.do(t, "PUT", "/api/overlay", `{"height":-1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 64, f.overlay.Settings().Height)
}

func TestStream(t *testing.T) {
	f := newFixture(t)
	f.hub.Publish(testView(1))

	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var v model.View
	require.NoError(t, conn.ReadJSON(&v))
	require.Equal(t, uint64(1), v.Generation)

	f.hub.Publish(testView(2))
	require.NoError(t, conn.ReadJSON(&v))
	require.Equal(t, uint64(2), v.Generation)

	conn.Close()
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
