package handler_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/mcollab/internal/coordinator"
	"github.com/xxxsen/mcollab/internal/docstore"
	"github.com/xxxsen/mcollab/internal/handler"
	"github.com/xxxsen/mcollab/internal/middleware"
)

type testServer struct {
	srv   *httptest.Server
	coord *coordinator.Coordinator
	store docstore.Store
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := docstore.NewMemory()
	coord := coordinator.New(store, coordinator.Options{
		Debounce:    30 * time.Millisecond,
		LoadTimeout: time.Second,
	})
	deps := handler.RouterDeps{
		Sync:      handler.NewSyncHandler(coord, nil, 16),
		Documents: handler.NewDocumentHandler(coord),
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Close(ctx)
		_ = store.Close()
	})
	return &testServer{srv: srv, coord: coord, store: store}
}

func (s *testServer) url(path string) string {
	return s.srv.URL + path
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wireEvent struct {
	Type       string `json:"type"`
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	Version    int64  `json:"version"`
	SessionID  string `json:"session_id"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	Code       int    `json:"code"`
	Retryable  bool   `json:"retryable"`
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func next(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}
