package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mcollab/internal/coordinator"
	"github.com/xxxsen/mcollab/internal/model"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
	"github.com/xxxsen/mcollab/internal/protocol"
	"github.com/xxxsen/mcollab/internal/session"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	maxFrameSize    = 4 << 20
	disconnectWait  = 10 * time.Second
	defaultSendSize = 256
)

// SyncHandler upgrades editor connections and feeds their frames to the
// coordinator. One connection is one session.
type SyncHandler struct {
	coord     *coordinator.Coordinator
	upgrader  websocket.Upgrader
	sendQueue int
}

func NewSyncHandler(coord *coordinator.Coordinator, origins []string, sendQueue int) *SyncHandler {
	if sendQueue <= 0 {
		sendQueue = defaultSendSize
	}
	return &SyncHandler{
		coord:     coord,
		sendQueue: sendQueue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(origins),
		},
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

func (h *SyncHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logutil.GetLogger(c.Request.Context()).Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	cl := newConnClient(conn, h.sendQueue)
	logger := logutil.GetLogger(c.Request.Context()).With(zap.String("session_id", cl.sess.ID()))
	cl.log = logger
	logger.Info("session connected", zap.String("remote", c.ClientIP()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cl.writeLoop()
	}()

	h.readLoop(ctx, cl)

	cl.shutdown()
	dctx, dcancel := context.WithTimeout(context.Background(), disconnectWait)
	h.coord.Disconnect(dctx, cl.sess.ID(), cl.joinedDocs())
	dcancel()
	wg.Wait()
	_ = conn.Close()
	logger.Info("session disconnected")
}

func (h *SyncHandler) readLoop(ctx context.Context, cl *connClient) {
	cl.conn.SetReadLimit(maxFrameSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cl.log.Debug("read frame failed", zap.Error(err))
			}
			return
		}
		h.dispatch(ctx, cl, data)
	}
}

func (h *SyncHandler) dispatch(ctx context.Context, cl *connClient, data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		cl.log.Warn("drop malformed frame", zap.Int("size", len(data)), zap.Error(err))
		return
	}
	sessionID := cl.sess.ID()
	switch frame.Type {
	case protocol.TypeJoin:
		cl.docs[frame.DocumentID] = struct{}{}
		err = h.coord.Join(ctx, cl.sess, frame.DocumentID)
		if err != nil {
			_ = cl.sess.Send(ctx, protocol.ErrorEvent(frame.DocumentID, err))
		}
	case protocol.TypeChange:
		_, err = h.coord.Change(ctx, frame.ChangeRequest(sessionID))
	case protocol.TypeCursor:
		err = h.coord.UpdatePresence(ctx, sessionID, frame.DocumentID, frame.Cursor())
	case protocol.TypeLeave:
		err = h.coord.Leave(ctx, sessionID, frame.DocumentID)
		delete(cl.docs, frame.DocumentID)
	}
	if err != nil {
		cl.log.Debug("frame rejected",
			zap.String("type", frame.Type),
			zap.String("doc_id", frame.DocumentID),
			zap.Error(err),
		)
	}
}

// connClient owns the write side of one websocket. Events are queued without
// blocking; a client that cannot keep up is disconnected so it can resync
// from a fresh snapshot instead of silently missing changes.
type connClient struct {
	conn  *websocket.Conn
	sess  *session.Session
	queue chan []byte
	done  chan struct{}
	once  sync.Once
	log   *zap.Logger
	// docs is only touched by the read loop.
	docs map[string]struct{}
}

func newConnClient(conn *websocket.Conn, size int) *connClient {
	cl := &connClient{
		conn:  conn,
		queue: make(chan []byte, size),
		done:  make(chan struct{}),
		log:   zap.NewNop(),
		docs:  make(map[string]struct{}),
	}
	cl.sess = session.New(cl.enqueue)
	return cl
}

func (cl *connClient) enqueue(_ context.Context, ev model.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	select {
	case <-cl.done:
		return appErr.ErrClosed
	default:
	}
	select {
	case cl.queue <- data:
		return nil
	default:
		cl.log.Warn("send queue full, dropping connection", zap.Int("queue", cap(cl.queue)))
		cl.shutdown()
		return appErr.ErrSlowConsumer
	}
}

func (cl *connClient) shutdown() {
	cl.once.Do(func() {
		cl.sess.Close()
		close(cl.done)
	})
}

func (cl *connClient) joinedDocs() []string {
	docs := make([]string, 0, len(cl.docs))
	for docID := range cl.docs {
		docs = append(docs, docID)
	}
	return docs
}

func (cl *connClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data := <-cl.queue:
			if err := cl.write(websocket.TextMessage, data); err != nil {
				cl.fail(err)
				return
			}
		case <-ticker.C:
			if err := cl.write(websocket.PingMessage, nil); err != nil {
				cl.fail(err)
				return
			}
		case <-cl.done:
			_ = cl.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			// unblock the read loop when the server side initiated the close
			_ = cl.conn.SetReadDeadline(time.Now().Add(writeWait))
			return
		}
	}
}

func (cl *connClient) write(messageType int, data []byte) error {
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return cl.conn.WriteMessage(messageType, data)
}

func (cl *connClient) fail(err error) {
	if !errors.Is(err, websocket.ErrCloseSent) {
		cl.log.Debug("write frame failed", zap.Error(err))
	}
	cl.shutdown()
	_ = cl.conn.Close()
}
