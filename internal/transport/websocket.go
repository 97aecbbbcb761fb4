package transport

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"specan/internal/dsp"
	applog "specan/internal/log"
)

// spectrumMessage is the JSON payload sent to display clients.
type spectrumMessage struct {
	SampleRate   float64   `json:"sample_rate"`
	MagnitudesDB []float64 `json:"magnitudes_db"`
}

// WebSocketSink serves spectrum frames to browser clients over a
// WebSocket endpoint at /spectrum. Frames are copied into an internal
// broadcast queue so the pipeline loop never blocks on a slow client;
// when the queue is full the frame is dropped.
type WebSocketSink struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan spectrumMessage
	server    *http.Server
	done      chan struct{}
}

// NewWebSocketSink starts the HTTP server and broadcast loop.
func NewWebSocketSink(addr string) *WebSocketSink {
	ws := &WebSocketSink{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan spectrumMessage, 16),
		done:      make(chan struct{}),
	}

	ws.start()
	return ws
}

func (ws *WebSocketSink) start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/spectrum", ws.handleClient)

	ws.server = &http.Server{
		Addr:    ws.addr,
		Handler: mux,
	}

	go func() {
		applog.Infof("websocket: serving spectrum feed on %s/spectrum", ws.addr)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Errorf("websocket: server error: %v", err)
		}
	}()

	go ws.handleBroadcasts()
}

func (ws *WebSocketSink) handleClient(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Errorf("websocket: upgrade error: %v", err)
		return
	}

	ws.clientsMu.Lock()
	ws.clients[conn] = true
	total := len(ws.clients)
	ws.clientsMu.Unlock()
	applog.Infof("websocket: client connected, total: %d", total)

	go func() {
		// Block until the client goes away.
		_, _, err := conn.ReadMessage()
		if err != nil {
			ws.clientsMu.Lock()
			delete(ws.clients, conn)
			total := len(ws.clients)
			ws.clientsMu.Unlock()
			conn.Close()
			applog.Infof("websocket: client disconnected, total: %d", total)
		}
	}()
}

func (ws *WebSocketSink) handleBroadcasts() {
	for {
		select {
		case msg := <-ws.broadcast:
			ws.clientsMu.Lock()
			for client := range ws.clients {
				if err := client.WriteJSON(msg); err != nil {
					applog.Warnf("websocket: dropping client: %v", err)
					client.Close()
					delete(ws.clients, client)
				}
			}
			ws.clientsMu.Unlock()
		case <-ws.done:
			return
		}
	}
}

// Publish queues a copy of the frame for broadcast. Never blocks; the
// frame is dropped when the queue is full or no clients are connected.
func (ws *WebSocketSink) Publish(frame *dsp.Frame) error {
	ws.clientsMu.Lock()
	n := len(ws.clients)
	ws.clientsMu.Unlock()
	if n == 0 {
		return nil
	}

	msg := spectrumMessage{
		SampleRate:   frame.SampleRate,
		MagnitudesDB: append([]float64(nil), frame.MagnitudesDB...),
	}
	select {
	case ws.broadcast <- msg:
	default:
	}
	return nil
}

// Close shuts down the broadcast loop, all client connections and the
// HTTP server.
func (ws *WebSocketSink) Close() error {
	close(ws.done)

	ws.clientsMu.Lock()
	for client := range ws.clients {
		client.Close()
		delete(ws.clients, client)
	}
	ws.clientsMu.Unlock()

	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}

var _ Sink = (*WebSocketSink)(nil)
