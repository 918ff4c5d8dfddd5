// Package server exposes the HTTP surface: WebSocket upgrades, the health
// endpoint, and a self-contained demo page.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// NewWebSocketHandler upgrades requests on /ws and hands the connection to
// the hub. The session identifier is assigned here, at the transport
// boundary, and stays opaque to clients until they see it in init_state.
func NewWebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, hub, uuid.NewString(), r.RemoteAddr)

		// The hub registers the session and launches the pump goroutines.
		// If the upgrade raced hub shutdown, nobody is receiving; drop the
		// connection instead of blocking forever.
		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			slog.Warn("hub is shut down; closing new connection", "addr", r.RemoteAddr)
			_ = conn.Close()
		}
	}
}

type healthResponse struct {
	Status         string `json:"status"`
	ConnectedUsers int    `json:"connected_users"`
}

// NewHealthHandler reports process liveness plus the current session count.
// It reads the registry directly and never interacts with hub ordering.
func NewHealthHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := healthResponse{Status: "ok", ConnectedUsers: registry.Count()}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Warn("writing health response", "error", err)
		}
	}
}

// DemoPageHandler serves a minimal page that connects to /ws, reports a
// synthetic random walk, and renders peer updates as text. Useful for
// eyeballing the broadcast behavior without the real map frontend.
func DemoPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := w.Write([]byte(demoPage)); err != nil {
		slog.Warn("writing demo page", "error", err)
	}
}

const demoPage = `<!DOCTYPE html>
<html>
<head>
    <title>GeoPulse Demo</title>
    <style>
        body { font-family: monospace; margin: 20px; }
        #log { border: 1px solid #ccc; height: 320px; padding: 10px; overflow-y: scroll; margin: 10px 0; background: #f9f9f9; }
        button { padding: 5px 15px; cursor: pointer; }
    </style>
</head>
<body>
    <h1>GeoPulse Demo</h1>
    <button id="connect" onclick="toggle()">Connect</button>
    <button id="report" onclick="report()" disabled>Report position</button>
    <div id="log"></div>
    <script>
        let ws = null;
        let userId = null;
        let lat = 52.2297, lon = 21.0122;
        const log = (line) => {
            const el = document.createElement('div');
            el.textContent = line;
            const box = document.getElementById('log');
            box.appendChild(el);
            box.scrollTop = box.scrollHeight;
        };
        function toggle() {
            if (ws) { ws.close(); return; }
            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = () => {
                document.getElementById('connect').textContent = 'Disconnect';
                document.getElementById('report').disabled = false;
            };
            ws.onclose = () => {
                ws = null;
                userId = null;
                document.getElementById('connect').textContent = 'Connect';
                document.getElementById('report').disabled = true;
                log('closed');
            };
            ws.onmessage = (e) => {
                const msg = JSON.parse(e.data);
                if (msg.event === 'init_state' && !userId) {
                    for (const id in msg.data) {
                        if (msg.data[id].latitude === null) userId = id;
                    }
                }
                log(msg.event + ' ' + (msg.data !== undefined ? JSON.stringify(msg.data) : ''));
            };
        }
        function report() {
            if (!ws || !userId) return;
            lat += (Math.random() - 0.5) / 100;
            lon += (Math.random() - 0.5) / 100;
            ws.send(JSON.stringify({
                event: 'location_acquired',
                data: { userId: userId, latitude: lat, longitude: lon }
            }));
        }
    </script>
</body>
</html>`
