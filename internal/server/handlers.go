// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, read-only chat views and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Tyrowin/livechat/internal/auth"
)

// WebSocketHandler upgrades the request and hands the new client to the
// hub, which starts its read and write pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg)
	if userID, ok := auth.UserID(r.Context()); ok {
		client.log.Debug("Connection approved by gate", "user_id", userID)
	}

	if !s.hub.Register(client) {
		s.log.Warn("Hub is shutting down; closing new connection", "remote", r.RemoteAddr)
		_ = conn.Close()
	}
}

// MessagesHandler returns the current message log.
func (s *Server) MessagesHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Messages().Snapshot(), s.log)
}

// PresenceHandler returns the usernames currently connected.
func (s *Server) PresenceHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"connectedUsers": s.hub.Presence().Presence(),
	}, s.log)
}

func writeJSON(w http.ResponseWriter, status int, payload any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn("Failed to encode response", "error", err)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Livechat server is running!")
}

// TestPageHandler serves an HTML page to join the chat, send messages and
// watch the log and presence update in real time.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Livechat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #users { color: #555; margin: 10px 0; }
        input[type="text"] {
            width: 300px;
            padding: 5px;
            margin-right: 10px;
        }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status {
            margin: 10px 0;
            padding: 5px;
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Livechat WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="usernameInput" placeholder="Username">
        <input type="text" id="tokenInput" placeholder="Token (optional)">
        <button id="connectButton" onclick="toggleConnection()">Join</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="users"></div>
    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const usersDiv = document.getElementById('users');
        const usernameInput = document.getElementById('usernameInput');
        const tokenInput = document.getElementById('tokenInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function renderLog(entries) {
            messagesDiv.innerHTML = '';
            for (const entry of entries) {
                const line = document.createElement('div');
                const time = new Date(entry.createdAt).toLocaleTimeString();
                line.textContent = '[' + time + '] ' + (entry.username || 'anonymous') + ': ' + entry.message;
                messagesDiv.appendChild(line);
            }
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function renderUsers(users) {
            usersDiv.textContent = 'Connected: ' + users.join(', ');
        }

        function notice(text) {
            const line = document.createElement('div');
            line.style.color = 'gray';
            line.textContent = text;
            messagesDiv.appendChild(line);
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = connected ? 'status connected' : 'status disconnected';
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            usernameInput.disabled = connected;
            connectButton.textContent = connected ? 'Leave' : 'Join';
        }

        function connect() {
            const username = usernameInput.value.trim();
            if (!username) {
                return;
            }
            let url = (location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws';
            const token = tokenInput.value.trim();
            if (token) {
                url += '?token=' + encodeURIComponent(token);
            }
            ws = new WebSocket(url);

            ws.onopen = function() {
                ws.send(JSON.stringify({event: 'join', data: {username: username}}));
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                const frame = JSON.parse(event.data);
                switch (frame.event) {
                case 'history':
                case 'messageLogs':
                    renderLog(frame.data);
                    break;
                case 'userConnected':
                case 'userDisconnected':
                    renderUsers(frame.data.connectedUsers);
                    break;
                case 'error':
                    notice('Error: ' + frame.data.error);
                    break;
                }
            };

            ws.onclose = function() {
                notice('Connection closed');
                updateStatus(false);
                ws = null;
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: 'leave'}));
            } else {
                connect();
            }
        }

        function sendMessage() {
            const message = messageInput.value.trim();
            if (message && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: 'message', data: {message: message}}));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
	_, _ = fmt.Fprint(w, html)
}
