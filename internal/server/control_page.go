package server

import (
	"fmt"
	"net/http"
)

// ControlPageHandler serves a browser page that drives the robot with the
// W/A/S/D/X keys and shows live sensor readings.
func ControlPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, controlPage); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

const controlPage = `<!DOCTYPE html>
<html>
<head>
    <title>Robot Bridge Control</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background: #111; color: #eee; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        #pad { display: grid; grid-template-columns: repeat(3, 60px); gap: 6px; margin: 20px 0; }
        #pad button { height: 60px; font-size: 20px; cursor: pointer; }
        #sensor { font-size: 28px; margin: 10px 0; }
        #log { border: 1px solid #444; height: 200px; padding: 10px; overflow-y: scroll; font-family: monospace; }
    </style>
</head>
<body>
    <h1>Robot Bridge Control</h1>

    <div id="status" class="status disconnected">Disconnected</div>
    <div id="device">Device: unknown</div>
    <div id="sensor">--</div>

    <div id="pad">
        <span></span><button data-cmd="W">W</button><span></span>
        <button data-cmd="A">A</button><button data-cmd="X">X</button><button data-cmd="D">D</button>
        <span></span><button data-cmd="S">S</button><span></span>
    </div>

    <div id="log"></div>

    <script>
        const statusDiv = document.getElementById('status');
        const deviceDiv = document.getElementById('device');
        const sensorDiv = document.getElementById('sensor');
        const logDiv = document.getElementById('log');
        let ws = null;

        function log(text) {
            const line = document.createElement('div');
            line.textContent = new Date().toLocaleTimeString() + ' ' + text;
            logDiv.appendChild(line);
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function setConnected(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');

            ws.onopen = function() { setConnected(true); };
            ws.onclose = function() {
                setConnected(false);
                ws = null;
                setTimeout(connect, 2000);
            };
            ws.onmessage = function(event) {
                const msg = JSON.parse(event.data);
                switch (msg.type) {
                case 'connected':
                    deviceDiv.textContent = 'Device: ' + ((msg.deviceConnected || msg.arduinoConnected) ? 'connected' : 'not connected');
                    break;
                case 'sensorData':
                    sensorDiv.textContent = msg.data;
                    break;
                case 'commandResult':
                    log(msg.command + (msg.success ? ' sent' : ' failed'));
                    break;
                case 'status':
                    deviceDiv.textContent = 'Device: ' + msg.message;
                    log(msg.message);
                    break;
                }
            };
        }

        function send(cmd) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ type: 'command', command: cmd }));
            }
        }

        document.querySelectorAll('#pad button').forEach(function(btn) {
            btn.addEventListener('click', function() { send(btn.dataset.cmd); });
        });

        document.addEventListener('keydown', function(e) {
            if (e.repeat) { return; }
            const key = e.key.toUpperCase();
            if (['W', 'A', 'S', 'D', 'X'].includes(key)) {
                send(key);
            }
        });

        connect();
    </script>
</body>
</html>`
