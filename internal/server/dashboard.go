package server

import "net/http"

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	tmpl := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>georeg</title>
    <style>
        :root {
            --bg-primary: #0f172a;
            --bg-secondary: #1e293b;
            --bg-tertiary: #334155;
            --text-primary: #f8fafc;
            --text-secondary: #cbd5e1;
            --accent: #3b82f6;
            --success: #10b981;
            --warning: #f59e0b;
            --error: #ef4444;
            --border: #475569;
        }

        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif;
            background: var(--bg-primary);
            color: var(--text-primary);
        }

        .header {
            background: var(--bg-secondary);
            padding: 1rem 2rem;
            border-bottom: 1px solid var(--border);
            display: flex;
            justify-content: space-between;
            align-items: center;
        }

        .logo {
            font-size: 1.5rem;
            font-weight: bold;
            color: var(--accent);
        }

        .status-indicator {
            display: flex;
            align-items: center;
            gap: 0.5rem;
        }

        .status-dot {
            width: 10px;
            height: 10px;
            border-radius: 50%;
            background: var(--success);
            animation: pulse 2s infinite;
        }

        @keyframes pulse {
            0% { opacity: 1; }
            50% { opacity: 0.5; }
            100% { opacity: 1; }
        }

        .dashboard {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(420px, 1fr));
            gap: 1rem;
            padding: 2rem;
        }

        .card {
            background: var(--bg-secondary);
            border: 1px solid var(--border);
            border-radius: 8px;
            padding: 1.5rem;
        }

        .card-header {
            display: flex;
            justify-content: space-between;
            align-items: center;
            margin-bottom: 1rem;
            padding-bottom: 0.5rem;
            border-bottom: 1px solid var(--border);
        }

        .card-title {
            font-size: 1.1rem;
            font-weight: 600;
        }

        table {
            width: 100%;
            border-collapse: collapse;
            font-size: 0.9rem;
        }

        th {
            text-align: left;
            color: var(--text-secondary);
            padding: 0.4rem 0.5rem;
            border-bottom: 1px solid var(--border);
        }

        td {
            padding: 0.4rem 0.5rem;
            border-bottom: 1px solid var(--bg-tertiary);
        }

        .badge {
            padding: 0.15rem 0.5rem;
            border-radius: 4px;
            font-size: 0.8rem;
            color: white;
            background: var(--bg-tertiary);
        }

        .badge.completed { background: var(--success); }
        .badge.failed { background: var(--error); }
        .badge.running, .badge.queued { background: var(--warning); }

        .activity-list {
            max-height: 400px;
            overflow-y: auto;
        }

        .activity-item {
            padding: 0.75rem;
            border-bottom: 1px solid var(--border);
            display: flex;
            gap: 1rem;
        }

        .activity-timestamp {
            color: var(--text-secondary);
            font-size: 0.8rem;
            white-space: nowrap;
        }

        .connection-status {
            position: fixed;
            top: 1rem;
            right: 1rem;
            padding: 0.5rem 1rem;
            border-radius: 4px;
            font-size: 0.9rem;
            z-index: 1000;
        }

        .connected { background: var(--success); color: white; }
        .disconnected { background: var(--error); color: white; }
    </style>
</head>
<body>
    <div class="connection-status disconnected" id="connectionStatus">Connecting...</div>

    <header class="header">
        <div class="logo">georeg</div>
        <div class="status-indicator">
            <div class="status-dot"></div>
            <span>Coregistration Monitor</span>
        </div>
    </header>

    <main class="dashboard">
        <div class="card">
            <div class="card-header">
                <h3 class="card-title">Recent Runs</h3>
                <span id="lastUpdate">--</span>
            </div>
            <table>
                <thead>
                    <tr><th>Run</th><th>Type</th><th>Status</th><th>Scenes</th><th>Passed</th><th>Failed</th><th>Created</th></tr>
                </thead>
                <tbody id="runsBody"></tbody>
            </table>
        </div>

        <div class="card">
            <div class="card-header">
                <h3 class="card-title">Live Results</h3>
            </div>
            <div class="activity-list" id="activityList"></div>
        </div>
    </main>

    <script>
        class GeoregDashboard {
            constructor() {
                this.ws = null;
                this.reconnectAttempts = 0;
                this.maxReconnectAttempts = 5;
                this.connect();
                this.loadRuns();
            }

            connect() {
                const protocol = window.location.protocol === 'https:' ? 'wss:' : 'ws:';
                const wsURL = protocol + '//' + window.location.host + '/ws';

                this.ws = new WebSocket(wsURL);

                this.ws.onopen = () => {
                    this.reconnectAttempts = 0;
                    document.getElementById('connectionStatus').textContent = 'Connected';
                    document.getElementById('connectionStatus').className = 'connection-status connected';
                };

                this.ws.onmessage = (event) => {
                    const result = JSON.parse(event.data);
                    this.appendResult(result);
                    this.loadRuns();
                };

                this.ws.onclose = () => {
                    document.getElementById('connectionStatus').textContent = 'Disconnected';
                    document.getElementById('connectionStatus').className = 'connection-status disconnected';
                    this.reconnect();
                };
            }

            reconnect() {
                if (this.reconnectAttempts < this.maxReconnectAttempts) {
                    this.reconnectAttempts++;
                    setTimeout(() => this.connect(), 3000);
                } else {
                    document.getElementById('connectionStatus').textContent = 'Connection Failed';
                }
            }

            async loadRuns() {
                try {
                    const resp = await fetch('/api/runs?limit=20');
                    const data = await resp.json();
                    this.updateRuns(data.runs || []);
                    document.getElementById('lastUpdate').textContent = new Date().toLocaleTimeString();
                } catch (err) {
                    console.error('failed to load runs', err);
                }
            }

            updateRuns(runs) {
                const body = document.getElementById('runsBody');
                body.innerHTML = '';

                runs.forEach(run => {
                    const row = document.createElement('tr');
                    row.innerHTML =
                        '<td>' + run.ID.slice(0, 8) + '</td>' +
                        '<td>' + run.RunType + '</td>' +
                        '<td><span class="badge ' + run.Status + '">' + run.Status + '</span></td>' +
                        '<td>' + run.TotalScenes + '</td>' +
                        '<td>' + run.PassedScenes + '</td>' +
                        '<td>' + run.FailedScenes + '</td>' +
                        '<td>' + new Date(run.CreatedAt).toLocaleString() + '</td>';
                    body.appendChild(row);
                });
            }

            appendResult(result) {
                const container = document.getElementById('activityList');
                const item = document.createElement('div');
                item.className = 'activity-item';

                const summary = result.Summary;
                const label = summary
                    ? 'completed: ' + summary.Passed + ' passed, ' + summary.Failed + ' failed'
                    : 'failed';
                const id = result.Job && result.Job.ID ? result.Job.ID.slice(0, 8) : '';

                item.innerHTML =
                    '<div class="activity-timestamp">' + new Date().toLocaleTimeString() + '</div>' +
                    '<div><div><strong>' + id + '</strong></div>' +
                    '<div>' + label + '</div></div>';

                container.prepend(item);
            }
        }

        new GeoregDashboard();
    </script>
</body>
</html>`

	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(tmpl))
}
