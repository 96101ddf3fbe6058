package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// The playback UI proper (Three.js scene, camera controls) ships separately;
// this page is a minimal session browser so a bare deployment is navigable.
const viewerPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Replay Viewer</title>
<style>
body { font-family: sans-serif; margin: 2rem; background: #1e1e2e; color: #cdd6f4; }
a { color: #89b4fa; }
table { border-collapse: collapse; }
td, th { padding: 0.3rem 0.8rem; border-bottom: 1px solid #45475a; text-align: left; }
</style>
</head>
<body>
<h1>Recorded Sessions</h1>
<table id="sessions"><tr><th>Session</th><th>Game</th><th>Frames</th><th>Last Frame</th></tr></table>
<script>
fetch('/api/servers').then(r => r.json()).then(servers => {
  const table = document.getElementById('sessions');
  for (const s of servers) {
    const row = table.insertRow();
    row.insertCell().innerHTML = '<a href="/api/server/' + encodeURIComponent(s.server_id) + '/frames">' + s.server_id + '</a>';
    row.insertCell().textContent = s.game_name;
    row.insertCell().textContent = s.frame_count;
    row.insertCell().textContent = s.last_frame;
  }
});
</script>
</body>
</html>`

func (h *httpHandler) handleViewer(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(viewerPage))
}
