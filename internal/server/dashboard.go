package server

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/zuckdorsey/inputtrace/internal/db"
	"github.com/zuckdorsey/inputtrace/internal/models"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>inputtrace</title>
<style>
  body { font-family: monospace; margin: 2em; background: #111; color: #ddd; }
  h1 { font-size: 1.2em; }
  table { border-collapse: collapse; width: 100%; }
  th, td { text-align: left; padding: 4px 10px; border-bottom: 1px solid #333; }
  th { color: #888; }
  .kinds span { margin-right: 1.5em; color: #9c9; }
  .redacted { color: #c66; }
</style>
</head>
<body>
<h1>inputtrace &mdash; {{.Total}} events</h1>
<p class="kinds">{{range .ByKind}}<span>{{.Kind}}: {{.Count}}</span>{{end}}</p>
<table id="events">
<tr><th>time</th><th>kind</th><th>window</th><th>detail</th></tr>
{{range .Events}}
<tr>
  <td>{{.TSISO}}</td>
  <td>{{.Kind}}</td>
  <td{{if .Redacted}} class="redacted"{{end}}>{{.Window}}</td>
  <td>{{if .Key}}{{.Key}}{{else if .Button}}{{.Button}} @ {{.X}},{{.Y}}{{else if or .DeltaX .DeltaY}}scroll {{.DeltaX}},{{.DeltaY}}{{else}}{{.X}},{{.Y}}{{end}}</td>
</tr>
{{end}}
</table>
<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  ws.onmessage = function (msg) {
    var data = JSON.parse(msg.data);
    var table = document.getElementById("events");
    (data.events || []).forEach(function (e) {
      var row = table.insertRow(1);
      var detail = e.key || (e.button ? e.button + " @ " + e.x + "," + e.y : "");
      [e.ts_iso, e.kind, e.window || "", detail].forEach(function (v) {
        row.insertCell(-1).textContent = v;
      });
    });
  };
})();
</script>
</body>
</html>
`))

type dashboardData struct {
	Total  int64
	ByKind []db.KindCount
	Events []models.Event
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	total, err := db.CountEvents(s.DB)
	if err != nil {
		s.Logger.Error("count events failed", zap.Error(err))
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}
	byKind, err := db.CountEventsByKind(s.DB)
	if err != nil {
		s.Logger.Error("count events by kind failed", zap.Error(err))
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}
	events, err := db.ListRecentEvents(s.DB, s.DashboardLimit)
	if err != nil {
		s.Logger.Error("list events failed", zap.Error(err))
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, dashboardData{Total: total, ByKind: byKind, Events: events}); err != nil {
		s.Logger.Error("render dashboard failed", zap.Error(err))
	}
}
