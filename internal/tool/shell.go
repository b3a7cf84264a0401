package tool

import (
	"bytes"
	"fmt"
	"html/template"
)

// Capability allow-list for the embedding element. Everything not named here
// is denied by default; treat it as hardening, not the sole boundary.
const SandboxCapabilities = "allow-scripts allow-same-origin allow-forms allow-modals allow-popups"

// shellTmpl is the host-authored document that wraps the tool's own payload.
// Name and description pass through the template's contextual escaping; the
// payload deliberately does not, because executing it is the feature — the
// isolation boundary contains it, not escaping.
var shellTmpl = template.Must(template.New("shell").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { margin: 0; font-family: system-ui, sans-serif; }
.tool-header { padding: 12px 16px; border-bottom: 1px solid #e0e0e0; }
.tool-header h1 { margin: 0; font-size: 1.1rem; }
.tool-header p { margin: 4px 0 0; font-size: 0.85rem; color: #666; }
.tool-body { padding: 16px; }
</style>
<style>{{.CSS}}</style>
<script>
(function () {
	var log = function (kind, msg) { console.log("[toolhost:" + kind + "]", msg || ""); };
	window.alert = function (m) { log("alert", m); };
	window.confirm = function (m) { log("confirm", m); return false; };
	window.prompt = function (m) { log("prompt", m); return null; };
	window.onbeforeunload = function () { return "navigation blocked"; };
})();
</script>
</head>
<body>
{{- if .ShowHeader}}
<header class="tool-header">
<h1>{{.Name}}</h1>
{{- if .Description}}
<p>{{.Description}}</p>
{{- end}}
</header>
{{- end}}
<div class="tool-body">
{{.HTML}}
</div>
<script>{{.JS}}</script>
<script>window.parent.postMessage("toolhost:ready", "*");</script>
</body>
</html>
`))

// hostTmpl is the viewer page: loading state, the sandboxed embedding element
// carrying the capability allow-list, and the activity beacon. The shell
// document rides in the srcdoc attribute, escaped by the template engine.
var hostTmpl = template.Must(template.New("host").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
<style>
body { margin: 0; font-family: system-ui, sans-serif; }
#loading { padding: 48px; text-align: center; color: #666; }
#frame { display: none; border: 0; width: 100%; height: 100vh; }
</style>
</head>
<body>
<div id="loading">Loading {{.Name}}&hellip;</div>
<iframe id="frame" sandbox="{{.Capabilities}}" srcdoc="{{.ShellDoc}}"></iframe>
<script>
(function () {
	var frame = document.getElementById("frame");
	var loading = document.getElementById("loading");
	var done = function () { loading.style.display = "none"; frame.style.display = "block"; };
	window.addEventListener("message", function (ev) {
		if (ev.data === "toolhost:ready") { done(); }
	});
	frame.addEventListener("load", done);
	frame.addEventListener("error", done);

	var track = function (body) {
		body.sessionId = document.cookie.replace(/(?:(?:^|.*;\s*)toolhost_session\s*=\s*([^;]*).*$)|^.*$/, "$1");
		try {
			navigator.sendBeacon("/api/track", new Blob([JSON.stringify(body)], { type: "application/json" }));
		} catch (e) {}
	};
	["pointerdown", "keydown", "scroll", "touchstart"].forEach(function (ev) {
		window.addEventListener(ev, function () { track({ type: "activity", source: "pointer" }); }, { passive: true });
	});
	document.addEventListener("visibilitychange", function () {
		if (document.visibilityState === "visible") { track({ type: "activity", source: "visible" }); }
	});
	window.addEventListener("pagehide", function () { track({ type: "end" }); });
})();
</script>
</body>
</html>
`))

type shellData struct {
	Name        string
	Description string
	ShowHeader  bool
	CSS         template.CSS
	HTML        template.HTML
	JS          template.JS
}

// ComposeShell builds the isolated document for a hosted tool: host shell,
// then the tool's stylesheet, markup, and script, in that order.
func ComposeShell(def *Definition) ([]byte, error) {
	var buf bytes.Buffer
	err := shellTmpl.Execute(&buf, shellData{
		Name:        def.Name,
		Description: def.Description,
		ShowHeader:  def.ShowHeader,
		CSS:         template.CSS(def.HostedCSS),
		HTML:        template.HTML(def.HostedHTML),
		JS:          template.JS(def.HostedJS),
	})
	if err != nil {
		return nil, fmt.Errorf("compose shell for %q: %w", def.ID, err)
	}
	return buf.Bytes(), nil
}

type hostData struct {
	Name         string
	Capabilities string
	ShellDoc     string
}

// ComposeHost builds the viewer page embedding the shell document.
func ComposeHost(def *Definition, shellDoc []byte) ([]byte, error) {
	var buf bytes.Buffer
	err := hostTmpl.Execute(&buf, hostData{
		Name:         def.Name,
		Capabilities: SandboxCapabilities,
		ShellDoc:     string(shellDoc),
	})
	if err != nil {
		return nil, fmt.Errorf("compose host page for %q: %w", def.ID, err)
	}
	return buf.Bytes(), nil
}
