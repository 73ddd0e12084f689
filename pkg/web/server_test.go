package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/teslashibe/go-snapcam/pkg/camera"
	"github.com/teslashibe/go-snapcam/pkg/save"
	"github.com/teslashibe/go-snapcam/pkg/session"
)

type fixture struct {
	srv  *Server
	sess *session.Session
	src  *camera.MockSource
	mgr  *camera.Manager
}

func newFixture(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()
	src := camera.NewMockSource(nil, camera.WithNativeSize(320, 240))
	srv := NewServer(Config{}, nil)
	opts = append([]session.Option{session.WithPreview(srv), session.WithNotifier(srv)}, opts...)
	sess := session.New(session.DefaultConfig(), src, opts...)
	mgr := camera.NewManager(camera.DefaultConfig())
	srv.Attach(sess, mgr)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return &fixture{srv: srv, sess: sess, src: src, mgr: mgr}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.srv.App().Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "GET", "/api/status", "")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var st struct {
		State      string `json:"state"`
		Streaming  bool   `json:"streaming"`
		Previewing bool   `json:"previewing"`
	}
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode: %v (%s)", err, body)
	}
	if st.State != "idle" || !st.Streaming || !st.Previewing {
		t.Errorf("status = %+v", st)
	}
}

func TestNoSessionAttached(t *testing.T) {
	srv := NewServer(Config{}, nil)
	resp, err := srv.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestCaptureAndImage(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "GET", "/api/image", "")
	if resp.StatusCode != 404 {
		t.Errorf("image before capture: status = %d, want 404", resp.StatusCode)
	}

	resp, body := f.do(t, "POST", "/api/capture", "")
	if resp.StatusCode != 200 {
		t.Fatalf("capture status = %d (%s)", resp.StatusCode, body)
	}
	var out struct {
		Captured bool `json:"captured"`
		Image    struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"image"`
	}
	json.Unmarshal(body, &out)
	if !out.Captured || out.Image.Width != 320 || out.Image.Height != 240 {
		t.Errorf("capture = %s", body)
	}
	if f.srv.previewing() {
		t.Error("preview still bound after capture")
	}

	resp, body = f.do(t, "GET", "/api/image", "")
	if resp.StatusCode != 200 {
		t.Fatalf("image status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if _, err := jpeg.Decode(bytes.NewReader(body)); err != nil {
		t.Errorf("image is not JPEG: %v", err)
	}

	// A second capture is a no-op.
	_, body = f.do(t, "POST", "/api/capture", "")
	json.Unmarshal(body, &out)
	if out.Captured {
		t.Error("second capture should not capture")
	}
}

func TestCaptureWithMode(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "POST", "/api/capture", `{"mode":"aspect","ratio":1}`)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d (%s)", resp.StatusCode, body)
	}
	img := f.sess.Image()
	if img == nil || img.Width() != img.Height() {
		t.Errorf("aspect capture produced %v", img)
	}
}

func TestCaptureBadMode(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "POST", "/api/capture", `{"mode":"aspect","ratio":-2}`)
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if f.sess.State() != session.StateIdle {
		t.Error("bad mode should not capture")
	}
}

func TestCaptureOversizedOverlay(t *testing.T) {
	f := newFixture(t)

	body := `{"mode":"overlay","display":{"width":640,"height":360},` +
		`"overlay":{"x":100,"y":50,"width":200,"height":200},"size":2147483648}`
	resp, _ := f.do(t, "POST", "/api/capture", body)
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if f.sess.State() != session.StateIdle {
		t.Error("oversized overlay should not capture")
	}

	// The session must still be usable afterwards.
	resp, _ = f.do(t, "POST", "/api/capture", "")
	if resp.StatusCode != 200 {
		t.Errorf("follow-up capture status = %d, want 200", resp.StatusCode)
	}
	if f.sess.State() != session.StateCaptured {
		t.Errorf("state = %v, want Captured", f.sess.State())
	}
}

func TestRetake(t *testing.T) {
	f := newFixture(t)
	f.do(t, "POST", "/api/capture", "")

	resp, _ := f.do(t, "POST", "/api/retake", "")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if f.sess.State() != session.StateIdle || !f.srv.previewing() {
		t.Error("retake should return to a live preview")
	}
}

func TestSaveEndpoint(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, session.WithSaver(save.NewFileSaver(dir)))

	_, body := f.do(t, "POST", "/api/save", "")
	if !bytes.Contains(body, []byte(`"saved":false`)) {
		t.Errorf("save without still = %s", body)
	}

	f.do(t, "POST", "/api/capture", "")
	resp, body := f.do(t, "POST", "/api/save", "")
	if resp.StatusCode != 200 || !bytes.Contains(body, []byte(`"saved":true`)) {
		t.Errorf("save = %d %s", resp.StatusCode, body)
	}

	notes := f.srv.Notifications()
	if len(notes) == 0 || notes[len(notes)-1].Kind != session.KindSaved {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestSendWithoutTransport(t *testing.T) {
	f := newFixture(t)
	f.do(t, "POST", "/api/capture", "")

	resp, _ := f.do(t, "POST", "/api/send", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	notes := f.srv.Notifications()
	if len(notes) == 0 || notes[len(notes)-1].Kind != session.KindConnectionError {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestCameraSettings(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "PUT", "/api/camera", `{"preset":"document"}`)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d (%s)", resp.StatusCode, body)
	}
	if got := f.mgr.GetConfig().FacingMode; got != camera.FacingEnvironment {
		t.Errorf("manager FacingMode = %q", got)
	}
	if got := f.sess.Stream().Settings().FacingMode; got != camera.FacingEnvironment {
		t.Errorf("stream FacingMode = %q, want reacquired with environment", got)
	}
	if f.src.ActiveStreams() != 1 {
		t.Errorf("ActiveStreams() = %d", f.src.ActiveStreams())
	}

	resp, _ = f.do(t, "PUT", "/api/camera", `{"width":-5}`)
	if resp.StatusCode != 400 {
		t.Errorf("invalid width: status = %d, want 400", resp.StatusCode)
	}
	resp, _ = f.do(t, "PUT", "/api/camera", `{"zoom":2}`)
	if resp.StatusCode != 400 {
		t.Errorf("unknown key: status = %d, want 400", resp.StatusCode)
	}

	resp, body = f.do(t, "GET", "/api/camera/presets", "")
	if resp.StatusCode != 200 || !bytes.Contains(body, []byte("document")) {
		t.Errorf("presets = %d %s", resp.StatusCode, body)
	}
}

func TestPushFrame(t *testing.T) {
	f := newFixture(t)

	if !f.srv.pushFrame() {
		t.Fatal("pushFrame() = false with a bound stream")
	}
	if f.srv.FramesSent() != 1 {
		t.Errorf("FramesSent() = %d", f.srv.FramesSent())
	}

	f.sess.Capture()
	if f.srv.pushFrame() {
		t.Error("pushFrame() should not send after capture")
	}
}

func TestPreviewFeed(t *testing.T) {
	f := newFixture(t)
	f.srv.cfg.Addr = "127.0.0.1:18291"
	f.srv.cfg.PreviewInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.srv.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	ws, _, err := gorilla.DefaultDialer.Dial("ws://127.0.0.1:18291/ws/preview", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	typ, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if typ != gorilla.BinaryMessage {
		t.Errorf("type = %d, want binary", typ)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("preview frame is not JPEG: %v", err)
	}
	if cfg.Width != 320 || cfg.Height != 240 {
		t.Errorf("frame = %dx%d", cfg.Width, cfg.Height)
	}
}

func TestStatusFeed(t *testing.T) {
	f := newFixture(t)
	f.srv.cfg.Addr = "127.0.0.1:18292"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.srv.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	ws, _, err := gorilla.DefaultDialer.Dial("ws://127.0.0.1:18292/ws/status", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ws.Close()
	time.Sleep(50 * time.Millisecond)

	f.do(t, "POST", "/api/capture", "")

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != "status" || ev.Status == nil || ev.Status.State != session.StateCaptured {
		t.Errorf("event = %s", data)
	}
}
