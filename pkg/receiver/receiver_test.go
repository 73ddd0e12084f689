package receiver

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-snapcam/pkg/protocol"
	"github.com/teslashibe/go-snapcam/pkg/still"
	"github.com/teslashibe/go-snapcam/pkg/transport"
)

func startReceiver(t *testing.T, store UploadStore, addr string) *Hub {
	t.Helper()
	h := NewHub(store, nil)
	app := NewApp(h)
	go app.Listen(addr)
	t.Cleanup(func() { app.Shutdown() })
	time.Sleep(100 * time.Millisecond)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewHub(t *testing.T) {
	h := NewHub(&MemoryStore{}, nil)
	if h.SessionCount() != 0 {
		t.Error("SessionCount should be 0 initially")
	}
	if st := h.GetStats(); st.MessagesReceived != 0 || st.UploadsStored != 0 {
		t.Errorf("GetStats() = %+v", st)
	}
	if h.GetSession("missing") != nil {
		t.Error("GetSession should return nil for unknown id")
	}
}

func TestSessionConnect(t *testing.T) {
	h := startReceiver(t, &MemoryStore{}, "127.0.0.1:18391")

	ws, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18391/ws/session/abc", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	waitFor(t, "session registered", func() bool { return h.SessionCount() == 1 })
	if h.GetSession("abc") == nil {
		t.Error("GetSession(abc) = nil")
	}

	ws.Close()
	waitFor(t, "session removed", func() bool { return h.SessionCount() == 0 })
}

func TestUploadStored(t *testing.T) {
	store := &MemoryStore{}
	h := startReceiver(t, store, "127.0.0.1:18392")

	got := make(chan Received, 1)
	h.OnUpload(func(r Received) { got <- r })

	ws, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18392/ws/session/s1", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ws.Close()

	msg, _ := protocol.NewUpload("selfie.jpg", []byte("jpeg-bytes")).Bytes()
	ws.WriteMessage(websocket.TextMessage, msg)

	select {
	case r := <-got:
		if r.SessionID != "s1" || r.FileName != "selfie.jpg" || r.Size != 10 {
			t.Errorf("Received = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upload not stored")
	}

	ups := store.Uploads()
	if len(ups) != 1 || string(ups[0].Data) != "jpeg-bytes" {
		t.Errorf("Uploads() = %+v", ups)
	}
}

func TestBadUploadsRejected(t *testing.T) {
	store := &MemoryStore{}
	h := startReceiver(t, store, "127.0.0.1:18393")

	ws, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18393/ws/session/s2", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ws.Close()

	bad := []string{
		`not json`,
		`{"fileName":"","data":"aGk="}`,
		`{"fileName":"../x.jpg","data":"aGk="}`,
		`{"fileName":"x.jpg","data":"***"}`,
	}
	for _, m := range bad {
		ws.WriteMessage(websocket.TextMessage, []byte(m))
	}

	waitFor(t, "rejections", func() bool { return h.GetStats().UploadsRejected == uint64(len(bad)) })
	if len(store.Uploads()) != 0 {
		t.Errorf("stored %d bad uploads", len(store.Uploads()))
	}
	// The connection survives bad messages.
	if h.SessionCount() != 1 {
		t.Errorf("SessionCount() = %d, want 1", h.SessionCount())
	}
}

func TestTransportEndToEnd(t *testing.T) {
	dir := t.TempDir()
	h := startReceiver(t, DirStore{Dir: dir}, "127.0.0.1:18394")

	got := make(chan Received, 1)
	h.OnUpload(func(r Received) { got <- r })

	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.White)
	st, err := still.Encode(img, 0.9)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	c := transport.NewClient(transport.Config{
		BaseURL:   "ws://127.0.0.1:18394/ws/session",
		SessionID: "room 7",
	}, nil)
	defer c.Close()

	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Send(ctx, "selfie.jpg", st); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var r Received
	select {
	case r = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("upload not received")
	}
	if r.SessionID != "room 7" {
		t.Errorf("SessionID = %q, want the unescaped id", r.SessionID)
	}
	if filepath.Dir(r.Path) != filepath.Join(dir, "room%207") {
		t.Errorf("Path = %q", r.Path)
	}
	if !strings.HasSuffix(r.Path, "-selfie.jpg") {
		t.Errorf("Path = %q, want <uuid>-selfie.jpg", r.Path)
	}
	data, err := os.ReadFile(r.Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(data, st.Bytes()) {
		t.Error("stored bytes differ from sent still")
	}
}

func TestDirStoreNoOverwrite(t *testing.T) {
	d := DirStore{Dir: t.TempDir()}
	p1, err := d.Store("s", "a.jpg", []byte("1"))
	if err != nil {
		t.Fatal(err)
	}
	p2, err := d.Store("s", "a.jpg", []byte("2"))
	if err != nil {
		t.Fatal(err)
	}
	if p1 == p2 {
		t.Error("second upload overwrote the first")
	}
	if _, err := d.Store("..", "a.jpg", nil); err == nil {
		t.Error("Store(..) should fail")
	}
}

func TestAPIRoutes(t *testing.T) {
	h := NewHub(&MemoryStore{}, nil)
	app := NewApp(h)

	tests := []struct {
		path string
		want string
	}{
		{"/health", `"status":"ok"`},
		{"/api/sessions", `"sessions"`},
		{"/api/stats", `"uploads_stored"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			if err != nil {
				t.Fatalf("Request error: %v", err)
			}
			if resp.StatusCode != 200 {
				t.Errorf("Status = %d, want 200", resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), tt.want) {
				t.Errorf("body = %s, want %s", body, tt.want)
			}
		})
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	app := NewApp(NewHub(&MemoryStore{}, nil))
	resp, err := app.Test(httptest.NewRequest("GET", "/ws/session/x", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("Status = %d, want 426", resp.StatusCode)
	}
}

func TestHealthURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"ws://localhost:8090/ws/session", "http://localhost:8090/health", false},
		{"wss://example.com/ws/session?x=1", "https://example.com/health", false},
		{"http://10.0.0.2:9000", "http://10.0.0.2:9000/health", false},
		{"ftp://host/ws", "", true},
	}
	for _, tt := range tests {
		got, err := HealthURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("HealthURL(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("HealthURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCheckHealth(t *testing.T) {
	startReceiver(t, &MemoryStore{}, "127.0.0.1:18395")

	h, err := CheckHealth(context.Background(), "ws://127.0.0.1:18395/ws/session")
	if err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}
	if h.Status != "ok" {
		t.Errorf("Status = %q", h.Status)
	}

	if _, err := CheckHealth(context.Background(), "ws://127.0.0.1:1/ws/session"); err == nil {
		t.Error("CheckHealth() should fail when nothing listens")
	}
}
