package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatURL(t *testing.T) {
	tests := []struct {
		base, phone, want string
	}{
		{"https://web.whatsapp.com", "+919876543210", "https://web.whatsapp.com/send?phone=919876543210"},
		{"https://web.whatsapp.com/", "+15551234567", "https://web.whatsapp.com/send?phone=15551234567"},
		{"http://localhost:9222", "+44 7911 123456", "http://localhost:9222/send?phone=447911123456"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChatURL(tt.base, tt.phone))
	}
}

func TestNewWhatsAppWeb_Defaults(t *testing.T) {
	w := NewWhatsAppWeb(WhatsAppOptions{})

	assert.Equal(t, DefaultWhatsAppWebURL, w.opts.BaseURL)
	assert.Equal(t, 60*time.Second, w.opts.ReadyTimeout)
	assert.Equal(t, 30*time.Second, w.opts.SendTimeout)
	assert.Equal(t, DefaultSelectors, w.selectors)

	// Close before any send is a no-op.
	w.Close()
}

func TestNewWhatsAppWeb_CustomSelectors(t *testing.T) {
	sel := Selectors{Composer: "#c", FileInput: "#f", AttachMenu: "#a", Caption: "#cap", SendButton: "#s"}
	w := NewWhatsAppWeb(WhatsAppOptions{Selectors: &sel, ReadyTimeout: time.Second})

	assert.Equal(t, sel, w.selectors)
	assert.Equal(t, time.Second, w.opts.ReadyTimeout)
}

const fakeChatPage = `<!doctype html>
<html><body>
<footer>
  <div id="composer" contenteditable="true">Type a message</div>
  <button id="attach" onclick="document.getElementById('file').style.display = 'inline'">+</button>
  <input id="file" type="file" accept="image/*" style="display:none">
</footer>
<div id="preview" style="display:none">
  <div id="caption" contenteditable="true" role="textbox" style="min-width:200px;min-height:20px"></div>
  <button id="send">Send</button>
</div>
<script>
const file = document.getElementById("file");
file.addEventListener("change", () => {
  document.getElementById("preview").style.display = "block";
});
document.getElementById("send").addEventListener("click", async () => {
  await fetch("/sent", {method: "POST", body: JSON.stringify({
    phone: new URLSearchParams(location.search).get("phone"),
    file: file.files[0].name,
    caption: document.getElementById("caption").textContent,
  })});
  document.getElementById("send").remove();
});
</script>
</body></html>`

var fakeChatSelectors = Selectors{
	Composer:   "#composer",
	AttachMenu: "#attach",
	FileInput:  "#file",
	Caption:    "#caption",
	SendButton: "#send",
}

type sentMessage struct {
	Phone   string `json:"phone"`
	File    string `json:"file"`
	Caption string `json:"caption"`
}

func requireChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome binary found")
}

func newTestWhatsApp(t *testing.T, baseURL string, readyTimeout time.Duration) *WhatsAppWeb {
	t.Helper()
	w := NewWhatsAppWeb(WhatsAppOptions{
		BaseURL:      baseURL,
		UserDataDir:  t.TempDir(),
		Headless:     true,
		NoSandbox:    os.Geteuid() == 0,
		ReadyTimeout: readyTimeout,
		SendTimeout:  20 * time.Second,
		Selectors:    &fakeChatSelectors,
	})
	t.Cleanup(w.Close)
	return w
}

func TestWhatsAppWeb_SendImage(t *testing.T) {
	requireChrome(t)

	sent := make(chan sentMessage, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, fakeChatPage)
	})
	mux.HandleFunc("/sent", func(w http.ResponseWriter, r *http.Request) {
		var msg sentMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err == nil {
			sent <- msg
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	imagePath := writeImage(t)
	w := newTestWhatsApp(t, srv.URL, 30*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	require.NoError(t, w.SendImage(ctx, "+919876543210", imagePath, "Happy New Year 2025!"))

	select {
	case msg := <-sent:
		assert.Equal(t, "919876543210", msg.Phone)
		assert.Equal(t, filepath.Base(imagePath), msg.File)
		assert.Equal(t, "Happy New Year 2025!", msg.Caption)
	case <-time.After(5 * time.Second):
		t.Fatal("the page never reported a sent message")
	}

	first, err := w.browser()
	require.NoError(t, err)
	second, err := w.browser()
	require.NoError(t, err)
	assert.True(t, first == second, "the browser is reused between sends")
}

func TestWhatsAppWeb_ChatNeverReady(t *testing.T) {
	requireChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<!doctype html><p>Scan the QR code to log in</p>")
	}))
	defer srv.Close()

	w := newTestWhatsApp(t, srv.URL, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	err := w.SendImage(ctx, "+919876543210", writeImage(t), "caption")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat did not become ready")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
