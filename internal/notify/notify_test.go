package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func fakeBotAPI(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"casebank","username":"casebank_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			mu.Lock()
			sent = append(sent, r.Form.Get("chat_id")+":"+r.Form.Get("text"))
			mu.Unlock()
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":5,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &sent
}

func TestTelegramNotify(t *testing.T) {
	srv, sent := fakeBotAPI(t)
	n, err := NewTelegramWithEndpoint("TOKEN", srv.URL+"/bot%s/%s", srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new telegram: %v", err)
	}
	if err := n.Notify(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(*sent) != 1 || (*sent)[0] != "42:hello" {
		t.Fatalf("unexpected sends: %v", *sent)
	}
}

func TestTelegramNotifyCancelled(t *testing.T) {
	srv, sent := fakeBotAPI(t)
	n, err := NewTelegramWithEndpoint("TOKEN", srv.URL+"/bot%s/%s", srv.Client(), nil)
	if err != nil {
		t.Fatalf("new telegram: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Notify(ctx, 42, "hello"); err == nil {
		t.Fatal("expected context error")
	}
	if len(*sent) != 0 {
		t.Fatalf("nothing should be sent, got %v", *sent)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf strings.Builder
	n := NewLog(slog.New(slog.NewTextHandler(&buf, nil)))
	if err := n.Notify(context.Background(), 7, "interest credited"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(buf.String(), "interest credited") {
		t.Fatalf("missing log line: %q", buf.String())
	}
}
