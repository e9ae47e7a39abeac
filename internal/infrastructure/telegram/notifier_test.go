package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPublishReport(t *testing.T) {
	t.Parallel()

	var gotPath, gotChat, gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotPath = r.URL.Path
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier("token123", "42")
	n.apiBase = server.URL
	n.client = server.Client()

	if err := n.PublishReport(context.Background(), "sprite validated after 2 attempts"); err != nil {
		t.Fatalf("PublishReport error: %v", err)
	}
	if gotPath != "/bottoken123/sendMessage" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotChat != "42" || gotText != "sprite validated after 2 attempts" {
		t.Fatalf("unexpected form: chat=%s text=%s", gotChat, gotText)
	}
}

func TestPublishReportErrors(t *testing.T) {
	t.Parallel()

	if err := NewNotifier("", "42").PublishReport(context.Background(), "x"); err == nil {
		t.Fatalf("missing token should fail")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer server.Close()

	n := NewNotifier("t", "1")
	n.apiBase = server.URL
	n.client = server.Client()
	err := n.PublishReport(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestPublishReportSplitsLongReports(t *testing.T) {
	t.Parallel()

	var texts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		texts = append(texts, r.PostForm.Get("text"))
	}))
	defer server.Close()

	n := NewNotifier("t", "1")
	n.apiBase = server.URL
	n.client = server.Client()

	line := strings.Repeat("x", 3000)
	if err := n.PublishReport(context.Background(), line+"\n"+line+"\n"+line); err != nil {
		t.Fatalf("PublishReport error: %v", err)
	}
	if len(texts) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(texts))
	}
	for _, text := range texts {
		if text != line {
			t.Fatalf("a line was cut or merged: %d bytes", len(text))
		}
	}
}

func TestSplitReport(t *testing.T) {
	t.Parallel()

	parts := splitReport("ab\ncd\nefghij", 5)
	want := []string{"ab\ncd", "efghi", "j"}
	if strings.Join(parts, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q, want %q", parts, want)
	}
}
