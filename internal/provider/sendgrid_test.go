package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendGridSenderSendEmail(t *testing.T) {
	t.Parallel()

	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sg-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode error = %v", err)
		}
		w.Header().Set("X-Message-Id", "sg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	s, err := NewSendGridSender(SendGridConfig{
		Host:      server.URL,
		APIKey:    "sg-key",
		FromName:  "Academic Affairs Department",
		FromEmail: "academic.affairs@edunotify.ng",
	})
	if err != nil {
		t.Fatalf("NewSendGridSender() error = %v", err)
	}

	resp, err := s.SendEmail(context.Background(), EmailMessage{
		ToName:  "Ada Obi",
		ToEmail: "ada@mapoly.edu.ng",
		Subject: "Academic Results Published",
		HTML:    "<p>results</p>",
		Text:    "results",
	})
	if err != nil {
		t.Fatalf("SendEmail() error = %v", err)
	}
	if resp.StatusCode != http.StatusAccepted || resp.MessageID != "sg-1" {
		t.Fatalf("response = %+v", resp)
	}

	content, ok := got["content"].([]any)
	if !ok || len(content) != 2 {
		t.Fatalf("content = %v, want text and html parts", got["content"])
	}
}

func TestSendGridSenderPermanentFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad from"}]}`))
	}))
	defer server.Close()

	s, err := NewSendGridSender(SendGridConfig{Host: server.URL, APIKey: "k", FromEmail: "a@b.co"})
	if err != nil {
		t.Fatalf("NewSendGridSender() error = %v", err)
	}
	_, err = s.SendEmail(context.Background(), EmailMessage{ToEmail: "ada@mapoly.edu.ng", Subject: "s", Text: "b"})
	if !IsPermanent(err) {
		t.Fatalf("SendEmail() error = %v, want permanent", err)
	}
}
