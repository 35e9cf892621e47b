package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTranscribe(t *testing.T) {
	wav := []byte("RIFF-fake-wav-bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/asr" {
			t.Errorf("expected path /asr, got %s", r.URL.Path)
		}

		var req struct {
			WavBase64 string `json:"wav_base64"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(req.WavBase64)
		if err != nil {
			t.Fatalf("wav_base64 is not valid base64: %v", err)
		}
		if string(decoded) != string(wav) {
			t.Error("decoded WAV differs from the sent one")
		}

		json.NewEncoder(w).Encode(map[string]string{"text": "turn on the lights"})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	text, err := client.Transcribe(context.Background(), wav)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "turn on the lights" {
		t.Errorf("expected transcription, got %q", text)
	}

	if client.Name() != "asr-http" {
		t.Errorf("unexpected name: %s", client.Name())
	}
}

func TestTranscribeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	if _, err := client.Transcribe(context.Background(), []byte("wav")); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestTranscribeMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not json"))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	if _, err := client.Transcribe(context.Background(), []byte("wav")); err == nil {
		t.Fatal("expected an error for a malformed response")
	}
}
