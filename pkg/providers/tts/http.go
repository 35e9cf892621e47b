// Package tts holds the text-to-speech clients: an HTTP transport matching
// the /generate service (WAV for one-shot requests, raw 44.1 kHz mono s16
// PCM chunks when streaming) and an alternate WebSocket transport.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// streamChunkSize is the read granularity for streamed PCM (~46 ms of audio
// at 44.1 kHz mono s16).
const streamChunkSize = 4096

type HTTPClient struct {
	url   string
	voice string

	// http carries the overall timeout for one-shot synthesis; stream has
	// connect and response-header timeouts only, the body being bounded by a
	// per-read watchdog.
	http        *http.Client
	stream      *http.Client
	readTimeout time.Duration
}

// NewHTTPClient creates a synthesis client for the service rooted at baseURL
// (the request path is /generate).
func NewHTTPClient(baseURL, voice string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		url:   baseURL + "/generate",
		voice: voice,
		http:  &http.Client{Timeout: timeout},
		stream: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				ResponseHeaderTimeout: 10 * time.Second,
			},
		},
		readTimeout: timeout,
	}
}

func (c *HTTPClient) request(text string, stream bool) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"target_text": text,
		"voice_type":  c.voice,
		"stream":      stream,
	})
}

// Synthesize returns the reply as a complete WAV clip.
func (c *HTTPClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := c.request(text, false)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts error (status %d)", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// StreamSynthesize delivers raw 44.1 kHz mono s16 PCM chunks to onChunk as
// they arrive. The connection is dropped when a single read takes longer
// than the configured read timeout.
func (c *HTTPClient) StreamSynthesize(ctx context.Context, text string, onChunk func([]byte) error) error {
	body, err := c.request(text, true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tts error (status %d)", resp.StatusCode)
	}

	// Per-read watchdog: cancel the request when the stream goes quiet.
	watchdog := time.AfterFunc(c.readTimeout, cancel)
	defer watchdog.Stop()

	buf := make([]byte, streamChunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			watchdog.Reset(c.readTimeout)
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if cbErr := onChunk(chunk); cbErr != nil {
				return cbErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("tts stream timed out: %w", ctx.Err())
			}
			return err
		}
	}
}

func (c *HTTPClient) Name() string {
	return "tts-http"
}
