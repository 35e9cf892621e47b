package tts

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/auris-ai/auris-agent/pkg/audio"
)

// WSClient is the WebSocket synthesis transport. One connection is reused
// across requests; the server answers a JSON request with binary PCM frames
// (raw 44.1 kHz mono s16) terminated by an "EOS" text message.
type WSClient struct {
	apiKey string
	host   string
	scheme string
	voice  string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSClient creates a streaming synthesis client for the given host.
func NewWSClient(host, apiKey, voice string) *WSClient {
	return &WSClient{
		apiKey: apiKey,
		host:   host,
		scheme: "wss",
		voice:  voice,
	}
}

func (c *WSClient) getConn(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	u := url.URL{Scheme: c.scheme, Host: c.host, Path: "/ws", RawQuery: "api_key=" + c.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tts service: %w", err)
	}
	c.conn = conn
	return conn, nil
}

// Synthesize collects the streamed PCM and wraps it as a WAV clip so the
// blocking player can use it.
func (c *WSClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var pcm []byte
	err := c.StreamSynthesize(ctx, text, func(chunk []byte) error {
		pcm = append(pcm, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio.NewWavBuffer(pcm, audio.StreamSampleRate), nil
}

func (c *WSClient) StreamSynthesize(ctx context.Context, text string, onChunk func([]byte) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.getConn(ctx)
	if err != nil {
		return err
	}

	req := map[string]interface{}{
		"target_text": text,
		"voice_type":  c.voice,
		"stream":      true,
	}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		c.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return fmt.Errorf("failed to send synthesis request: %w", err)
	}

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			c.conn = nil
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return fmt.Errorf("failed to read synthesis stream: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(payload); err != nil {
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if strings.HasPrefix(msg, "ERR:") {
				return fmt.Errorf("tts error: %s", msg)
			}
		}
	}
}

func (c *WSClient) Name() string {
	return "tts-ws"
}

// Close shuts the shared connection down.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close(websocket.StatusNormalClosure, "")
		c.conn = nil
		return err
	}
	return nil
}
