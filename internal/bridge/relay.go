// Package bridge relays the realtime JSON event protocol between a local
// WebSocket client and the provider's WebSocket endpoint. It exists for
// peers that cannot (or should not) speak WebRTC: the kiosk UI opens a
// plain WS to us, we mint the credential and hold the upstream socket.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/barkeep/voicelink/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn wraps a gorilla connection with a buffered outbound queue so slow
// readers stall their own link, not the whole relay.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn, send: make(chan core.Frame, 32)}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// Relay owns the upstream dial policy. One upstream socket per client link;
// links are independent and torn down as a pair.
type Relay struct {
	creds       core.CredentialSource
	upstreamURL string
	voice       string
	dialer      *websocket.Dialer
	mints       *mintRateLimiter

	mu     sync.Mutex
	active int
}

func NewRelay(creds core.CredentialSource, upstreamURL, voice string) *Relay {
	return &Relay{
		creds:       creds,
		upstreamURL: upstreamURL,
		voice:       voice,
		dialer:      websocket.DefaultDialer,
		mints:       newMintRateLimiter(5, time.Minute),
	}
}

// ActiveLinks reports how many client↔upstream pairs are currently running.
func (r *Relay) ActiveLinks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Relay) track(delta int) {
	r.mu.Lock()
	r.active += delta
	r.mu.Unlock()
}

// HandleRealtime upgrades the HTTP request and runs the link until either
// side drops.
func (r *Relay) HandleRealtime(ctx context.Context, c *gin.Context) {
	sid := c.GetString("client_token")
	log.Info().Str("module", "bridge").Str("sid", sid).Msg("new realtime WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "bridge").Msg("ws upgrade")
		return
	}
	client := newWSConn(ws)

	upstream, dialErr := r.dialUpstream(ctx)
	r.notifyEstablished(client, sid, dialErr == nil)
	if dialErr != nil {
		log.Error().Err(dialErr).Str("module", "bridge").Str("sid", sid).Msg("upstream dial failed")
		// Keep the client socket up: it can still get_token and retry.
	}

	ctx, cancel := context.WithCancel(ctx)
	r.track(1)
	go func() {
		<-ctx.Done()
		client.Close()
		if upstream != nil {
			upstream.Close()
		}
		r.track(-1)
	}()

	go r.writePump(ctx, client)
	go r.clientReadPump(ctx, cancel, sid, client, upstream)
	if upstream != nil {
		go r.writePump(ctx, upstream)
		go r.upstreamReadPump(ctx, cancel, sid, client, upstream)
	}
}

// dialUpstream mints a fresh credential and opens the provider socket with
// it. The credential lives only in the request header.
func (r *Relay) dialUpstream(ctx context.Context) (*wsConn, error) {
	cred, err := r.creds.Mint(ctx, r.voice)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.Value)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := r.dialer.DialContext(ctx, r.upstreamURL, header)
	if err != nil {
		if resp != nil {
			return nil, core.Fault(core.FaultNegotiation, "upstream dial: "+resp.Status, err)
		}
		return nil, core.Fault(core.FaultNegotiation, "upstream dial", err)
	}
	return newWSConn(conn), nil
}

func (r *Relay) notifyEstablished(client *wsConn, sid string, connected bool) {
	r.sendJSON(client, map[string]any{
		"type":               "connection_established",
		"client_id":          sid,
		"upstream_connected": connected,
	})
}

func (r *Relay) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "bridge").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "bridge").Msg("writePump write error")
				return
			}
		}
	}
}

func (r *Relay) clientReadPump(ctx context.Context, cancel context.CancelFunc, sid string, client, upstream *wsConn) {
	defer func() {
		log.Info().Str("module", "bridge").Str("sid", sid).Msg("client readPump closing")
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := client.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "bridge").Str("sid", sid).Msg("client read error")
				return
			}
			r.handleClientFrame(ctx, sid, client, upstream, data)
		}
	}
}

func (r *Relay) upstreamReadPump(ctx context.Context, cancel context.CancelFunc, sid string, client, upstream *wsConn) {
	defer func() {
		log.Info().Str("module", "bridge").Str("sid", sid).Msg("upstream readPump closing")
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := upstream.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "bridge").Str("sid", sid).Msg("upstream read error")
				return
			}
			if err := client.TrySend(data); err != nil {
				log.Warn().Err(err).Str("module", "bridge").Str("sid", sid).Msg("drop upstream frame")
			}
		}
	}
}

// handleClientFrame answers get_token locally and forwards everything else
// upstream verbatim. Frames that are not JSON objects are dropped.
func (r *Relay) handleClientFrame(ctx context.Context, sid string, client, upstream *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "bridge").Str("sid", sid).Msg("bad json from client")
		return
	}

	switch env.Type {
	case "get_token":
		r.handleGetToken(ctx, sid, client)
	default:
		if upstream == nil {
			r.sendError(client, "not connected upstream")
			return
		}
		if err := upstream.TrySend(data); err != nil {
			log.Warn().Err(err).Str("module", "bridge").Str("sid", sid).Str("type", env.Type).Msg("drop client frame")
		}
	}
}

func (r *Relay) handleGetToken(ctx context.Context, sid string, client *wsConn) {
	if !r.mints.Allow(sid) {
		log.Warn().Str("module", "bridge").Str("sid", sid).Msg("token mint rate limited")
		r.sendError(client, "too many token requests, slow down")
		return
	}
	cred, err := r.creds.Mint(ctx, r.voice)
	if err != nil {
		r.sendError(client, "failed to mint token: "+err.Error())
		return
	}
	r.sendJSON(client, map[string]any{
		"type":  "token_response",
		"voice": r.voice,
		"client_secret": map[string]string{
			"value": cred.Value,
		},
	})
}

func (r *Relay) sendError(client *wsConn, msg string) {
	r.sendJSON(client, map[string]any{
		"type": "error",
		"error": map[string]string{
			"type":    "relay_error",
			"message": msg,
		},
	})
}

func (r *Relay) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "bridge").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
