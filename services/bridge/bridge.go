// bridge/bridge.go
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"songbird-go/bus"
	"songbird-go/errcode"
	"songbird-go/internal/util"
)

const (
	pingPeriod    = 5 * time.Second
	pingMissLimit = 3 // ticks without any inbound frame before the link is declared dead
	replyTimeout  = time.Second
)

var (
	topicConfig = bus.Topic{"config", "bridge"}
	topicState  = bus.Topic{"bridge", "state"}

	// defaultMirror covers the appliance's observable surface; a monitoring
	// peer sees mode, routing, meters, the UI frame and the heartbeat without
	// any per-topic negotiation.
	defaultMirror = []string{"control/#", "audio/#", "ui/#", "system/#"}

	// defaultAccept limits what the peer may inject. Button taps are the whole
	// remote-control surface; everything else stays read-only.
	defaultAccept = []string{"control/ctl/press"}
)

var errPeerGone = errors.New("peer unresponsive")

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Run starts the bridge service. It blocks until ctx is cancelled.
// It listens for JSON config on "config/bridge" and (re)configures the link.
func Run(ctx context.Context, conn *bus.Connection) {
	s := &service{conn: conn}
	s.loop(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON-encoded configuration expected on "config/bridge".
type Config struct {
	Transport TransportConfig `json:"transport"`

	// Mirror lists topic patterns forwarded to the peer. Accept lists the
	// patterns the peer may publish into the local bus. Empty lists take
	// the defaults above.
	Mirror []string `json:"mirror,omitempty"`
	Accept []string `json:"accept,omitempty"`
}

type TransportConfig struct {
	// "uart" (provided here) or other names registered via RegisterTransport.
	Type string      `json:"type"`
	UART *UARTConfig `json:"uart,omitempty"`
	WS   *WSConfig   `json:"ws,omitempty"`
}

// UARTConfig carries enough information for an injected dialler to open the
// UART. Pin mapping and UART instance selection happen inside UARTDial.
type UARTConfig struct {
	Baud           int `json:"baud"`
	RxPin          int `json:"rx_pin"`
	TxPin          int `json:"tx_pin"`
	ReadTimeoutMS  int `json:"read_timeout_ms,omitempty"` // per read; 0 means blocking
	WriteTimeoutMS int `json:"write_timeout_ms,omitempty"`
}

// WSConfig selects websocket transport on host builds. URL dials out;
// ListenAddr accepts a single peer instead.
type WSConfig struct {
	URL                string `json:"url,omitempty"`
	ListenAddr         string `json:"listen_addr,omitempty"`
	HandshakeTimeoutMS int    `json:"handshake_timeout_ms,omitempty"`
}

func (c *Config) mirrorPatterns() []string {
	if len(c.Mirror) > 0 {
		return c.Mirror
	}
	return defaultMirror
}

func (c *Config) acceptPatterns() []string {
	if len(c.Accept) > 0 {
		return c.Accept
	}
	return defaultAccept
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type service struct {
	conn *bus.Connection

	mu     sync.Mutex
	cancel context.CancelFunc // cancels the current link run
}

// loop waits for config and supervises a single link instance.
func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			s.publishState("stopped", "context_cancelled", nil)
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			var cfg Config
			if err := util.DecodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.mu.Unlock()

	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision
// -----------------------------------------------------------------------------

func (s *service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		err = s.handleLink(ctx, cfg, rwc)
		_ = rwc.Close()
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		// Nil means our side shut the link down; restart only on new config.
		return
	}
}

// handleLink owns the active link lifetime: it mirrors local traffic to the
// peer, injects accepted peer publishes, routes peer requests through the
// local request-reply machinery and keeps the link alive with pings.
func (s *service) handleLink(ctx context.Context, cfg Config, rwc io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l := &link{
		conn:  s.conn,
		wr:    newFramedWriter(rwc),
		subs:  make(map[string]*bus.Subscription),
		local: make(chan *bus.Message, 32),
	}
	for _, p := range cfg.acceptPatterns() {
		l.accept = append(l.accept, parseTopic(p))
	}
	// Subscribing after the link is up replays every retained message the
	// mirror patterns cover, so the peer starts from current state.
	for _, p := range cfg.mirrorPatterns() {
		l.subscribe(ctx, p)
	}
	defer l.unsubscribeAll()

	rd := newFramedReader(rwc)
	frames := make(chan Frame, 8)
	readErr := make(chan error, 1)
	go func() {
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	tick := time.NewTicker(pingPeriod)
	defer tick.Stop()
	missed := 0

	for {
		select {
		case <-ctx.Done():
			// Best-effort close.
			_ = l.send(Frame{Type: frameClose})
			return nil
		case err := <-readErr:
			return err
		case f := <-frames:
			missed = 0
			if err := l.handleFrame(ctx, f); err != nil {
				return err
			}
		case m := <-l.local:
			if err := l.forward(m); err != nil {
				return err
			}
		case <-tick.C:
			missed++
			if missed > pingMissLimit {
				return errPeerGone
			}
			if err := l.send(Frame{Type: framePing}); err != nil {
				return err
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Forwarding engine
// -----------------------------------------------------------------------------

type link struct {
	conn   *bus.Connection
	subs   map[string]*bus.Subscription // mirror pattern -> subscription
	local  chan *bus.Message
	accept []bus.Topic

	mu sync.Mutex // serialises writes; reply goroutines share the framer
	wr *framedWriter
}

func (l *link) send(f Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wr.WriteFrame(f)
}

// subscribe starts mirroring a pattern. A pump goroutine funnels the
// subscription into the single local channel the link loop selects on.
func (l *link) subscribe(ctx context.Context, pattern string) {
	if _, dup := l.subs[pattern]; dup {
		return
	}
	t := parseTopic(pattern)
	if len(t) == 0 {
		return
	}
	sub := l.conn.Subscribe(t)
	l.subs[pattern] = sub
	go func() {
		for m := range sub.Channel() {
			select {
			case l.local <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (l *link) unsubscribe(pattern string) {
	if sub, ok := l.subs[pattern]; ok {
		delete(l.subs, pattern)
		l.conn.Unsubscribe(sub)
	}
}

func (l *link) unsubscribeAll() {
	for p, sub := range l.subs {
		delete(l.subs, p)
		l.conn.Unsubscribe(sub)
	}
}

func (l *link) handleFrame(ctx context.Context, f Frame) error {
	switch f.Type {
	case framePing:
		return l.send(Frame{Type: framePong, Payload: f.Payload})
	case framePong:
		// Liveness only; the miss counter was already reset.
		return nil
	case framePub:
		return l.inboundPub(ctx, f.Payload)
	case frameSub:
		l.subscribe(ctx, string(f.Payload))
		return nil
	case frameUnsub:
		l.unsubscribe(string(f.Payload))
		return nil
	case frameAck:
		// We never ask the peer for acks; ignore.
		return nil
	case frameClose:
		return errors.New("peer closed link")
	default:
		// Unknown frame types are skipped so protocol extensions stay
		// backward compatible.
		return nil
	}
}

// forward mirrors one local message to the peer.
func (l *link) forward(m *bus.Message) error {
	str, ok := topicString(m.Topic)
	if !ok {
		return nil
	}
	// Topics the peer is allowed to publish are not echoed back; the peer
	// already has them.
	for _, p := range l.accept {
		if matchTopic(p, m.Topic) {
			return nil
		}
	}
	raw, err := json.Marshal(m.Payload)
	if err != nil {
		return nil
	}
	buf, err := json.Marshal(wire{Topic: str, Payload: raw, Retain: m.Retained})
	if err != nil || len(buf) > maxFramePayload {
		return nil
	}
	return l.send(Frame{Type: framePub, Payload: buf})
}

// inboundPub injects a peer publish into the local bus if the accept list
// allows it. A non-zero Seq marks a request; the reply comes back as an ack
// frame carrying the same Seq.
func (l *link) inboundPub(ctx context.Context, payload []byte) error {
	var w wire
	if err := json.Unmarshal(payload, &w); err != nil {
		// Framing guarantees message boundaries, so a malformed publish is
		// a peer bug, not desync. Drop it and keep the link.
		return nil
	}
	topic := parseTopic(w.Topic)
	if len(topic) == 0 || !l.accepted(topic) {
		return nil
	}
	if w.Seq != 0 {
		go l.relayRequest(ctx, topic, w)
		return nil
	}
	l.conn.Publish(l.conn.NewMessage(topic, []byte(w.Payload), w.Retain))
	return nil
}

func (l *link) relayRequest(ctx context.Context, topic bus.Topic, w wire) {
	rctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	ack := wire{Seq: w.Seq}
	reply, err := l.conn.RequestWait(rctx, l.conn.NewMessage(topic, []byte(w.Payload), false))
	if err != nil {
		ack.Payload, _ = json.Marshal(map[string]any{"ok": false, "error": errcode.Timeout.Error()})
	} else {
		ack.Payload, _ = json.Marshal(reply.Payload)
	}
	buf, err := json.Marshal(ack)
	if err != nil {
		return
	}
	_ = l.send(Frame{Type: frameAck, Payload: buf})
}

func (l *link) accepted(topic bus.Topic) bool {
	for _, p := range l.accept {
		if matchTopic(p, topic) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler/owner.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(TransportConfig) (Transport, error)

var (
	regMu     sync.RWMutex
	registry  = map[string]transportFactory{}
	errNoDial = errors.New("UARTDial not implemented")
)

// RegisterTransport allows external packages to add transports (eg. "ws", "tcp").
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "uart":
		return newUARTTransport(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", errcode.NoTransport, cfg.Type)
	}
}

// UARTDial is injected by platform code. It must open and return an
// io.ReadWriteCloser over the configured UART.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

// uartTransport implements Transport via an injected dial function.
type uartTransport struct {
	cfg TransportConfig
}

func newUARTTransport(cfg TransportConfig) (Transport, error) {
	if cfg.UART == nil {
		return nil, errors.New("uart transport requires uart config")
	}
	return &uartTransport{cfg: cfg}, nil
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, *u.cfg.UART)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Framing
// -----------------------------------------------------------------------------

const (
	framePing  byte = 0x01
	framePong  byte = 0x02
	framePub   byte = 0x10
	frameSub   byte = 0x11
	frameUnsub byte = 0x12
	frameAck   byte = 0x13
	frameClose byte = 0x7f
)

const maxFramePayload = 0xFFFF

// Frame is a simple length-prefixed frame. Pub and ack payloads carry JSON;
// sub and unsub payloads carry a raw topic pattern.
type Frame struct {
	Type    byte
	Payload []byte
}

// wire is the JSON body of pub and ack frames.
type wire struct {
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Retain  bool            `json:"retain,omitempty"`
	Seq     uint32          `json:"seq,omitempty"`
}

type framedReader struct{ r io.Reader }
type framedWriter struct{ w io.Writer }

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	typ := hdr[0]
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: typ, Payload: buf}, nil
}

func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > maxFramePayload {
		return fmt.Errorf("frame too large: %d", len(f.Payload))
	}
	hdr := []byte{f.Type, byte(len(f.Payload) >> 8), byte(len(f.Payload) & 0xFF)}
	if _, err := fw.w.Write(hdr); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		_, err := fw.w.Write(f.Payload)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

// topicString joins a topic's tokens with slashes. Topics with non-string
// tokens (reply topics) never cross the link.
func topicString(t bus.Topic) (string, bool) {
	var b strings.Builder
	for i, tok := range t {
		s, ok := tok.(string)
		if !ok {
			return "", false
		}
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(s)
	}
	return b.String(), true
}

func parseTopic(s string) bus.Topic {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "/")
	t := make(bus.Topic, 0, len(parts))
	for _, p := range parts {
		t = append(t, p)
	}
	return t
}

// matchTopic applies a wildcard pattern to a concrete topic.
func matchTopic(pattern, topic bus.Topic) bool {
	for i, tok := range pattern {
		if tok == bus.TokenHash {
			return true
		}
		if i >= len(topic) {
			return false
		}
		if tok == bus.TokenPlus {
			continue
		}
		if tok != topic[i] {
			return false
		}
	}
	return len(pattern) == len(topic)
}

func (s *service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,
		"status": status,
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
