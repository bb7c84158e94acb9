package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/weiawesome/emergency-chat-relay/internal/domain"
	"github.com/weiawesome/emergency-chat-relay/pkg/log"
)

const DefaultReconnectDelay = 3 * time.Second

var (
	ErrNotConnected     = errors.New("relay client not connected")
	ErrMissingParameter = errors.New("emergency id and user id are required")
	ErrStopped          = errors.New("relay client stopped")
)

// ServerError is an {"error": ...} frame addressed to this client.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "relay: " + e.Message
}

// State of the client connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "STOPPED"
	}
}

type Config struct {
	// ServerURL is the relay's http(s) base URL.
	ServerURL      string
	EmergencyID    string
	UserID         string
	ReconnectDelay time.Duration
	// TerminalCodes are close codes after which the client stops instead of
	// reconnecting. Defaults to normal closure, join rejected and replaced.
	TerminalCodes []int

	HTTPClient *http.Client
	Dialer     *websocket.Dialer

	// Callbacks run on the client's goroutines and must not block.
	OnMessage     func(domain.DeliveredMessage)
	OnError       func(error)
	OnStateChange func(State)
}

// Client keeps one participant connected to an emergency channel and
// maintains the ordered, de-duplicated view of its messages.
type Client struct {
	cfg      Config
	terminal map[int]bool

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	timer     *time.Timer
	connected bool // a connection has succeeded at least once
	view      []domain.DeliveredMessage
	seen      map[string]struct{}
	ctx       context.Context
	cancel    context.CancelFunc

	writeMu sync.Mutex
}

func New(cfg Config) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.TerminalCodes == nil {
		cfg.TerminalCodes = []int{domain.CloseNormal, domain.CloseRejected, domain.CloseReplaced}
	}
	terminal := make(map[int]bool, len(cfg.TerminalCodes))
	for _, code := range cfg.TerminalCodes {
		terminal[code] = true
	}
	return &Client{
		cfg:      cfg,
		terminal: terminal,
		state:    StateDisconnected,
		seen:     make(map[string]struct{}),
	}
}

// Start loads the history and opens the live connection. A history failure
// is reported through OnError and does not prevent connecting.
func (c *Client) Start(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.EmergencyID) == "" || strings.TrimSpace(c.cfg.UserID) == "" {
		return ErrMissingParameter
	}

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.ctx == nil {
		c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	c.mu.Unlock()

	if err := c.refreshHistory(ctx); err != nil {
		c.reportError(err)
	}
	c.Connect()
	return nil
}

// Connect starts a connection attempt unless one is in progress, already
// established or the client is stopped.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.ctx == nil || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateConnecting)
	ctx := c.ctx
	c.mu.Unlock()

	c.notifyState(StateConnecting)
	go c.run(ctx)
}

func (c *Client) run(ctx context.Context) {
	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.wsURL(), nil)

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.setStateLocked(StateDisconnected)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		c.notifyState(StateDisconnected)
		c.reportError(fmt.Errorf("%w: dial: %v", domain.ErrTransport, err))
		return
	}

	c.conn = conn
	c.setStateLocked(StateConnected)
	reconnected := c.connected
	c.connected = true
	c.mu.Unlock()

	c.notifyState(StateConnected)
	l := log.L()
	l.Debug().
		Str(log.FieldEmergencyID, c.cfg.EmergencyID).
		Str(log.FieldUserID, c.cfg.UserID).
		Bool("reconnected", reconnected).
		Msg("relay connected")

	// Messages stored between the last history fetch and this dial are only
	// reachable through history.
	go func() {
		if err := c.refreshHistory(ctx); err != nil {
			c.reportError(err)
		}
	}()

	c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var frame struct {
		domain.DeliveredMessage
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		c.reportError(fmt.Errorf("%w: undecodable frame: %v", domain.ErrValidation, err))
		return
	}
	if frame.Error != nil {
		c.reportError(&ServerError{Message: *frame.Error})
		return
	}
	m := frame.DeliveredMessage
	if m.SenderID == "" || m.Message == "" || m.Timestamp == "" {
		c.reportError(fmt.Errorf("%w: message frame needs senderId, message and timestamp", domain.ErrValidation))
		return
	}
	c.merge([]domain.DeliveredMessage{frame.DeliveredMessage}, false)
}

func (c *Client) handleClose(conn *websocket.Conn, err error) {
	code := websocket.CloseAbnormalClosure
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	conn.Close()

	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}

	next := StateDisconnected
	if c.terminal[code] {
		next = StateStopped
		c.stopLocked()
	} else {
		c.setStateLocked(StateDisconnected)
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	c.notifyState(next)
	if next == StateDisconnected {
		c.reportError(fmt.Errorf("%w: connection closed (%d)", domain.ErrTransport, code))
	}
}

// scheduleReconnectLocked arms the single reconnect timer.
func (c *Client) scheduleReconnectLocked() {
	if c.timer != nil {
		return
	}
	c.timer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		c.timer = nil
		c.mu.Unlock()
		c.Connect()
	})
}

func (c *Client) stopLocked() {
	c.setStateLocked(StateStopped)
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
}

// Stop cancels any pending reconnect and closes the connection with a normal
// closure. The client cannot be restarted.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
	c.notifyState(StateStopped)
}

// Send writes a chat frame as this client's user.
func (c *Client) Send(receiverID string, senderType domain.SenderType, text string) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	err := conn.WriteJSON(domain.InboundMessage{
		SenderID:   c.cfg.UserID,
		SenderType: string(senderType),
		Message:    text,
		ReceiverID: receiverID,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the current view.
func (c *Client) Messages() []domain.DeliveredMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.DeliveredMessage, len(c.view))
	copy(out, c.view)
	return out
}

func (c *Client) refreshHistory(ctx context.Context) error {
	history, err := c.fetchHistory(ctx)
	if err != nil {
		return err
	}
	msgs := make([]domain.DeliveredMessage, 0, len(history))
	for _, h := range history {
		msgs = append(msgs, domain.DeliveredMessage{
			ID:         h.ID,
			SenderID:   h.SenderID,
			SenderType: h.SenderType,
			Message:    h.Message,
			Timestamp:  h.Timestamp,
		})
	}
	c.merge(msgs, true)
	return nil
}

func (c *Client) fetchHistory(ctx context.Context) ([]domain.HistoryMessage, error) {
	u := strings.TrimRight(c.cfg.ServerURL, "/") + "/api/chat/messages/" + url.PathEscape(c.cfg.EmergencyID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build history request: %w", err)
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch history: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch history: unexpected status %d", resp.StatusCode)
	}

	var history []domain.HistoryMessage
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return history, nil
}

// merge adds unseen messages to the view. Live frames keep arrival order;
// a history merge re-sorts by timestamp so backfilled entries land in place.
func (c *Client) merge(msgs []domain.DeliveredMessage, fromHistory bool) {
	c.mu.Lock()
	var added []domain.DeliveredMessage
	for _, m := range msgs {
		key := dedupeKey(m)
		if _, ok := c.seen[key]; ok {
			continue
		}
		c.seen[key] = struct{}{}
		c.view = append(c.view, m)
		added = append(added, m)
	}
	if fromHistory && len(added) > 0 {
		sort.SliceStable(c.view, func(i, j int) bool {
			return c.view[i].Timestamp < c.view[j].Timestamp
		})
	}
	c.mu.Unlock()

	if c.cfg.OnMessage != nil {
		for _, m := range added {
			c.cfg.OnMessage(m)
		}
	}
}

func dedupeKey(m domain.DeliveredMessage) string {
	if m.ID != "" {
		return m.ID
	}
	return m.SenderID + "|" + m.Timestamp + "|" + m.Message
}

func (c *Client) wsURL() string {
	base := strings.TrimRight(c.cfg.ServerURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	q := url.Values{}
	q.Set("emergencyId", c.cfg.EmergencyID)
	q.Set("userId", c.cfg.UserID)
	return base + "/chat/ws?" + q.Encode()
}

func (c *Client) setStateLocked(s State) {
	c.state = s
}

func (c *Client) notifyState(s State) {
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

func (c *Client) reportError(err error) {
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
		return
	}
	l := log.L()
	l.Debug().Err(err).Msg("relay client error")
}
