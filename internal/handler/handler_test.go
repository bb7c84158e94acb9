package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/emergency-chat-relay/internal/config"
	"github.com/weiawesome/emergency-chat-relay/internal/domain"
	"github.com/weiawesome/emergency-chat-relay/internal/idgen"
	"github.com/weiawesome/emergency-chat-relay/internal/registry"
	"github.com/weiawesome/emergency-chat-relay/internal/service"
	"github.com/weiawesome/emergency-chat-relay/internal/store"
	"github.com/weiawesome/emergency-chat-relay/pkg/response"
)

type testServer struct {
	*httptest.Server
	reg   *registry.Registry
	store *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	seq, err := idgen.NewSnowflake(1, idgen.DefaultEpoch)
	require.NoError(t, err)
	st := store.NewMemoryStore(store.NewStamper(seq, seq))
	reg := registry.New()

	history := service.NewHistoryService(st, nil, time.Minute)
	relay := service.NewRelayService(reg, st, history, nil, time.Second)

	wsCfg := config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       5 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 8192,
		SendBuffer:     16,
	}

	r := gin.New()
	NewWSHandler(relay, wsCfg).RegisterRoutes(r)
	NewHTTPHandler(history, relay, st).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, reg: reg, store: st}
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/chat/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (s *testServer) join(t *testing.T, emergencyID, userID string) *websocket.Conn {
	t.Helper()
	before := s.reg.Count(emergencyID)
	conn := s.dial(t, "?emergencyId="+emergencyID+"&userId="+userID)
	require.Eventually(t, func() bool {
		return s.reg.Count(emergencyID) > before
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]string
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func readCloseCode(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.True(t, errors.As(err, &ce), "expected close error, got %v", err)
		return ce
	}
}

func TestWebSocketRejectsMissingParameters(t *testing.T) {
	s := newTestServer(t)

	for _, q := range []string{"", "?emergencyId=E1", "?userId=u1", "?emergencyId=%20&userId=u1"} {
		t.Run(q, func(t *testing.T) {
			conn := s.dial(t, q)
			ce := readCloseCode(t, conn)
			assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
			assert.Equal(t, "missing required parameter", ce.Text)
			assert.Equal(t, 0, s.reg.Emergencies())
		})
	}
}

func TestWebSocketRelaysToWholeEmergency(t *testing.T) {
	s := newTestServer(t)

	patient := s.join(t, "E1", "patient1")
	doctor := s.join(t, "E1", "doctor1")
	other := s.join(t, "E2", "doctor2")

	require.NoError(t, patient.WriteJSON(map[string]string{
		"senderId":   "patient1",
		"senderType": "patient",
		"message":    "I need help",
		"receiverId": "doctor1",
	}))

	fromSelf := readJSON(t, patient)
	fromPeer := readJSON(t, doctor)
	assert.Equal(t, fromSelf, fromPeer)
	assert.Equal(t, "I need help", fromPeer["message"])
	assert.Equal(t, "patient1", fromPeer["senderId"])
	assert.Equal(t, "patient", fromPeer["senderType"])
	assert.NotEmpty(t, fromPeer["id"])
	assert.NotEmpty(t, fromPeer["timestamp"])

	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "another emergency must not receive the message")

	resp, err := http.Get(s.URL + "/api/chat/messages/E1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history []domain.HistoryMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, "doctor1", history[0].ReceiverID)
	assert.Equal(t, "E1", history[0].EmergencyID)
	assert.Equal(t, fromPeer["id"], history[0].ID)
	assert.Equal(t, fromPeer["timestamp"], history[0].Timestamp)
}

func TestWebSocketErrorOnlyToSender(t *testing.T) {
	s := newTestServer(t)

	patient := s.join(t, "E1", "patient1")
	doctor := s.join(t, "E1", "doctor1")

	require.NoError(t, patient.WriteJSON(map[string]string{
		"senderId":   "patient1",
		"senderType": "patient",
		"message":    "hi",
	}))

	assert.Equal(t, map[string]string{"error": "receiverId is required"}, readJSON(t, patient))

	require.NoError(t, doctor.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := doctor.ReadMessage()
	assert.Error(t, err)

	// the connection stays usable after a rejected frame
	require.NoError(t, patient.WriteJSON(map[string]string{
		"senderId":   "patient1",
		"senderType": "patient",
		"message":    "hi again",
		"receiverId": "doctor1",
	}))
	assert.Equal(t, "hi again", readJSON(t, patient)["message"])
}

func TestWebSocketReplacement(t *testing.T) {
	s := newTestServer(t)

	first := s.dial(t, "?emergencyId=E1&userId=patient1")
	require.Eventually(t, func() bool { return s.reg.Count("E1") == 1 }, 2*time.Second, 10*time.Millisecond)

	second := s.dial(t, "?emergencyId=E1&userId=patient1")

	ce := readCloseCode(t, first)
	assert.Equal(t, domain.CloseReplaced, ce.Code)

	// the old connection's teardown leaves the new registration alone
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, s.reg.Count("E1"))

	require.NoError(t, second.WriteJSON(map[string]string{
		"senderId":   "patient1",
		"senderType": "patient",
		"message":    "still here",
		"receiverId": "doctor1",
	}))
	assert.Equal(t, "still here", readJSON(t, second)["message"])
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	s := newTestServer(t)

	conn := s.join(t, "E1", "patient1")
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	require.Eventually(t, func() bool { return s.reg.Emergencies() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketAbnormalDropUnregisters(t *testing.T) {
	s := newTestServer(t)

	conn := s.join(t, "E1", "patient1")
	// No close frame: the server's read fails on the dead socket.
	require.NoError(t, conn.UnderlyingConn().Close())

	require.Eventually(t, func() bool { return s.reg.Emergencies() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, s.reg.Participants("E1"))
}

func TestWebSocketAbnormalDropKeepsOthers(t *testing.T) {
	s := newTestServer(t)

	patient := s.join(t, "E1", "patient1")
	doctor := s.join(t, "E1", "doctor1")

	require.NoError(t, patient.UnderlyingConn().Close())

	require.Eventually(t, func() bool { return s.reg.Count("E1") == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.reg.Emergencies())
	assert.Equal(t, []string{"doctor1"}, s.reg.Participants("E1"))

	require.NoError(t, doctor.WriteJSON(map[string]string{
		"senderId":   "doctor1",
		"senderType": "doctor",
		"message":    "are you there?",
		"receiverId": "patient1",
	}))
	assert.Equal(t, "are you there?", readJSON(t, doctor)["message"])
}

func TestHistoryEmptyIsArray(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/api/chat/messages/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body []interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotNil(t, body)
	assert.Empty(t, body)
}

func TestParticipantsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.join(t, "E1", "patient1")
	s.join(t, "E1", "doctor1")

	resp, err := http.Get(s.URL + "/api/v1/emergencies/E1/participants")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		response.Response
		Data participantsResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, []string{"doctor1", "patient1"}, body.Data.Participants)
	assert.Equal(t, 2, body.Data.Count)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.store.Close())
	resp, err = http.Get(s.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
