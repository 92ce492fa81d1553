package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mitrajunior/esp32-controller-app/internal/events"
)

// connectWebSocket dials the event stream endpoint on a running server.
func connectWebSocket(t *testing.T, addr string) *websocket.Conn {
	t.Helper()

	wsURL := "ws://" + addr + "/api/v1/events/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// subscribe sends a subscribe message and waits for the acknowledgement.
func subscribe(t *testing.T, ws *websocket.Conn, channels ...string) {
	t.Helper()

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack WSMessage
	if err := ws.ReadJSON(&ack); err != nil {
		t.Fatalf("read subscribe ack: %v", err)
	}
	if ack.Type != WSTypeResponse {
		t.Fatalf("ack type = %s, want %s", ack.Type, WSTypeResponse)
	}
}

func TestWebSocket_Connect(t *testing.T) {
	srv, addr := testServerWithRealListener(t, 19081)

	ws := connectWebSocket(t, addr)
	_ = ws

	// Registration is synchronous in the upgrade handler, but allow the
	// handshake to finish.
	time.Sleep(100 * time.Millisecond)
	if srv.hub.ClientCount() != 1 {
		t.Errorf("hub client count = %d, want 1", srv.hub.ClientCount())
	}
}

func TestWebSocket_SubscribeReceivesEvents(t *testing.T) {
	srv, addr := testServerWithRealListener(t, 19082)

	ws := connectWebSocket(t, addr)
	subscribe(t, ws, events.TypeDeviceCreated)

	srv.events.Publish(events.Event{
		Type:     events.TypeDeviceCreated,
		DeviceID: "dev-123",
		Data:     map[string]any{"name": "Office Light"},
	})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}

	if msg.Type != WSTypeEvent {
		t.Errorf("message type = %s, want %s", msg.Type, WSTypeEvent)
	}
	if msg.EventType != events.TypeDeviceCreated {
		t.Errorf("event type = %s, want %s", msg.EventType, events.TypeDeviceCreated)
	}

	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatalf("re-marshal payload: %v", err)
	}
	var ev events.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("unmarshal event payload: %v", err)
	}
	if ev.DeviceID != "dev-123" {
		t.Errorf("device_id = %s, want dev-123", ev.DeviceID)
	}
}

func TestWebSocket_UnsubscribedChannelSilent(t *testing.T) {
	srv, addr := testServerWithRealListener(t, 19083)

	ws := connectWebSocket(t, addr)
	subscribe(t, ws, events.TypeDeviceDeleted)

	// Publish on a channel the client did not ask for.
	srv.events.Publish(events.Event{Type: events.TypeDeviceCreated, DeviceID: "dev-1"})

	ws.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err == nil {
		t.Errorf("expected no message, got %+v", msg)
	}
}

func TestWebSocket_WildcardSubscription(t *testing.T) {
	srv, addr := testServerWithRealListener(t, 19084)

	ws := connectWebSocket(t, addr)
	subscribe(t, ws, WSChannelAll)

	srv.events.Publish(events.Event{Type: events.TypeReachabilityChanged, DeviceID: "dev-9"})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.EventType != events.TypeReachabilityChanged {
		t.Errorf("event type = %s, want %s", msg.EventType, events.TypeReachabilityChanged)
	}
}

func TestWebSocket_Unsubscribe(t *testing.T) {
	srv, addr := testServerWithRealListener(t, 19085)

	ws := connectWebSocket(t, addr)
	subscribe(t, ws, events.TypeDeviceCreated)

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "unsub-1",
		Payload: WSSubscribePayload{Channels: []string{events.TypeDeviceCreated}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack WSMessage
	if err := ws.ReadJSON(&ack); err != nil {
		t.Fatalf("read unsubscribe ack: %v", err)
	}
	if ack.ID != "unsub-1" {
		t.Errorf("ack ID = %s, want unsub-1", ack.ID)
	}

	srv.events.Publish(events.Event{Type: events.TypeDeviceCreated, DeviceID: "dev-1"})

	ws.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err == nil {
		t.Errorf("expected no message after unsubscribe, got %+v", msg)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	_, addr := testServerWithRealListener(t, 19086)

	ws := connectWebSocket(t, addr)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong WSMessage
	if err := ws.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != WSTypePong {
		t.Errorf("response type = %s, want %s", pong.Type, WSTypePong)
	}
	if pong.ID != "ping-1" {
		t.Errorf("response ID = %s, want ping-1", pong.ID)
	}
}

func TestWebSocket_UnknownMessageType(t *testing.T) {
	_, addr := testServerWithRealListener(t, 19087)

	ws := connectWebSocket(t, addr)

	if err := ws.WriteJSON(WSMessage{Type: "teleport", ID: "msg-1"}); err != nil {
		t.Fatalf("write message: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.Type != WSTypeError {
		t.Errorf("response type = %s, want %s", resp.Type, WSTypeError)
	}
}

func TestWebSocket_DisconnectUpdatesCount(t *testing.T) {
	srv, addr := testServerWithRealListener(t, 19088)

	ws := connectWebSocket(t, addr)
	time.Sleep(100 * time.Millisecond)
	if srv.hub.ClientCount() != 1 {
		t.Fatalf("hub client count = %d, want 1", srv.hub.ClientCount())
	}

	ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("hub client count = %d after close, want 0", srv.hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	srv, _ := testServer(t)

	// Must not panic with an empty client map.
	srv.hub.Broadcast(events.TypeDeviceCreated, map[string]any{"name": "x"})
}
