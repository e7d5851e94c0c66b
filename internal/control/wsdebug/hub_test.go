package wsdebug

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/packetloom/utp/internal/control/auth"
)

func testHub(manager *auth.Manager) *Hub {
	return NewHub(manager, zap.NewNop())
}

func testClient(id string) *client {
	return newClient(id, nil, zap.NewNop())
}

func TestHubHandleAuthNilManagerAccepts(t *testing.T) {
	h := testHub(nil)
	c := testClient("c1")
	h.register(c)

	msg := &Message{Type: MessageTypeAuth, Data: mustMarshal(AuthData{Token: "irrelevant"})}
	h.handleClientMessage(c, msg)

	if _, authenticated := c.subscription(); !authenticated {
		t.Error("expected client to be authenticated with a nil auth manager")
	}
}

func TestHubHandleAuthRejectsBadToken(t *testing.T) {
	manager := auth.NewManager("secret", time.Hour, "utpd-control")
	h := testHub(manager)
	c := testClient("c1")
	h.register(c)

	msg := &Message{Type: MessageTypeAuth, Data: mustMarshal(AuthData{Token: "garbage"})}
	h.handleClientMessage(c, msg)

	if _, authenticated := c.subscription(); authenticated {
		t.Error("expected client not to be authenticated with a bad token")
	}
}

func TestHubHandleAuthRejectsWrongScope(t *testing.T) {
	manager := auth.NewManager("secret", time.Hour, "utpd-control")
	token, err := manager.IssueToken("operator1", "stats:read")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	h := testHub(manager)
	c := testClient("c1")
	h.register(c)

	msg := &Message{Type: MessageTypeAuth, Data: mustMarshal(AuthData{Token: token})}
	h.handleClientMessage(c, msg)

	if _, authenticated := c.subscription(); authenticated {
		t.Error("expected client not to be authenticated without debug:stream scope")
	}
}

func TestHubSubscribeRequiresAuth(t *testing.T) {
	manager := auth.NewManager("secret", time.Hour, "utpd-control")
	h := testHub(manager)
	c := testClient("c1")
	h.register(c)

	msg := &Message{Type: MessageTypeSubscribe, Data: mustMarshal(SubscribeData{ConnID: "conn-a"})}
	h.handleClientMessage(c, msg)

	h.mu.RLock()
	_, subscribed := h.byConn["conn-a"]
	h.mu.RUnlock()
	if subscribed {
		t.Error("expected subscribe to be rejected before authentication")
	}
}

func TestHubPublishFansOutToSubscribedClients(t *testing.T) {
	manager := auth.NewManager("secret", time.Hour, "utpd-control")
	token, err := manager.IssueToken("operator1", "debug:stream")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	h := testHub(manager)
	subscribed := testClient("subscribed")
	other := testClient("other")
	h.register(subscribed)
	h.register(other)

	h.handleClientMessage(subscribed, &Message{Type: MessageTypeAuth, Data: mustMarshal(AuthData{Token: token})})
	h.handleClientMessage(subscribed, &Message{Type: MessageTypeSubscribe, Data: mustMarshal(SubscribeData{ConnID: "conn-a"})})

	h.Publish(DebugEvent{ConnID: "conn-a", Kind: EventRetransmit, Timestamp: time.Unix(0, 0)})

	select {
	case msg := <-subscribed.send:
		if msg.Type != MessageTypeEvent {
			t.Errorf("message type = %v, want event", msg.Type)
		}
	default:
		t.Error("expected subscribed client to receive the published event")
	}

	select {
	case <-other.send:
		t.Error("unsubscribed client should not receive the event")
	default:
	}
}

func TestHubUnregisterRemovesSubscription(t *testing.T) {
	h := testHub(nil)
	c := testClient("c1")
	h.register(c)
	h.handleClientMessage(c, &Message{Type: MessageTypeAuth, Data: mustMarshal(AuthData{Token: ""})})
	h.handleClientMessage(c, &Message{Type: MessageTypeSubscribe, Data: mustMarshal(SubscribeData{ConnID: "conn-a"})})

	h.unregister(c)

	h.mu.RLock()
	_, exists := h.byConn["conn-a"]
	h.mu.RUnlock()
	if exists {
		t.Error("expected subscription to be removed on unregister")
	}
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
