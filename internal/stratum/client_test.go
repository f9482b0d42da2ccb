package stratum

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/silentarmy/stratum-miner/pkg/log"
)

func testClient() *Client {
	c := NewClient(ClientConfig{Host: "pool.example.com", Port: 3333, User: "t1Test"}, log.New("test", "0", "error", "text"))
	c.outbound = make(chan []byte, 8)
	return c
}

func TestIdsEqual(t *testing.T) {
	if !idsEqual(float64(3), 3) {
		t.Error("expected float64(3) to equal int64(3)")
	}
	if idsEqual(float64(3), 4) {
		t.Error("expected mismatch")
	}
	if idsEqual("not-a-number", 3) {
		t.Error("expected non-numeric id to not match")
	}
}

func TestClient_SubscribeResponseSendsAuthorize(t *testing.T) {
	c := testClient()
	c.state = stateSentSubscribe
	c.hasExpect = true
	c.expectID = 1

	resp := &Message{Kind: KindResponse, ID: float64(1), Result: []any{nil, "0a"}}
	if closeConn := c.handleResponse(resp); closeConn {
		t.Fatal("did not expect connection close")
	}

	select {
	case ev := <-c.events:
		sub, ok := ev.(Subscribed)
		if !ok {
			t.Fatalf("expected Subscribed event, got %T", ev)
		}
		if len(sub.NonceLeft) != 1 || sub.NonceLeft[0] != 0x0a {
			t.Errorf("got nonce_left %x", sub.NonceLeft)
		}
	default:
		t.Fatal("expected a Subscribed event")
	}

	if c.state != stateSentAuthorize {
		t.Errorf("state = %v, want stateSentAuthorize", c.state)
	}

	select {
	case data := <-c.outbound:
		var req struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(data[:len(data)-1], &req); err != nil {
			t.Fatalf("failed to unmarshal outbound request: %v", err)
		}
		if req.Method != "mining.authorize" {
			t.Errorf("method = %q, want mining.authorize", req.Method)
		}
	default:
		t.Fatal("expected mining.authorize to be written")
	}
}

func TestClient_AuthorizeAccepted(t *testing.T) {
	c := testClient()
	c.state = stateSentAuthorize

	if closeConn := c.handleResponse(&Message{Kind: KindResponse, Result: true}); closeConn {
		t.Fatal("did not expect connection close")
	}
	if c.state != stateAuthorized {
		t.Errorf("state = %v, want stateAuthorized", c.state)
	}
	if _, ok := (<-c.events).(Authorized); !ok {
		t.Error("expected Authorized event")
	}
}

func TestClient_AuthorizeRejected(t *testing.T) {
	c := testClient()
	c.state = stateSentAuthorize

	if closeConn := c.handleResponse(&Message{Kind: KindResponse, Result: false}); !closeConn {
		t.Fatal("expected connection close on rejected authorize")
	}
	if _, ok := (<-c.events).(AuthFailed); !ok {
		t.Error("expected AuthFailed event")
	}
}

func TestClient_ShareAcceptedWhileAuthorized(t *testing.T) {
	c := testClient()
	c.state = stateAuthorized

	c.handleResponse(&Message{Kind: KindResponse, Result: true})
	if _, ok := (<-c.events).(ShareAccepted); !ok {
		t.Error("expected ShareAccepted event")
	}
}

func TestClient_JobNotification(t *testing.T) {
	c := testClient()
	params := []any{"job1", "04000000", strings.Repeat("ab", 32), strings.Repeat("cd", 32), strings.Repeat("0", 64), "5a000000", "1d00ffff", true}
	c.handleNotification(&Message{Kind: KindNotification, Method: "mining.notify", Params: params})

	ev, ok := (<-c.events).(JobSet)
	if !ok {
		t.Fatal("expected JobSet event")
	}
	if ev.Notify.JobID != "job1" {
		t.Errorf("job id = %q", ev.Notify.JobID)
	}
}

func TestClient_SetTargetNotification(t *testing.T) {
	c := testClient()
	c.handleNotification(&Message{Kind: KindNotification, Method: "mining.set_target", Params: []any{"0000ffff"}})

	ev, ok := (<-c.events).(TargetSet)
	if !ok {
		t.Fatal("expected TargetSet event")
	}
	if ev.Target[31] == 0 {
		t.Error("expected reversed target to carry the leading wire bytes at the tail")
	}
}

func TestClient_UnknownNotificationIgnored(t *testing.T) {
	c := testClient()
	c.handleNotification(&Message{Kind: KindNotification, Method: "mining.set_extranonce", Params: nil})

	select {
	case ev := <-c.events:
		t.Fatalf("expected no event, got %T", ev)
	default:
	}
}

func TestClient_SubmitWritesRequest(t *testing.T) {
	c := testClient()
	if err := c.Submit("job1", "5a000000", "deadbeef", "aabbcc"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case data := <-c.outbound:
		if !strings.Contains(string(data), "mining.submit") {
			t.Errorf("got %s", data)
		}
	default:
		t.Fatal("expected a write")
	}
}

func TestClient_SubmitWhenDisconnected(t *testing.T) {
	c := testClient()
	c.outbound = nil
	if err := c.Submit("job1", "5a000000", "deadbeef", "aabbcc"); err == nil {
		t.Error("expected error submitting while disconnected")
	}
}
