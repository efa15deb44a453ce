package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startTestServer(t *testing.T, registry *Registry) *Server {
	t.Helper()
	srv := NewServer(registry, testLogger())
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
	})
	return srv
}

func postMessage(t *testing.T, srv *Server, msg *Message) *Message {
	t.Helper()
	data, err := msg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post("http://"+srv.Addr()+"/rpc", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST /rpc: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var out Message
	if err := out.unmarshalLoose(body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &out
}

// unmarshalLoose decodes without Validate so tests can inspect malformed
// responses too.
func (m *Message) unmarshalLoose(data []byte) error {
	return json.Unmarshal(data, m)
}

func TestServerDispatch(t *testing.T) {
	registry := NewRegistry()
	registry.Register("echo", func(ctx context.Context, req *Message) (*Message, error) {
		var params map[string]string
		if err := req.UnmarshalParams(&params); err != nil {
			return nil, err
		}
		return NewResponse(req.CorrelationID, params)
	})
	srv := startTestServer(t, registry)

	req, _ := NewRequest("echo", map[string]string{"k": "v"})
	resp := postMessage(t, srv, req)

	if resp.Type != MessageTypeResponse {
		t.Fatalf("Type = %q, error = %+v", resp.Type, resp.Error)
	}
	if resp.CorrelationID != req.CorrelationID {
		t.Errorf("correlation id %q != %q", resp.CorrelationID, req.CorrelationID)
	}
	var result map[string]string
	if err := resp.UnmarshalResult(&result); err != nil {
		t.Fatal(err)
	}
	if result["k"] != "v" {
		t.Errorf("result = %v", result)
	}
}

func TestServerMethodNotFound(t *testing.T) {
	srv := startTestServer(t, NewRegistry())

	req, _ := NewRequest("nope", nil)
	resp := postMessage(t, srv, req)

	if resp.Type != MessageTypeError {
		t.Fatalf("Type = %q", resp.Type)
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("Code = %q", resp.Error.Code)
	}
	if resp.CorrelationID != req.CorrelationID {
		t.Errorf("correlation id not echoed")
	}
}

func TestServerCodedError(t *testing.T) {
	registry := NewRegistry()
	registry.Register("fail", func(ctx context.Context, req *Message) (*Message, error) {
		return nil, Errorf(CodeTimeout, "request timed out after 60s")
	})
	srv := startTestServer(t, registry)

	req, _ := NewRequest("fail", nil)
	resp := postMessage(t, srv, req)

	if resp.Error == nil || resp.Error.Code != CodeTimeout {
		t.Errorf("Error = %+v", resp.Error)
	}
}

func TestServerUncodedErrorIsInternal(t *testing.T) {
	registry := NewRegistry()
	registry.Register("boom", func(ctx context.Context, req *Message) (*Message, error) {
		return nil, errors.New("engine fell over")
	})
	srv := startTestServer(t, registry)

	req, _ := NewRequest("boom", nil)
	resp := postMessage(t, srv, req)

	if resp.Error == nil || resp.Error.Code != CodeInternal {
		t.Errorf("Error = %+v", resp.Error)
	}
}

func TestServerBadJSON(t *testing.T) {
	srv := startTestServer(t, NewRegistry())

	resp, err := http.Post("http://"+srv.Addr()+"/rpc", "application/json", bytes.NewReader([]byte("{broken")))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var msg Message
	if err := msg.unmarshalLoose(body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Error == nil || msg.Error.Code != CodeBadRequest {
		t.Errorf("Error = %+v", msg.Error)
	}
}

func TestServerListMethods(t *testing.T) {
	registry := NewRegistry()
	registry.Register("info", func(ctx context.Context, req *Message) (*Message, error) {
		return NewResponse(req.CorrelationID, nil)
	})
	registry.Register("convert", func(ctx context.Context, req *Message) (*Message, error) {
		return NewResponse(req.CorrelationID, nil)
	})
	srv := startTestServer(t, registry)

	req, _ := NewRequest("system.listMethods", nil)
	resp := postMessage(t, srv, req)

	var methods []string
	if err := resp.UnmarshalResult(&methods); err != nil {
		t.Fatal(err)
	}
	want := []string{"convert", "info", "system.listMethods"}
	if len(methods) != len(want) {
		t.Fatalf("methods = %v", methods)
	}
	for i := range want {
		if methods[i] != want[i] {
			t.Errorf("methods[%d] = %q, want %q", i, methods[i], want[i])
		}
	}
}

func TestServerHealth(t *testing.T) {
	srv := startTestServer(t, NewRegistry())

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestServerShutdownIdempotent(t *testing.T) {
	srv := NewServer(NewRegistry(), testLogger())
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}

	// A closed server refuses to start again.
	if err := srv.Start("127.0.0.1:0"); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Start after Shutdown = %v, want ErrServerClosed", err)
	}
}
