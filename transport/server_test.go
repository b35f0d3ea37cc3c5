package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/jmcleod/remotehand/actuator"
	"github.com/jmcleod/remotehand/agent"
	"github.com/jmcleod/remotehand/protocol"
	"github.com/jmcleod/remotehand/storage/memory"
)

// echoHandler answers with the identity and the request's keys.
type echoHandler struct {
	mu         sync.Mutex
	identities []string
}

func (h *echoHandler) Handle(_ context.Context, identity string, req protocol.Request) *protocol.Response {
	h.mu.Lock()
	h.identities = append(h.identities, identity)
	h.mu.Unlock()
	resp := protocol.NewResponse()
	resp.Set("identity", identity)
	resp.Set("keys", req.Keys())
	return resp
}

func startServer(t *testing.T, h Handler, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	srv := NewServer(h, opts...)
	require.NoError(t, srv.Listen("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv
}

func TestServer_ExchangesOverOneConnection(t *testing.T) {
	h := &echoHandler{}
	srv := startServer(t, h)

	c, err := Dial(t.Context(), srv.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Exchange(t.Context(), []byte(`{"request":"sayHello","b":1}`))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", gjson.GetBytes(resp, "identity").String())
	assert.JSONEq(t, `["request","b"]`, gjson.GetBytes(resp, "keys").Raw)

	resp, err = c.Exchange(t.Context(), []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, gjson.GetBytes(resp, "keys").Raw)
}

func TestServer_MalformedLineKeepsConnection(t *testing.T) {
	srv := startServer(t, &echoHandler{})

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	_, err = conn.Write([]byte("not json\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, gjson.Get(line, protocol.FieldError).Exists(), line)

	_, err = conn.Write([]byte("[1,2]\n\n{\"a\":true}\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, gjson.Get(line, protocol.FieldError).Exists(), line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", gjson.Get(line, "identity").String())
}

func TestServer_OversizedLineKeepsConnection(t *testing.T) {
	srv := startServer(t, &echoHandler{})

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	big := append(bytes.Repeat([]byte("a"), MaxRequestSize+10), '\n')
	_, err = conn.Write(append(big, []byte("{\"a\":true}\n")...))
	require.NoError(t, err)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "malformed request: line too long", gjson.Get(line, protocol.FieldError).String())
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", gjson.Get(line, "identity").String())
}

func TestReadLine(t *testing.T) {
	in := "one\r\n\n" + strings.Repeat("x", MaxRequestSize+1) + "\ntwo\nlast"
	r := bufio.NewReaderSize(strings.NewReader(in), 16)

	line, err := readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "one", string(line))
	line, err = readLine(r)
	require.NoError(t, err)
	assert.Empty(t, line)
	_, err = readLine(r)
	assert.ErrorIs(t, err, errLineTooLong)
	assert.ErrorIs(t, err, protocol.ErrMalformed)
	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "two", string(line))
	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "last", string(line))
	_, err = readLine(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestServer_IndentToggle(t *testing.T) {
	var (
		mu     sync.Mutex
		indent = true
	)
	srv := startServer(t, &echoHandler{}, WithIndent(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return indent
	}))

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	_, err = conn.Write([]byte("{\"x\":1}\n"))
	require.NoError(t, err)
	first, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\n", first)

	mu.Lock()
	indent = false
	mu.Unlock()

	rest, err := r.ReadString('}')
	require.NoError(t, err)
	assert.Contains(t, rest, "\t\"identity\"")
	nl, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), nl)

	_, err = conn.Write([]byte("{\"x\":1}\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.False(t, strings.Contains(strings.TrimSuffix(line, "\n"), "\n"))
	assert.True(t, gjson.Valid(line))
}

func TestServer_IdleConnectionTimesOut(t *testing.T) {
	srv := startServer(t, &echoHandler{}, WithReadTimeout(50*time.Millisecond))

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, io.EOF, "server should have closed the connection")
}

func TestServer_ServeReturnsAfterCancel(t *testing.T) {
	srv := NewServer(&echoHandler{}, WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, srv.Listen("127.0.0.1:0"))

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.ErrorIs(t, srv.Serve(context.Background()), ErrServerClosed)
}

func TestServer_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(&echoHandler{})
	assert.Error(t, srv.Listen(ln.Addr().String()))
	assert.Nil(t, srv.Addr())
}

func TestExchange_RejectsNonObjects(t *testing.T) {
	srv := startServer(t, &echoHandler{})

	_, err := Exchange(t.Context(), srv.Addr().String(), []byte(`[1]`))
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = Exchange(t.Context(), srv.Addr().String(), []byte(`{"a":`))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestExchange_CompactsRequestAndIndentedResponse(t *testing.T) {
	srv := startServer(t, &echoHandler{}, WithIndent(func() bool { return true }))

	resp, err := Exchange(t.Context(), srv.Addr().String(), []byte("{\n\t\"a\": 1,\n\t\"b\": \"x y\"\n}"))
	require.NoError(t, err)
	assert.NotContains(t, string(resp), "\n")
	assert.NotContains(t, string(resp), "\t")
	assert.JSONEq(t, `["a","b"]`, gjson.GetBytes(resp, "keys").Raw)
}

func TestServer_AgentGrantDelay(t *testing.T) {
	a := agent.New(memory.NewStore(), actuator.NewHost(nil,
		actuator.WithDevice(actuator.DeviceInfo{Brand: "Acme", Model: "Box"})),
		agent.WithLogger(slog.New(slog.DiscardHandler)),
		agent.WithVersion("1.0.0", 1))
	srv := startServer(t, a, WithIndent(func() bool { return a.State().Flag(agent.FlagIndent) }))
	addr := srv.Addr().String()

	resp, err := Exchange(t.Context(), addr, []byte(`{"accessPassword":"abc123"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"info":"password is set to abc123"}`, string(resp))

	resp, err = Exchange(t.Context(), addr, []byte(`{"password":"abc123"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"info":"access granted"}`, string(resp))

	// A new connection from the same host is already authorized.
	c, err := Dial(t.Context(), addr)
	require.NoError(t, err)
	defer c.Close()

	resp, err = c.Exchange(t.Context(), []byte(`{"request":"sayHello"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"versionName":"1.0.0","versionCode":1,"device":"Acme Box","result":true}`, string(resp))

	resp, err = c.Exchange(t.Context(), []byte(`{"request":"toggleTabs"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":true}`, string(resp))

	resp, err = c.Exchange(t.Context(), []byte(`{"request":"doesNotExist"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"info":"{doesNotExist} is not found"}`, string(resp))
}
