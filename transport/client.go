package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// ErrInvalidRequest is returned when a request to send is not a JSON object.
var ErrInvalidRequest = errors.New("transport: request must be a JSON object")

// Conn is a client connection to an agent. Several exchanges may be run over
// one Conn, one at a time.
type Conn struct {
	conn net.Conn
	dec  *json.Decoder
}

// Dial connects to the agent listening on addr.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Conn{conn: conn, dec: json.NewDecoder(conn)}, nil
}

// Exchange sends one request and returns the response in compact form.
// Responses may arrive indented over several lines, so they are read as a
// stream of JSON values rather than lines.
func (c *Conn) Exchange(ctx context.Context, request []byte) ([]byte, error) {
	if !gjson.ValidBytes(request) || !gjson.ParseBytes(request).IsObject() {
		return nil, ErrInvalidRequest
	}
	line := append(pretty.Ugly(request), '\n')

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultReadTimeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(line); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	var resp json.RawMessage
	if err := c.dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return pretty.Ugly(resp), nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Exchange dials addr, runs a single exchange and hangs up.
func Exchange(ctx context.Context, addr string, request []byte) ([]byte, error) {
	c, err := Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Exchange(ctx, request)
}
