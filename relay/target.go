// Package relay keeps the set of secondary recipients messages are mirrored
// to, and fans messages out to them.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/jmcleod/remotehand/actuator"
)

// ErrNoMessenger is returned when a phone target has no way to send.
var ErrNoMessenger = errors.New("no messenger for phone target")

type kind int

const (
	kindSocket kind = iota
	kindPhone
)

// identity is the structural key two targets are compared by.
type identity struct {
	kind   kind
	host   string
	port   int
	number string
}

// Target is a secondary recipient. Implementations are SocketTarget and
// PhoneTarget; two targets are equal when their kind and address match.
type Target interface {
	fmt.Stringer
	Send(ctx context.Context, message string) error
	identity() identity
}

// SocketTarget receives messages over a one-shot TCP connection.
type SocketTarget struct {
	Host string
	Port int
}

var _ Target = SocketTarget{}

// NewSocketTarget returns a socket target for host:port.
func NewSocketTarget(host string, port int) SocketTarget {
	return SocketTarget{Host: host, Port: port}
}

func (t SocketTarget) String() string {
	return t.Host + ":" + strconv.Itoa(t.Port)
}

// Send dials the target, writes message followed by a newline and closes the
// connection. No reply is read. The context bounds both dial and write.
func (t SocketTarget) Send(ctx context.Context, message string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(t.Host, strconv.Itoa(t.Port)))
	if err != nil {
		return fmt.Errorf("dial %s: %w", t, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	if !strings.HasSuffix(message, "\n") {
		message += "\n"
	}
	if _, err := conn.Write([]byte(message)); err != nil {
		return fmt.Errorf("write %s: %w", t, err)
	}
	return nil
}

func (t SocketTarget) identity() identity {
	return identity{kind: kindSocket, host: t.Host, port: t.Port}
}

// PhoneTarget receives messages as short text messages.
type PhoneTarget struct {
	Number    string
	messenger actuator.Messenger
}

var _ Target = PhoneTarget{}

// NewPhoneTarget returns a phone target that sends through messenger.
func NewPhoneTarget(number string, messenger actuator.Messenger) PhoneTarget {
	return PhoneTarget{Number: number, messenger: messenger}
}

func (t PhoneTarget) String() string {
	return t.Number
}

func (t PhoneTarget) Send(ctx context.Context, message string) error {
	if t.messenger == nil {
		return ErrNoMessenger
	}
	return t.messenger.SendSMS(ctx, t.Number, message)
}

func (t PhoneTarget) identity() identity {
	return identity{kind: kindPhone, number: t.Number}
}

// Equal reports whether a and b address the same recipient.
func Equal(a, b Target) bool {
	return a.identity() == b.identity()
}
