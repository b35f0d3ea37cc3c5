// Package actuator defines the host capabilities the agent can drive and a
// host implementation that maps each capability to a configured shell
// command.
package actuator

import (
	"context"
	"errors"
	"time"

	"golang.org/x/text/language"
)

var (
	// ErrUnsupported is returned for a capability the host has no action for.
	ErrUnsupported = errors.New("action not supported on this host")
	// ErrSpeechNotReady is returned by Speak before the speech engine is loaded.
	ErrSpeechNotReady = errors.New("speech engine not ready")
)

// Notification describes a status notification raised on the host.
type Notification struct {
	ID      int
	Title   string
	Content string
	Info    string
	Ticker  string
}

// Intent is an opaque action descriptor: an action name plus at most one
// extra key/value pair. It is handed to the host untouched.
type Intent struct {
	Action string
	Key    string
	Value  string
}

// HasExtra reports whether the intent carries its key/value pair.
func (i Intent) HasExtra() bool {
	return i.Key != ""
}

// RingerMode is a host ringer setting.
type RingerMode string

const (
	RingerSilent  RingerMode = "silent"
	RingerNormal  RingerMode = "normal"
	RingerVibrate RingerMode = "vibrate"
)

// ParseRingerMode maps a client supplied mode name to a RingerMode.
func ParseRingerMode(s string) (RingerMode, bool) {
	switch RingerMode(s) {
	case RingerSilent, RingerNormal, RingerVibrate:
		return RingerMode(s), true
	}
	return "", false
}

// DeviceInfo identifies the host in greetings.
type DeviceInfo struct {
	Brand string
	Model string
}

// Messenger sends a short text message to a phone number.
type Messenger interface {
	SendSMS(ctx context.Context, number, text string) error
}

// Executor is the table of host capabilities. Every method performs one
// host-side effect and may fail; callers must not assume any capability is
// available.
type Executor interface {
	Messenger

	Toast(ctx context.Context, message string) error
	Notify(ctx context.Context, n Notification) error
	CancelNotification(ctx context.Context, id int) error
	LockNow(ctx context.Context) error
	ResetPassword(ctx context.Context, password string) (bool, error)
	SetVolume(ctx context.Context, volume int) error
	SendBroadcast(ctx context.Context, intent Intent) error
	StartService(ctx context.Context, intent Intent) error
	StartActivity(ctx context.Context, intent Intent) error
	Vibrate(ctx context.Context, d time.Duration) error
	Reboot(ctx context.Context, reason string) error
	RunCommand(ctx context.Context, command string) error
	WipeData(ctx context.Context) error
	WifiState(ctx context.Context) (string, error)
	SetWifi(ctx context.Context, enabled bool) (bool, error)
	SetRingerMode(ctx context.Context, mode RingerMode) error
	BluetoothEnabled(ctx context.Context) (bool, error)
	SetBluetooth(ctx context.Context, enabled bool) (bool, error)

	SpeechReady() bool
	StartSpeech(ctx context.Context) error
	Speak(ctx context.Context, lang language.Tag, text string) error
	StopSpeech() bool

	Device() DeviceInfo
}
