package actuator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
)

// Capability names used as keys of the host action table.
const (
	ActionToast              = "toast"
	ActionNotify             = "notify"
	ActionCancelNotification = "cancelNotification"
	ActionLock               = "lock"
	ActionResetPassword      = "resetPassword"
	ActionVolume             = "volume"
	ActionBroadcast          = "broadcast"
	ActionStartService       = "startService"
	ActionStartActivity      = "startActivity"
	ActionVibrate            = "vibrate"
	ActionReboot             = "reboot"
	ActionSMS                = "sms"
	ActionWipe               = "wipe"
	ActionWifiState          = "wifiState"
	ActionWifiPower          = "wifiPower"
	ActionRinger             = "ringer"
	ActionBluetoothState     = "bluetoothState"
	ActionBluetoothPower     = "bluetoothPower"
	ActionSpeak              = "speak"
)

// Actions lists every capability name a host action table may configure.
var Actions = []string{
	ActionToast, ActionNotify, ActionCancelNotification, ActionLock,
	ActionResetPassword, ActionVolume, ActionBroadcast, ActionStartService,
	ActionStartActivity, ActionVibrate, ActionReboot, ActionSMS, ActionWipe,
	ActionWifiState, ActionWifiPower, ActionRinger, ActionBluetoothState,
	ActionBluetoothPower, ActionSpeak,
}

const (
	envPrefix            = "REMOTEHAND_"
	defaultActionTimeout = 30 * time.Second
)

// Host runs each capability as a shell command taken from its action table.
// Call arguments are exported to the command as REMOTEHAND_* environment
// variables, never spliced into the command text.
type Host struct {
	shell   string
	actions map[string]string
	timeout time.Duration
	device  DeviceInfo
	logger  *slog.Logger

	mu            sync.Mutex
	speechStarted bool
	speechReady   bool
}

var _ Executor = (*Host)(nil)

// HostOption configures a Host.
type HostOption func(*Host)

// WithShell sets the shell used to run actions (default /bin/sh).
func WithShell(shell string) HostOption {
	return func(h *Host) { h.shell = shell }
}

// WithActionTimeout bounds how long a single action may run.
func WithActionTimeout(d time.Duration) HostOption {
	return func(h *Host) { h.timeout = d }
}

// WithDevice overrides the reported device identity.
func WithDevice(d DeviceInfo) HostOption {
	return func(h *Host) { h.device = d }
}

// WithLogger sets the logger used for action failures.
func WithLogger(logger *slog.Logger) HostOption {
	return func(h *Host) { h.logger = logger }
}

// NewHost creates a Host from a capability -> command table.
func NewHost(actions map[string]string, opts ...HostOption) *Host {
	h := &Host{
		shell:   "/bin/sh",
		actions: make(map[string]string, len(actions)),
		timeout: defaultActionTimeout,
	}
	for name, cmd := range actions {
		if strings.TrimSpace(cmd) != "" {
			h.actions[name] = cmd
		}
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.device.Model == "" {
		hostname, _ := os.Hostname()
		h.device.Model = hostname
	}
	if h.device.Brand == "" {
		h.device.Brand = runtime.GOOS + "/" + runtime.GOARCH
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Supports reports whether an action is configured for the capability.
func (h *Host) Supports(name string) bool {
	_, ok := h.actions[name]
	return ok
}

func (h *Host) command(ctx context.Context, name string, args map[string]string) (*exec.Cmd, error) {
	script, ok := h.actions[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupported)
	}
	cmd := exec.CommandContext(ctx, h.shell, "-c", script)
	env := os.Environ()
	for k, v := range args {
		env = append(env, envPrefix+strings.ToUpper(k)+"="+v)
	}
	cmd.Env = env
	return cmd, nil
}

// run executes the action and returns its trimmed standard output.
func (h *Host) run(ctx context.Context, name string, args map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd, err := h.command(ctx, name, args)
	if err != nil {
		return "", err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// try runs an action whose outcome is reported as a boolean: a non-zero exit
// is a refusal, not an error.
func (h *Host) try(ctx context.Context, name string, args map[string]string) (bool, error) {
	_, err := h.run(ctx, name, args)
	if err == nil {
		return true, nil
	}
	if _, ok := h.actions[name]; !ok {
		return false, err
	}
	h.logger.Warn("host action refused", "action", name, "error", err)
	return false, nil
}

func (h *Host) Toast(ctx context.Context, message string) error {
	_, err := h.run(ctx, ActionToast, map[string]string{"message": message})
	return err
}

func (h *Host) Notify(ctx context.Context, n Notification) error {
	_, err := h.run(ctx, ActionNotify, map[string]string{
		"id":      strconv.Itoa(n.ID),
		"title":   n.Title,
		"content": n.Content,
		"info":    n.Info,
		"ticker":  n.Ticker,
	})
	return err
}

func (h *Host) CancelNotification(ctx context.Context, id int) error {
	_, err := h.run(ctx, ActionCancelNotification, map[string]string{"id": strconv.Itoa(id)})
	return err
}

func (h *Host) LockNow(ctx context.Context) error {
	_, err := h.run(ctx, ActionLock, nil)
	return err
}

func (h *Host) ResetPassword(ctx context.Context, password string) (bool, error) {
	return h.try(ctx, ActionResetPassword, map[string]string{"password": password})
}

func (h *Host) SetVolume(ctx context.Context, volume int) error {
	_, err := h.run(ctx, ActionVolume, map[string]string{"volume": strconv.Itoa(volume)})
	return err
}

func intentArgs(intent Intent) map[string]string {
	args := map[string]string{"action": intent.Action}
	if intent.HasExtra() {
		args["key"] = intent.Key
		args["value"] = intent.Value
	}
	return args
}

func (h *Host) SendBroadcast(ctx context.Context, intent Intent) error {
	_, err := h.run(ctx, ActionBroadcast, intentArgs(intent))
	return err
}

func (h *Host) StartService(ctx context.Context, intent Intent) error {
	_, err := h.run(ctx, ActionStartService, intentArgs(intent))
	return err
}

func (h *Host) StartActivity(ctx context.Context, intent Intent) error {
	_, err := h.run(ctx, ActionStartActivity, intentArgs(intent))
	return err
}

func (h *Host) Vibrate(ctx context.Context, d time.Duration) error {
	_, err := h.run(ctx, ActionVibrate, map[string]string{"millis": strconv.FormatInt(d.Milliseconds(), 10)})
	return err
}

func (h *Host) Reboot(ctx context.Context, reason string) error {
	_, err := h.run(ctx, ActionReboot, map[string]string{"reason": reason})
	return err
}

// RunCommand starts command in the host shell and returns without waiting
// for it to finish.
func (h *Host) RunCommand(ctx context.Context, command string) error {
	cmd := exec.Command(h.shell, "-c", command)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("run command: %w", err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			h.logger.Debug("command exited", "error", err)
		}
	}()
	return nil
}

func (h *Host) SendSMS(ctx context.Context, number, text string) error {
	_, err := h.run(ctx, ActionSMS, map[string]string{"number": number, "text": text})
	return err
}

func (h *Host) WipeData(ctx context.Context) error {
	_, err := h.run(ctx, ActionWipe, nil)
	return err
}

// WifiState returns the radio state printed by the wifiState action, one of
// disabling, disabled, enabling, enabled or unknown.
func (h *Host) WifiState(ctx context.Context) (string, error) {
	out, err := h.run(ctx, ActionWifiState, nil)
	if err != nil {
		return "", err
	}
	switch s := strings.ToLower(out); s {
	case "disabling", "disabled", "enabling", "enabled":
		return s, nil
	default:
		return "unknown", nil
	}
}

func (h *Host) SetWifi(ctx context.Context, enabled bool) (bool, error) {
	return h.try(ctx, ActionWifiPower, map[string]string{"power": strconv.FormatBool(enabled)})
}

func (h *Host) SetRingerMode(ctx context.Context, mode RingerMode) error {
	_, err := h.run(ctx, ActionRinger, map[string]string{"mode": string(mode)})
	return err
}

func (h *Host) BluetoothEnabled(ctx context.Context) (bool, error) {
	out, err := h.run(ctx, ActionBluetoothState, nil)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(out) {
	case "true", "on", "enabled", "yes", "1":
		return true, nil
	default:
		return false, nil
	}
}

func (h *Host) SetBluetooth(ctx context.Context, enabled bool) (bool, error) {
	return h.try(ctx, ActionBluetoothPower, map[string]string{"power": strconv.FormatBool(enabled)})
}

func (h *Host) SpeechReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.speechReady
}

// StartSpeech loads the speech engine. The engine reports ready only when a
// speak action is configured.
func (h *Host) StartSpeech(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.speechStarted = true
	h.speechReady = h.Supports(ActionSpeak)
	return nil
}

func (h *Host) Speak(ctx context.Context, lang language.Tag, text string) error {
	if !h.SpeechReady() {
		return ErrSpeechNotReady
	}
	_, err := h.run(ctx, ActionSpeak, map[string]string{"language": lang.String(), "message": text})
	return err
}

// StopSpeech shuts the engine down and reports whether one had been started.
func (h *Host) StopSpeech() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	started := h.speechStarted
	h.speechStarted = false
	h.speechReady = false
	return started
}

func (h *Host) Device() DeviceInfo {
	return h.device
}
