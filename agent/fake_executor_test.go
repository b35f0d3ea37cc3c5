package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/jmcleod/remotehand/actuator"
)

type smsMessage struct {
	number string
	text   string
}

// fakeExecutor records every capability call. Failures can be injected per
// capability name.
type fakeExecutor struct {
	mu            sync.Mutex
	calls         []string
	fail          map[string]error
	notifications []actuator.Notification
	intents       []actuator.Intent
	sms           []smsMessage
	volume        int
	vibrations    []time.Duration
	spoken        []string
	speechStarted bool
	speechReady   bool
	wifiState     string
	wifiResult    bool
	bluetoothOn   bool
	resetResult   bool
	ringer        actuator.RingerMode
	wipes         int
}

var _ actuator.Executor = (*fakeExecutor)(nil)

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		fail:        make(map[string]error),
		wifiState:   "enabled",
		wifiResult:  true,
		resetResult: true,
	}
}

func (f *fakeExecutor) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.fail[name]
}

func (f *fakeExecutor) failOn(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = err
}

func (f *fakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeExecutor) SMS() []smsMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]smsMessage(nil), f.sms...)
}

func (f *fakeExecutor) Toast(_ context.Context, message string) error {
	return f.record("toast:" + message)
}

func (f *fakeExecutor) Notify(_ context.Context, n actuator.Notification) error {
	if err := f.record(fmt.Sprintf("notify:%d", n.ID)); err != nil {
		return err
	}
	f.mu.Lock()
	f.notifications = append(f.notifications, n)
	f.mu.Unlock()
	return nil
}

func (f *fakeExecutor) CancelNotification(_ context.Context, id int) error {
	return f.record(fmt.Sprintf("cancelNotification:%d", id))
}

func (f *fakeExecutor) LockNow(context.Context) error {
	return f.record("lock")
}

func (f *fakeExecutor) ResetPassword(_ context.Context, password string) (bool, error) {
	if err := f.record("resetPassword:" + password); err != nil {
		return false, err
	}
	return f.resetResult, nil
}

func (f *fakeExecutor) SetVolume(_ context.Context, volume int) error {
	if err := f.record("volume"); err != nil {
		return err
	}
	f.mu.Lock()
	f.volume = volume
	f.mu.Unlock()
	return nil
}

func (f *fakeExecutor) intent(name string, in actuator.Intent) error {
	if err := f.record(name + ":" + in.Action); err != nil {
		return err
	}
	f.mu.Lock()
	f.intents = append(f.intents, in)
	f.mu.Unlock()
	return nil
}

func (f *fakeExecutor) SendBroadcast(_ context.Context, in actuator.Intent) error {
	return f.intent("broadcast", in)
}

func (f *fakeExecutor) StartService(_ context.Context, in actuator.Intent) error {
	return f.intent("startService", in)
}

func (f *fakeExecutor) StartActivity(_ context.Context, in actuator.Intent) error {
	return f.intent("startActivity", in)
}

func (f *fakeExecutor) Vibrate(_ context.Context, d time.Duration) error {
	if err := f.record("vibrate"); err != nil {
		return err
	}
	f.mu.Lock()
	f.vibrations = append(f.vibrations, d)
	f.mu.Unlock()
	return nil
}

func (f *fakeExecutor) Reboot(context.Context, string) error {
	return f.record("reboot")
}

func (f *fakeExecutor) RunCommand(_ context.Context, command string) error {
	return f.record("run:" + command)
}

func (f *fakeExecutor) SendSMS(_ context.Context, number, text string) error {
	if err := f.record("sms:" + number); err != nil {
		return err
	}
	f.mu.Lock()
	f.sms = append(f.sms, smsMessage{number: number, text: text})
	f.mu.Unlock()
	return nil
}

func (f *fakeExecutor) WipeData(context.Context) error {
	if err := f.record("wipe"); err != nil {
		return err
	}
	f.mu.Lock()
	f.wipes++
	f.mu.Unlock()
	return nil
}

func (f *fakeExecutor) WifiState(context.Context) (string, error) {
	if err := f.record("wifiState"); err != nil {
		return "", err
	}
	return f.wifiState, nil
}

func (f *fakeExecutor) SetWifi(_ context.Context, enabled bool) (bool, error) {
	if err := f.record(fmt.Sprintf("wifiPower:%t", enabled)); err != nil {
		return false, err
	}
	return f.wifiResult, nil
}

func (f *fakeExecutor) SetRingerMode(_ context.Context, mode actuator.RingerMode) error {
	if err := f.record("ringer:" + string(mode)); err != nil {
		return err
	}
	f.mu.Lock()
	f.ringer = mode
	f.mu.Unlock()
	return nil
}

func (f *fakeExecutor) BluetoothEnabled(context.Context) (bool, error) {
	if err := f.record("bluetoothState"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bluetoothOn, nil
}

func (f *fakeExecutor) SetBluetooth(_ context.Context, enabled bool) (bool, error) {
	if err := f.record(fmt.Sprintf("bluetoothPower:%t", enabled)); err != nil {
		return false, err
	}
	f.mu.Lock()
	f.bluetoothOn = enabled
	f.mu.Unlock()
	return true, nil
}

func (f *fakeExecutor) SpeechReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speechReady
}

func (f *fakeExecutor) StartSpeech(context.Context) error {
	if err := f.record("startSpeech"); err != nil {
		return err
	}
	f.mu.Lock()
	f.speechStarted = true
	f.speechReady = true
	f.mu.Unlock()
	return nil
}

func (f *fakeExecutor) Speak(_ context.Context, lang language.Tag, text string) error {
	if err := f.record("speak:" + lang.String()); err != nil {
		return err
	}
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeExecutor) StopSpeech() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	started := f.speechStarted
	f.speechStarted = false
	f.speechReady = false
	return started
}

func (f *fakeExecutor) Device() actuator.DeviceInfo {
	return actuator.DeviceInfo{Brand: "Acme", Model: "Phone 3"}
}
