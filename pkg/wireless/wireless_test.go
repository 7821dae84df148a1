package wireless

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ericogr/weather-station/pkg/config"
	"github.com/ericogr/weather-station/pkg/output"
)

type call struct {
	name string
	args []string
}

func recordRunner(calls *[]call, err error) runner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, call{name, args})
		if err != nil {
			return []byte("FAIL\n"), err
		}
		return []byte("OK\n"), nil
	}
}

func TestReassociateDefaultCommand(t *testing.T) {
	var calls []call
	l := NewLink(config.WirelessConfig{Interface: "wlan0"})
	l.run = recordRunner(&calls, nil)
	if err := l.Reassociate(context.Background()); err != nil {
		t.Fatalf("Reassociate: %v", err)
	}
	want := []call{{"wpa_cli", []string{"-i", "wlan0", "reassociate"}}}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls: got %v want %v", calls, want)
	}
}

func TestReassociatePlaceholders(t *testing.T) {
	var calls []call
	l := NewLink(config.WirelessConfig{
		Interface:    "wlan1",
		SSID:         "home",
		Password:     "hunter2",
		ResetCommand: []string{"nmcli", "dev", "wifi", "connect", "{ssid}", "password", "{password}", "ifname", "{iface}"},
	})
	l.run = recordRunner(&calls, errors.New("exit status 10"))
	err := l.Reassociate(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Fatalf("password leaked into error: %v", err)
	}
	want := []string{"dev", "wifi", "connect", "home", "password", "hunter2", "ifname", "wlan1"}
	if len(calls) != 1 || calls[0].name != "nmcli" || !reflect.DeepEqual(calls[0].args, want) {
		t.Fatalf("calls: %v", calls)
	}
}

func TestReassociateNoop(t *testing.T) {
	var calls []call
	l := NewLink(config.WirelessConfig{})
	l.run = recordRunner(&calls, nil)
	if err := l.Reassociate(context.Background()); err != nil {
		t.Fatalf("Reassociate: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("unexpected command: %v", calls)
	}
}

type resettingUploader struct {
	output.Discard
	resets int
	err    error
}

func (u *resettingUploader) Reset(context.Context) error {
	u.resets++
	return u.err
}

func TestSessionResetsUploaderAfterLinkFailure(t *testing.T) {
	var calls []call
	l := NewLink(config.WirelessConfig{Interface: "wlan0"})
	l.run = recordRunner(&calls, errors.New("no wpa_supplicant"))
	u := &resettingUploader{}

	err := NewSession(l, u).Reset(context.Background())
	if err == nil {
		t.Fatalf("expected link error")
	}
	if u.resets != 1 {
		t.Fatalf("uploader resets: %d", u.resets)
	}
}

func TestSessionJoinsErrors(t *testing.T) {
	uerr := errors.New("broker down")
	u := &resettingUploader{err: uerr}
	err := NewSession(NewLink(config.WirelessConfig{}), u).Reset(context.Background())
	if !errors.Is(err, uerr) {
		t.Fatalf("expected uploader error, got %v", err)
	}
}
