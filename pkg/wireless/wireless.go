// Package wireless re-establishes the station's network session after a
// failed cycle.
package wireless

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ericogr/weather-station/pkg/config"
	"github.com/ericogr/weather-station/pkg/output"
)

// DefaultResetCommand asks wpa_supplicant to re-associate the interface.
var DefaultResetCommand = []string{"wpa_cli", "-i", "{iface}", "reassociate"}

type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Link re-associates the wireless interface by running a configured command.
// Placeholders {iface}, {ssid} and {password} are substituted per argument.
type Link struct {
	cfg  config.WirelessConfig
	argv []string
	run  runner
}

// NewLink returns a Link for cfg. An empty interface with no explicit command
// yields a Link whose Reassociate does nothing.
func NewLink(cfg config.WirelessConfig) *Link {
	argv := cfg.ResetCommand
	if len(argv) == 0 && cfg.Interface != "" {
		argv = DefaultResetCommand
	}
	return &Link{cfg: cfg, argv: argv, run: execRunner}
}

func (l *Link) Reassociate(ctx context.Context) error {
	if len(l.argv) == 0 {
		return nil
	}
	r := strings.NewReplacer("{iface}", l.cfg.Interface, "{ssid}", l.cfg.SSID, "{password}", l.cfg.Password)
	args := make([]string, len(l.argv))
	for i, a := range l.argv {
		args[i] = r.Replace(a)
	}
	out, err := l.run(ctx, args[0], args[1:]...)
	if err != nil {
		// the password never reaches the error text
		return fmt.Errorf("wireless reset %s: %w: %s", l.argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Session is the transport handle the acquisition loop resets: the wireless
// association plus the uploader's connection on top of it.
type Session struct {
	link     *Link
	uploader output.Uploader
}

func NewSession(link *Link, uploader output.Uploader) *Session {
	return &Session{link: link, uploader: uploader}
}

// Reset re-associates the link, then re-opens the uploader session. The
// uploader is reset even when re-association fails.
func (s *Session) Reset(ctx context.Context) error {
	var errs []error
	if s.link != nil {
		errs = append(errs, s.link.Reassociate(ctx))
	}
	if s.uploader != nil {
		if err := s.uploader.Reset(ctx); err != nil {
			errs = append(errs, fmt.Errorf("uploader reset: %w", err))
		}
	}
	return errors.Join(errs...)
}
