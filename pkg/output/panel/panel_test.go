package panel

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ericogr/weather-station/pkg/sensor"
	"github.com/ericogr/weather-station/pkg/telemetry"
)

func TestPanelRenderWritesPNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panel.png")
	d, err := NewPanel(path, 0, 0)
	if err != nil {
		t.Fatalf("NewPanel: %v", err)
	}

	frame := telemetry.Frame{
		UVIndex:   1.5,
		Climate:   sensor.ClimateReading{Temperature: 20, Humidity: 50, Pressure: 1013, Altitude: 2},
		Gas:       sensor.GasReading{ECO2: 1200, TVOC: 80},
		WindSpeed: 3.2,
		Timestamp: time.Now(),
	}
	for i := 0; i < 2; i++ {
		if err := d.Render(context.Background(), frame); err != nil {
			t.Fatalf("Render: %v", err)
		}
	}

	fh, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer fh.Close()
	img, err := png.Decode(fh)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != DefaultWidth || b.Dy() != DefaultHeight {
		t.Fatalf("size: %v", b)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestPanelDrawsText(t *testing.T) {
	d, err := NewPanel(filepath.Join(t.TempDir(), "p.png"), 200, 200)
	if err != nil {
		t.Fatalf("NewPanel: %v", err)
	}
	img := d.(*PanelDisplay).draw(telemetry.Frame{Timestamp: time.Now()})
	bg := img.RGBAAt(0, 0)
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			if img.RGBAAt(x, y) != bg {
				return
			}
		}
	}
	t.Fatalf("no text drawn")
}

func TestPanelRequiresPath(t *testing.T) {
	if _, err := NewPanel("", 10, 10); err == nil {
		t.Fatalf("expected error")
	}
}
