// Package panel renders frames as an image for the station's screen.
package panel

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ericogr/weather-station/pkg/output"
	"github.com/ericogr/weather-station/pkg/telemetry"
)

const (
	DefaultWidth  = 320
	DefaultHeight = 240

	dpi     float64 = 72
	size    float64 = 18
	spacing float64 = 1.25
	margin          = 8
)

var background = color.RGBA{R: 0x10, G: 0x18, B: 0x28, A: 0xFF}

// PanelDisplay writes each frame as a PNG to path, replacing the previous one
// atomically so a viewer never sees a partial image.
type PanelDisplay struct {
	path          string
	width, height int
	fc            *freetype.Context
}

func NewPanel(path string, width, height int) (output.Display, error) {
	if path == "" {
		return nil, fmt.Errorf("panel path is required")
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	c := freetype.NewContext()
	c.SetDPI(dpi)
	c.SetFont(parsedFont)
	c.SetFontSize(size)
	c.SetSrc(image.White)
	c.SetHinting(font.HintingFull)

	return &PanelDisplay{path: path, width: width, height: height, fc: c}, nil
}

func (p *PanelDisplay) Render(_ context.Context, f telemetry.Frame) error {
	img := p.draw(f)

	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".panel-*.png")
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replace image: %w", err)
	}
	return nil
}

func (p *PanelDisplay) draw(f telemetry.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)

	p.fc.SetClip(img.Bounds())
	p.fc.SetDst(img)

	lines := []string{
		fmt.Sprintf("UV index  %.3f", f.UVIndex),
		fmt.Sprintf("Temp      %.1f °C", f.Climate.Temperature),
		fmt.Sprintf("Humidity  %.1f %%", f.Climate.Humidity),
		fmt.Sprintf("Pressure  %.1f hPa", f.Climate.Pressure),
		fmt.Sprintf("Altitude  %.0f m", f.Climate.Altitude),
		fmt.Sprintf("eCO2 %s ppm  TVOC %s ppb", humanize.Comma(int64(f.Gas.ECO2)), humanize.Comma(int64(f.Gas.TVOC))),
		fmt.Sprintf("Wind      %.1f m/s", f.WindSpeed),
		"Updated " + f.Timestamp.Format("15:04:05"),
	}

	pt := freetype.Pt(margin, margin+int(size))
	for _, s := range lines {
		_, _ = p.fc.DrawString(s, pt)
		pt.Y += p.fc.PointToFixed(size * spacing)
	}
	return img
}

func (p *PanelDisplay) Close() error { return nil }
