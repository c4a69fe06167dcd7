// Package qrshare draws the QR codes printed next to a sensor so field staff
// can open the map with that sensor already selected.
//
// The code is generated with ECC=H and a square in the middle is cleared for a
// flood badge: a filled circle with three white wave bars.
package qrshare

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrEmptyLink is returned when there is nothing to encode.
var ErrEmptyLink = errors.New("qrshare: empty link")

type Options struct {
	Size      int        // output edge in px
	Fg        color.RGBA // modules
	Bg        color.RGBA // background and quiet zone
	Badge     color.RGBA
	BadgeFrac float64 // badge box edge as a share of the image, 0.15..0.30
}

// DefaultOptions are the colours of the printed labels.
func DefaultOptions() Options {
	return Options{
		Size:      512,
		Fg:        color.RGBA{0x1A, 0x1A, 0x1A, 0xFF},
		Bg:        color.RGBA{0xFF, 0xFF, 0xFF, 0xFF},
		Badge:     color.RGBA{0x1A, 0x44, 0x88, 0xFF},
		BadgeFrac: 0.24,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Size <= 0 {
		o.Size = def.Size
	}
	if (o.Fg == color.RGBA{}) {
		o.Fg = def.Fg
	}
	if (o.Bg == color.RGBA{}) {
		o.Bg = def.Bg
	}
	if (o.Badge == color.RGBA{}) {
		o.Badge = def.Badge
	}
	switch {
	case o.BadgeFrac <= 0:
		o.BadgeFrac = def.BadgeFrac
	case o.BadgeFrac < 0.15:
		o.BadgeFrac = 0.15
	case o.BadgeFrac > 0.30:
		// ECC=H recovers about 30% of the modules; keep well inside it.
		o.BadgeFrac = 0.30
	}
	return o
}

// SensorLink is the deep link that preselects sensor id on the map at base.
func SensorLink(base, id string) string {
	return strings.TrimRight(base, "/") + "/?sensor=" + url.QueryEscape(id)
}

// EncodePNG writes a QR code for link to w.
func EncodePNG(w io.Writer, link string, opt Options) error {
	if link == "" {
		return ErrEmptyLink
	}
	opt = opt.withDefaults()

	qr, err := qrcode.New(link, qrcode.Highest)
	if err != nil {
		return err
	}
	qr.ForegroundColor = opt.Fg
	qr.BackgroundColor = opt.Bg

	src := qr.Image(opt.Size)
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	edge := int(opt.BadgeFrac * float64(min(b.Dx(), b.Dy())))
	edge -= edge % 2
	cx, cy := b.Dx()/2, b.Dy()/2
	fillRect(dst, cx-edge/2, cy-edge/2, edge, edge, opt.Bg)
	drawBadge(dst, cx, cy, edge, opt.Badge, opt.Bg)

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, dst)
}

// drawBadge paints a disc with three wave bars cut out of it.
func drawBadge(dst *image.RGBA, cx, cy, edge int, fg, bg color.RGBA) {
	r := int(0.46 * float64(edge))
	fillCircle(dst, cx, cy, r, fg)

	amp := float64(r) * 0.08
	thick := max(1, r/9)
	span := int(0.62 * float64(r))
	for i := -1; i <= 1; i++ {
		baseY := cy + i*r/3
		for x := cx - span; x <= cx+span; x++ {
			phase := float64(x-cx) / float64(span) * 2 * math.Pi
			y := baseY + int(amp*math.Sin(phase))
			fillRect(dst, x, y-thick/2, 1, thick, bg)
		}
	}
}

func fillRect(img *image.RGBA, x, y, w, h int, col color.RGBA) {
	r := image.Rect(x, y, x+w, y+h).Intersect(img.Bounds())
	draw.Draw(img, r, &image.Uniform{C: col}, image.Point{}, draw.Src)
}

func fillCircle(img *image.RGBA, cx, cy, r int, col color.RGBA) {
	if r <= 0 {
		return
	}
	for dy := -r; dy <= r; dy++ {
		dx := int(math.Sqrt(float64(r*r - dy*dy)))
		fillRect(img, cx-dx, cy+dy, 2*dx+1, 1, col)
	}
}
