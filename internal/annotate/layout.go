// Package annotate bakes watermark and geotag overlays into captured
// frames.
//
// Composition is split in two: Plan computes the overlay as a list of
// drawing operations, and Render rasterizes it. Plan is pure and depends
// only on its arguments (never the wall clock), so the same capture always
// produces the same layout and the same JPEG bytes.
package annotate

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/roach88/readykit/internal/geo"
)

// TimeLayout formats overlay timestamps, e.g. "Jul 14, 2026, 09:00:00 AM".
const TimeLayout = "Jan 2, 2006, 03:04:05 PM"

const (
	labelWidth     = 300
	labelHeight    = 80
	logoSize       = 50
	geoFooterH     = 160
	dateFooterH    = 60
	footerMarginX  = 25
	geotagHeadline = "GEOTAGGED PHOTO"
	logoName       = "logo"
)

// Paint is an sRGB color with a fractional alpha.
type Paint struct {
	R, G, B uint8
	A       float64
}

var (
	amber  = Paint{0xFB, 0xBF, 0x24, 1}
	white  = Paint{0xFF, 0xFF, 0xFF, 1}
	label  = Paint{0, 0, 0, 0.7}
	footer = Paint{0, 0, 0, 0.8}
)

func (p Paint) String() string {
	if p.A >= 1 {
		return fmt.Sprintf("#%02X%02X%02X", p.R, p.G, p.B)
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%.2f)", p.R, p.G, p.B, p.A)
}

// Font selects a face of the built-in family.
type Font struct {
	Size float64
	Bold bool
}

func (f Font) String() string {
	if f.Bold {
		return fmt.Sprintf("bold %gpx", f.Size)
	}
	return fmt.Sprintf("%gpx", f.Size)
}

// OpKind names a drawing primitive.
type OpKind string

const (
	OpRect  OpKind = "rect"
	OpText  OpKind = "text"
	OpImage OpKind = "image"
)

// Op is one drawing step. Text ops are positioned by their baseline.
type Op struct {
	Kind  OpKind
	X, Y  float64
	W, H  float64
	Paint Paint
	Font  Font
	Text  string
}

func (o Op) String() string {
	switch o.Kind {
	case OpRect:
		return fmt.Sprintf("rect x=%g y=%g w=%g h=%g fill=%s", o.X, o.Y, o.W, o.H, o.Paint)
	case OpText:
		return fmt.Sprintf("text x=%g y=%g font=%s fill=%s %q", o.X, o.Y, o.Font, o.Paint, o.Text)
	case OpImage:
		return fmt.Sprintf("image x=%g y=%g w=%g h=%g %s", o.X, o.Y, o.W, o.H, o.Text)
	}
	return string(o.Kind)
}

// Layout is a complete overlay for a canvas of Width×Height.
type Layout struct {
	Width, Height int
	Ops           []Op
}

// String renders the layout one op per line.
func (l Layout) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "canvas %dx%d\n", l.Width, l.Height)
	for _, op := range l.Ops {
		b.WriteString(op.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Watermark configures the overlay.
type Watermark struct {
	Text     string
	Subtext  string
	ShowGPS  bool
	ShowDate bool
	ShowLogo bool
	Logo     image.Image
}

// DefaultWatermark is the stock branding with GPS and date enabled.
func DefaultWatermark() Watermark {
	return Watermark{
		Text:     "Resilient Pio Duran",
		Subtext:  "Prepared for Tomorrow",
		ShowGPS:  true,
		ShowDate: true,
	}
}

// Plan lays out the overlay for a width×height frame.
//
// The label block is always drawn. With GPS enabled and a reading present
// (even one without a fix) the 160px geotag footer is drawn; otherwise,
// with the date enabled, a 60px time footer. The timestamp comes from the
// reading, or capturedAt when there is none.
func Plan(width, height int, reading *geo.Reading, capturedAt time.Time, wm Watermark) Layout {
	h := float64(height)
	l := Layout{Width: width, Height: height}
	add := func(op Op) { l.Ops = append(l.Ops, op) }

	add(Op{Kind: OpRect, X: 0, Y: 0, W: labelWidth, H: labelHeight, Paint: label})
	add(Op{Kind: OpText, X: 10, Y: 30, Font: Font{Size: 20, Bold: true}, Paint: amber, Text: wm.Text})
	add(Op{Kind: OpText, X: 10, Y: 55, Font: Font{Size: 16}, Paint: white, Text: wm.Subtext})

	if wm.ShowLogo && wm.Logo != nil {
		add(Op{Kind: OpImage, X: 10, Y: 10, W: logoSize, H: logoSize, Text: logoName})
	}

	at := capturedAt
	if reading != nil && !reading.CapturedAt.IsZero() {
		at = reading.CapturedAt
	}
	timeText := "Time: " + at.Format(TimeLayout)
	body := Font{Size: 20}

	switch {
	case wm.ShowGPS && reading != nil:
		add(Op{Kind: OpRect, X: 0, Y: h - geoFooterH, W: float64(width), H: geoFooterH, Paint: footer})
		add(Op{Kind: OpText, X: footerMarginX, Y: h - 125, Font: Font{Size: 28, Bold: true}, Paint: amber, Text: geotagHeadline})
		add(Op{Kind: OpText, X: footerMarginX, Y: h - 90, Font: body, Paint: white,
			Text: fmt.Sprintf("Lat: %s°  Long: %s°", reading.Latitude.Format(6), reading.Longitude.Format(6))})
		if wm.ShowDate {
			add(Op{Kind: OpText, X: footerMarginX, Y: h - 60, Font: body, Paint: white, Text: timeText})
		}
		if reading.Accuracy.Valid {
			add(Op{Kind: OpText, X: footerMarginX, Y: h - 30, Font: body, Paint: white,
				Text: fmt.Sprintf("Alt: %sm  Acc: ±%sm", reading.Altitude.Format(2), reading.Accuracy.Format(2))})
		}
	case wm.ShowDate:
		add(Op{Kind: OpRect, X: 0, Y: h - dateFooterH, W: float64(width), H: dateFooterH, Paint: footer})
		add(Op{Kind: OpText, X: footerMarginX, Y: h - 25, Font: body, Paint: white, Text: timeText})
	}
	return l
}

// Filename names an exported composite after its capture time, e.g.
// "geotag_2026-07-14T09-00-00-000Z.jpg".
func Filename(t time.Time) string {
	iso := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return "geotag_" + strings.NewReplacer(":", "-", ".", "-").Replace(iso) + ".jpg"
}
