package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/roach88/readykit/internal/capture"
	"github.com/roach88/readykit/internal/geo"
)

// JPEGQuality is the export quality.
const JPEGQuality = 92

var (
	fontsOnce sync.Once
	regular   *opentype.Font
	bold      *opentype.Font
	fontsErr  error
)

func loadFonts() error {
	fontsOnce.Do(func() {
		if regular, fontsErr = opentype.Parse(goregular.TTF); fontsErr != nil {
			return
		}
		bold, fontsErr = opentype.Parse(gobold.TTF)
	})
	return fontsErr
}

// faces caches the faces needed by one render.
type faces map[Font]font.Face

func (f faces) get(fnt Font) (font.Face, error) {
	if face, ok := f[fnt]; ok {
		return face, nil
	}
	src := regular
	if fnt.Bold {
		src = bold
	}
	face, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    fnt.Size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("font %s: %w", fnt, err)
	}
	f[fnt] = face
	return face, nil
}

func (f faces) close() {
	for _, face := range f {
		face.Close()
	}
}

// Render draws base and then every op of l. logo is required when l
// contains an image op.
func Render(base image.Image, l Layout, logo image.Image) (*image.RGBA, error) {
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, l.Width, l.Height))
	draw.Draw(canvas, canvas.Bounds(), base, base.Bounds().Min, draw.Src)

	dc := gg.NewContextForRGBA(canvas)
	cache := faces{}
	defer cache.close()

	for _, op := range l.Ops {
		switch op.Kind {
		case OpRect:
			setPaint(dc, op.Paint)
			dc.DrawRectangle(op.X, op.Y, op.W, op.H)
			dc.Fill()
		case OpText:
			face, err := cache.get(op.Font)
			if err != nil {
				return nil, err
			}
			dc.SetFontFace(face)
			setPaint(dc, op.Paint)
			dc.DrawString(op.Text, op.X, op.Y)
		case OpImage:
			if logo == nil {
				return nil, fmt.Errorf("layout draws %s but none was supplied", op.Text)
			}
			scaled := image.NewRGBA(image.Rect(0, 0, int(op.W), int(op.H)))
			draw.CatmullRom.Scale(scaled, scaled.Bounds(), logo, logo.Bounds(), draw.Over, nil)
			dc.DrawImage(scaled, int(op.X), int(op.Y))
		default:
			return nil, fmt.Errorf("unknown op %q", op.Kind)
		}
	}
	return canvas, nil
}

func setPaint(dc *gg.Context, p Paint) {
	dc.SetRGBA(float64(p.R)/255, float64(p.G)/255, float64(p.B)/255, p.A)
}

// Composite is a finished, immutable annotated image.
type Composite struct {
	JPEG       []byte
	Width      int
	Height     int
	Watermark  Watermark
	Reading    *geo.Reading
	CapturedAt time.Time
	Filename   string
}

// Compose annotates raw with wm and the optional reading and encodes the
// result as JPEG. Identical inputs produce identical bytes.
func Compose(raw capture.Raw, reading *geo.Reading, wm Watermark) (Composite, error) {
	if raw.Image == nil {
		return Composite{}, fmt.Errorf("compose: no frame")
	}
	b := raw.Image.Bounds()
	layout := Plan(b.Dx(), b.Dy(), reading, raw.CapturedAt, wm)

	img, err := Render(raw.Image, layout, wm.Logo)
	if err != nil {
		return Composite{}, fmt.Errorf("compose: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return Composite{}, fmt.Errorf("compose: encode: %w", err)
	}

	var snapshot *geo.Reading
	if reading != nil {
		r := *reading
		snapshot = &r
	}
	return Composite{
		JPEG:       buf.Bytes(),
		Width:      b.Dx(),
		Height:     b.Dy(),
		Watermark:  wm,
		Reading:    snapshot,
		CapturedAt: raw.CapturedAt,
		Filename:   Filename(raw.CapturedAt),
	}, nil
}
