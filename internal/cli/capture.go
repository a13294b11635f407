package cli

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/readykit/internal/annotate"
	"github.com/roach88/readykit/internal/capture"
	"github.com/roach88/readykit/internal/fault"
	"github.com/roach88/readykit/internal/geo"
)

type captureFlags struct {
	sourceDir string
	facing    string
	noGPS     bool
	noDate    bool
	text      string
	subtext   string
	logo      string
	out       string
}

// CaptureView is the output of "capture".
type CaptureView struct {
	Path      string       `json:"path"`
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	Facing    string       `json:"facing"`
	GPSStatus geo.Status   `json:"gps_status,omitempty"`
	Reading   *geo.Reading `json:"reading,omitempty"`
}

func newCaptureCommand(opts *RootOptions) *cobra.Command {
	f := &captureFlags{}
	wm := annotate.DefaultWatermark()

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a still and export it with watermark and geotag",
		Long: `Capture one frame from a directory of still images and export it as
an annotated JPEG named after the capture time.

The source directory holds one image per camera: files named back.* or
environment.* serve the back camera, front.* or user.* the front camera.
When no file is named for the back camera, the first other image is used.

Location comes from geo.latitude and geo.longitude in the configuration.
Without a fix the geotag footer shows N/A; capture never waits for GPS
longer than geo.timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(opts, f, cmd)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.sourceDir, "source-dir", "", "directory of still images (required)")
	fl.StringVar(&f.facing, "facing", "back", "camera to use (back|front)")
	fl.BoolVar(&f.noGPS, "no-gps", false, "omit the geotag footer")
	fl.BoolVar(&f.noDate, "no-date", false, "omit the capture time")
	fl.StringVar(&f.text, "text", wm.Text, "watermark headline")
	fl.StringVar(&f.subtext, "subtext", wm.Subtext, "watermark subtitle")
	fl.StringVar(&f.logo, "logo", "", "logo image drawn in the label block")
	fl.StringVar(&f.out, "out", ".", "output directory")
	_ = cmd.MarkFlagRequired("source-dir")

	return cmd
}

func runCapture(opts *RootOptions, f *captureFlags, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	log := opts.Logger.Named("capture")

	facing, err := capture.ParseFacing(f.facing)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid --facing", err)
	}
	paths, err := discoverStills(f.sourceDir)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to read source directory", err)
	}

	wm := annotate.DefaultWatermark()
	wm.Text, wm.Subtext = f.text, f.subtext
	wm.ShowGPS, wm.ShowDate = !f.noGPS, !f.noDate
	if f.logo != "" {
		logo, err := decodeImageFile(f.logo)
		if err != nil {
			return formatter.Fail(ExitCommandError, "failed to read logo", err)
		}
		wm.Logo, wm.ShowLogo = logo, true
	}

	view := CaptureView{Facing: string(facing)}
	var sensor *geo.Sensor
	if wm.ShowGPS {
		sensor = newSensor(opts, log)
		view.GPSStatus = sensor.Probe(ctx)
		log.Info("GPS status", zap.String("status", string(view.GPSStatus)))
	}

	eng := capture.NewEngine(
		capture.FileSource{Paths: paths, MaxDimension: opts.Config.CaptureMaxDim},
		capture.WithClock(opts.clock()),
		capture.WithLogger(log),
	)
	if err := eng.Start(ctx, facing); err != nil {
		return formatter.Fail(ExitFailure, "camera unavailable", err)
	}
	raw, err := eng.Capture()
	eng.Stop()
	if err != nil {
		return formatter.Fail(ExitFailure, "capture failed", err)
	}

	var reading *geo.Reading
	if sensor != nil {
		r, gerr := sensor.ReadingOrUnavailable(ctx)
		if gerr != nil {
			log.Warn("Exporting without location", zap.Error(gerr))
		}
		reading = &r
		view.Reading = &r
	}

	comp, err := annotate.Compose(raw, reading, wm)
	if err != nil {
		return formatter.Fail(ExitFailure, "annotation failed", err)
	}
	if err := os.MkdirAll(f.out, 0o755); err != nil {
		return formatter.Fail(ExitCommandError, "failed to create output directory", err)
	}
	view.Path = filepath.Join(f.out, comp.Filename)
	if err := os.WriteFile(view.Path, comp.JPEG, 0o644); err != nil {
		_ = formatter.Error(ErrCodeWrite, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeWrite+" write failed", err)
	}
	view.Width, view.Height = comp.Width, comp.Height

	return formatter.Emit(view, func(w io.Writer) error {
		fmt.Fprintf(w, "✓ Saved %s (%dx%d)\n", view.Path, view.Width, view.Height)
		if view.Reading != nil {
			fmt.Fprintf(w, "  GPS %s: lat %s, long %s\n", view.GPSStatus,
				view.Reading.Latitude.Format(6), view.Reading.Longitude.Format(6))
		}
		return nil
	})
}

// newSensor builds a sensor over the configured position. Without
// coordinates the device is treated as having no location hardware.
func newSensor(opts *RootOptions, log *zap.Logger) *geo.Sensor {
	g := opts.Config.Geo
	var provider geo.Provider = geo.UnsupportedProvider{}
	if g.Latitude != nil && g.Longitude != nil {
		provider = geo.StaticProvider{Position: geo.Position{
			Latitude:  *g.Latitude,
			Longitude: *g.Longitude,
			Accuracy:  g.Accuracy,
		}}
	}
	return geo.NewSensor(provider,
		geo.WithClock(opts.clock()),
		geo.WithLogger(log.Named("geo")),
		geo.WithTimeouts(g.Timeout, g.ProbeTimeout),
	)
}

var stillExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// discoverStills maps the images in dir onto camera facings.
func discoverStills(dir string) (map[capture.Facing]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && stillExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	paths := make(map[capture.Facing]string)
	var others []string
	for _, name := range names {
		stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		switch stem {
		case "back", "environment":
			paths[capture.FacingEnvironment] = filepath.Join(dir, name)
		case "front", "user":
			paths[capture.FacingUser] = filepath.Join(dir, name)
		default:
			others = append(others, name)
		}
	}
	if _, ok := paths[capture.FacingEnvironment]; !ok && len(others) > 0 {
		paths[capture.FacingEnvironment] = filepath.Join(dir, others[0])
	}
	if len(paths) == 0 {
		return nil, fault.Wrapf(fault.KindDevice, "open camera", fault.ReasonDeviceUnavailable,
			fmt.Errorf("no images in %s", dir))
	}
	return paths, nil
}

func decodeImageFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
