package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focuscoach/pkg/camera"
)

// ErrCameraUnavailable is returned when the capture device cannot be opened.
var ErrCameraUnavailable = errors.New("video: camera unavailable")

// Webcam captures frames from a local capture device with gocv and
// publishes JPEG frames into a single-slot mailbox.
type Webcam struct {
	logger *slog.Logger
	box    *Mailbox

	mu      sync.Mutex
	cfg     camera.Config
	capture *gocv.VideoCapture
	reopen  bool

	readErrors uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

var _ Source = (*Webcam)(nil)

// NewWebcam creates a webcam source. The device is opened by Start.
func NewWebcam(cfg camera.Config, logger *slog.Logger) *Webcam {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webcam{
		logger: logger.With("component", "webcam"),
		box:    NewMailbox(),
		cfg:    cfg,
	}
}

// Start opens the device and begins capturing until ctx is cancelled or
// Close is called.
func (w *Webcam) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.done != nil {
		w.mu.Unlock()
		return nil
	}
	cfg := w.cfg
	w.mu.Unlock()

	capture, err := openCapture(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.capture = capture
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("camera started",
		"device", cfg.Device, "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)

	go w.loop(ctx)
	return nil
}

func openCapture(cfg camera.Config) (*gocv.VideoCapture, error) {
	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrCameraUnavailable, cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: device %d not opened", ErrCameraUnavailable, cfg.Device)
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	return capture, nil
}

func (w *Webcam) loop(ctx context.Context) {
	defer close(w.done)

	img := gocv.NewMat()
	defer img.Close()

	w.mu.Lock()
	interval := time.Second / time.Duration(max(w.cfg.Framerate, 1))
	w.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.capture != nil {
				w.capture.Close()
				w.capture = nil
			}
			w.mu.Unlock()
			return
		case <-ticker.C:
		}

		w.mu.Lock()
		if w.reopen {
			w.reopen = false
			if err := w.reopenLocked(); err != nil {
				w.logger.Warn("camera reopen failed", "error", err)
			}
			interval = time.Second / time.Duration(max(w.cfg.Framerate, 1))
			ticker.Reset(interval)
		}
		capture, cfg := w.capture, w.cfg
		w.mu.Unlock()

		if capture == nil || !capture.Read(&img) || img.Empty() {
			w.mu.Lock()
			w.readErrors++
			n := w.readErrors
			w.mu.Unlock()
			if n%100 == 1 {
				w.logger.Warn("camera read failed", "failures", n)
			}
			continue
		}

		jpeg, err := encode(&img, cfg)
		if err != nil {
			w.logger.Debug("frame encode failed", "error", err)
			continue
		}
		w.box.Publish(Frame{
			Timestamp: time.Now(),
			Width:     img.Cols(),
			Height:    img.Rows(),
			JPEG:      jpeg,
		})
	}
}

func (w *Webcam) reopenLocked() error {
	if w.capture != nil {
		w.capture.Close()
		w.capture = nil
	}
	capture, err := openCapture(w.cfg)
	if err != nil {
		return err
	}
	w.capture = capture
	return nil
}

func encode(img *gocv.Mat, cfg camera.Config) ([]byte, error) {
	if cfg.Mirror {
		gocv.Flip(*img, img, 1)
	}
	if cfg.Brightness != 0 {
		img.ConvertToWithParams(img, img.Type(), 1, float32(cfg.Brightness*100))
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *img, []int{gocv.IMWriteJpegQuality, cfg.Quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	return buf.GetBytes(), nil
}

// Apply changes capture settings at runtime. A device or resolution
// change reopens the capture device on the next tick.
func (w *Webcam) Apply(cfg camera.Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("video: invalid camera config: %v", errs)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	prev := w.cfg
	w.cfg = cfg
	if prev.Device != cfg.Device || prev.Width != cfg.Width ||
		prev.Height != cfg.Height || prev.Framerate != cfg.Framerate {
		w.reopen = true
	}
	return nil
}

// Frame returns the latest captured frame.
func (w *Webcam) Frame() (Frame, error) {
	return w.box.Frame()
}

// Wait blocks until a frame newer than after has been captured.
func (w *Webcam) Wait(ctx context.Context, after uint64) (Frame, error) {
	return w.box.Wait(ctx, after)
}

// Stats returns capture counters.
func (w *Webcam) Stats() Stats {
	return w.box.Stats()
}

// Close stops capturing and releases the device. Safe to call repeatedly.
func (w *Webcam) Close() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	w.box.Close()
	return nil
}
