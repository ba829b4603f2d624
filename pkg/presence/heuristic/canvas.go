package heuristic

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focuscoach/pkg/presence"
	"github.com/teslashibe/go-focuscoach/pkg/video"
)

// Canvas rasterizes a frame at a fixed size.
type Canvas interface {
	// Draw returns interleaved pixels and the channel count.
	Draw(f video.Frame) ([]byte, int, error)
	Close() error
}

// CanvasFunc adapts a function to Canvas.
type CanvasFunc func(f video.Frame) ([]byte, int, error)

// Draw implements Canvas.
func (fn CanvasFunc) Draw(f video.Frame) ([]byte, int, error) { return fn(f) }

// Close implements Canvas.
func (CanvasFunc) Close() error { return nil }

// MatCanvas decodes frames with gocv into a pre-allocated raster.
type MatCanvas struct {
	mu     sync.Mutex
	size   image.Point
	dst    gocv.Mat
	closed bool
}

var _ Canvas = (*MatCanvas)(nil)

// NewMatCanvas allocates a width x height BGR raster.
func NewMatCanvas(width, height int) (*MatCanvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid raster size %dx%d", presence.ErrRasterUnavailable, width, height)
	}
	dst := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	if dst.Empty() {
		dst.Close()
		return nil, fmt.Errorf("%w: allocation failed", presence.ErrRasterUnavailable)
	}
	return &MatCanvas{size: image.Pt(width, height), dst: dst}, nil
}

// Draw implements Canvas.
func (c *MatCanvas) Draw(f video.Frame) ([]byte, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, 0, presence.ErrRasterUnavailable
	}

	img, err := gocv.IMDecode(f.JPEG, gocv.IMReadColor)
	if err != nil {
		return nil, 0, fmt.Errorf("decode frame %d: %w", f.Seq, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, 0, fmt.Errorf("decode frame %d: empty image", f.Seq)
	}

	gocv.Resize(img, &c.dst, c.size, 0, 0, gocv.InterpolationArea)
	return c.dst.ToBytes(), c.dst.Channels(), nil
}

// Close releases the raster.
func (c *MatCanvas) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.dst.Close()
	}
	return nil
}
