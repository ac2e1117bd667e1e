package hostapp

import (
	"github.com/dshills/patchwork/internal/patcher/host"
)

// Options configures the simulated application.
type Options struct {
	// MinScale and MaxScale bound the zoom controller's own limiter.
	MinScale float32
	MaxScale float32

	// MaxBitmapSize is the largest decoded side length.
	MaxBitmapSize int
}

// DefaultOptions returns the stock limits of the application.
func DefaultOptions() Options {
	return Options{
		MinScale:      1,
		MaxScale:      2,
		MaxBitmapSize: 2048,
	}
}

// App bundles the patchable components and the catalog that exposes them.
type App struct {
	Media   *MediaViewer
	Zoom    *ZoomController
	Decoder *Decoder

	catalog *host.Catalog
}

// New builds the application with opts. Zero fields take defaults.
func New(opts Options) *App {
	def := DefaultOptions()
	if opts.MinScale <= 0 {
		opts.MinScale = def.MinScale
	}
	if opts.MaxScale <= 0 {
		opts.MaxScale = def.MaxScale
	}
	if opts.MaxBitmapSize <= 0 {
		opts.MaxBitmapSize = def.MaxBitmapSize
	}

	a := &App{
		Media:   newMediaViewer(),
		Zoom:    newZoomController(opts.MinScale, opts.MaxScale),
		Decoder: newDecoder(opts.MaxBitmapSize),
	}

	// Class identifiers are distinct constants, so this cannot fail.
	cat, err := host.NewCatalog(a.Media.Class(), a.Zoom.Class(), a.Decoder.Class())
	if err != nil {
		panic(err)
	}
	a.catalog = cat
	return a
}

// Catalog returns the classes the application exposes to plugins.
func (a *App) Catalog() *host.Catalog {
	return a.catalog
}
