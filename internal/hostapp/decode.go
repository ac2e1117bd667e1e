package hostapp

import (
	"github.com/dshills/patchwork/internal/patcher/host"
)

// DecodeClass identifies the downsampling helper.
const DecodeClass = "b.c.a.a0.d"

// RotationOptions describes how a decoded image is rotated.
type RotationOptions struct {
	Degrees    int
	AutoRotate bool
}

// ResizeOptions is the size the caller wants to display.
type ResizeOptions struct {
	Width  int
	Height int
}

// EncodedImage is an undecoded image with known dimensions.
type EncodedImage struct {
	Width  int
	Height int
}

// Decoded describes the bitmap a decode produced.
type Decoded struct {
	Width      int
	Height     int
	SampleSize int
}

// Decoder decodes images, downsampling them by a power of two.
type Decoder struct {
	rotation      *RotationOptions
	maxBitmapSize int

	class  *host.Class
	sample *host.CallSite
}

func newDecoder(maxBitmapSize int) *Decoder {
	d := &Decoder{
		rotation:      &RotationOptions{AutoRotate: true},
		maxBitmapSize: maxBitmapSize,
	}
	d.class = host.NewClass(DecodeClass).
		Declare("a", d.rotationAngle).
		Declare("b", d.scaleRatio).
		Declare("c", d.sampleSize).
		Declare("d", d.resizeRatio).
		MustBuild()
	d.sample = d.class.Method("c").Site
	return d
}

// Class returns the decoder's declared class.
func (d *Decoder) Class() *host.Class {
	return d.class
}

// Decode decodes img for display at resize.
func (d *Decoder) Decode(img *EncodedImage, resize *ResizeOptions) (Decoded, error) {
	res, err := d.sample.Invoke(d, d.rotation, resize, img, d.maxBitmapSize)
	if err != nil {
		return Decoded{}, err
	}
	sample, err := resultAs[int]("c", res)
	if err != nil {
		return Decoded{}, err
	}
	if sample < 1 {
		sample = 1
	}
	return Decoded{
		Width:      img.Width / sample,
		Height:     img.Height / sample,
		SampleSize: sample,
	}, nil
}

func (d *Decoder) rotationAngle(rot *RotationOptions, img *EncodedImage) int {
	if rot == nil || !rot.AutoRotate {
		return 0
	}
	return rot.Degrees % 360
}

func (d *Decoder) scaleRatio(resize *ResizeOptions, rot *RotationOptions, img *EncodedImage, maxBitmapSize int) int {
	if resize == nil || resize.Width <= 0 || img == nil {
		return 100
	}
	return img.Width * 100 / resize.Width
}

// sampleSize picks the largest power of two that keeps the image at least
// as large as resize, then keeps halving until both sides fit maxBitmapSize.
func (d *Decoder) sampleSize(rot *RotationOptions, resize *ResizeOptions, img *EncodedImage, maxBitmapSize int) int {
	if img == nil {
		return 1
	}
	w, h := img.Width, img.Height
	if deg := d.rotationAngle(rot, img); deg == 90 || deg == 270 {
		w, h = h, w
	}

	sample := 1
	if resize != nil && resize.Width > 0 && resize.Height > 0 {
		for w/(sample*2) >= resize.Width && h/(sample*2) >= resize.Height {
			sample *= 2
		}
	}
	if maxBitmapSize > 0 {
		for w/sample > maxBitmapSize || h/sample > maxBitmapSize {
			sample *= 2
		}
	}
	return sample
}

func (d *Decoder) resizeRatio(rot *RotationOptions, resize *ResizeOptions, img *EncodedImage, maxBitmapSize int) float32 {
	if resize == nil || img == nil || img.Width == 0 || img.Height == 0 {
		return 1
	}
	rw := float32(resize.Width) / float32(img.Width)
	rh := float32(resize.Height) / float32(img.Height)
	return max(rw, rh)
}
