package inference

import (
	"image"

	"github.com/nfnt/resize"
)

// Preprocess resamples a pixel buffer to the model's fixed input resolution
// with bilinear interpolation and converts it to a normalized float32 NHWC
// buffer. The returned slice backs a rank-4 tensor of shape
// [1, InputSize, InputSize, Channels].
func Preprocess(img image.Image) []float32 {
	resized := resize.Resize(InputSize, InputSize, img, resize.Bilinear)

	data := make([]float32, InputSize*InputSize*Channels)
	bounds := resized.Bounds()
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			data[i] = float32(r) / 65535.0
			data[i+1] = float32(g) / 65535.0
			data[i+2] = float32(b) / 65535.0
			i += Channels
		}
	}
	return data
}

// InputShape returns the rank-4 tensor shape expected by the classifier:
// a leading batch dimension of one, then height, width, channels.
func InputShape() []int64 {
	return []int64{1, InputSize, InputSize, Channels}
}

// OutputShape returns the classifier's output shape: one probability per
// class for a batch of one.
func OutputShape() []int64 {
	return []int64{1, NumClasses}
}
