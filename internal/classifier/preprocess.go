package classifier

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"

	"golang.org/x/image/draw"
)

// Default model input size.
const (
	DefaultInputWidth  = 150
	DefaultInputHeight = 150
)

// Tensor is one image in height × width × RGB layout, scaled to [0, 1].
type Tensor [][][3]float32

// Preprocess decodes an image, resizes it to width × height with
// nearest-neighbour sampling and normalises every channel to [0, 1].
func Preprocess(r io.Reader, width, height int) (Tensor, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make(Tensor, height)
	for y := range height {
		row := make([][3]float32, width)
		for x := range width {
			c := dst.RGBAAt(x, y)
			row[x] = [3]float32{
				float32(c.R) / 255,
				float32(c.G) / 255,
				float32(c.B) / 255,
			}
		}
		out[y] = row
	}
	return out, nil
}
