package shade

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Image is a float buffer of Channels values per pixel, rows top to
// bottom.
type Image struct {
	Width, Height, Channels int
	Pix                     []float32
}

func NewImage(w, h, channels int) *Image {
	return &Image{Width: w, Height: h, Channels: channels, Pix: make([]float32, w*h*channels)}
}

// At returns channel c of pixel (x, y).
func (im *Image) At(x, y, c int) float32 {
	return im.Pix[(y*im.Width+x)*im.Channels+c]
}

// rgb is pixel p as three channels: grey for one channel, zero for
// missing ones.
func (im *Image) rgb(p int) [3]float32 {
	px := im.Pix[p*im.Channels : (p+1)*im.Channels]
	switch len(px) {
	case 0:
		return [3]float32{}
	case 1:
		return [3]float32{px[0], px[0], px[0]}
	case 2:
		return [3]float32{px[0], px[1], 0}
	}
	return [3]float32{px[0], px[1], px[2]}
}

// WritePPM writes the first three channels as binary 8-bit PPM, clamped
// to [0,1].
func (im *Image) WritePPM(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "P6\n%d %d\n255\n", im.Width, im.Height)
	for p := 0; p < im.Width*im.Height; p++ {
		for _, v := range im.rgb(p) {
			bw.WriteByte(quantize(v))
		}
	}
	return bw.Flush()
}

func quantize(v float32) byte {
	switch {
	case !(v > 0):
		return 0
	case v >= 1:
		return 255
	}
	return byte(math.Round(float64(v) * 255))
}

// WritePFM writes the first three channels as little-endian colour PFM,
// whose rows run bottom to top.
func (im *Image) WritePFM(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "PF\n%d %d\n-1.0\n", im.Width, im.Height)
	for y := im.Height - 1; y >= 0; y-- {
		for x := 0; x < im.Width; x++ {
			rgb := im.rgb(y*im.Width + x)
			if err := binary.Write(bw, binary.LittleEndian, rgb[:]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteFile picks the format from the extension: .pfm or PPM otherwise.
func (im *Image) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".pfm") {
		err = im.WritePFM(f)
	} else {
		err = im.WritePPM(f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
