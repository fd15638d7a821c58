package embedding

import (
	"image"

	"golang.org/x/image/draw"
)

// Model input normalization constants (ImageNet mean/std, RGB order).
var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// preprocess resizes img to inputSize x inputSize and writes it into dst as
// a normalized NCHW float32 tensor. dst must have length 3*inputSize*inputSize.
func preprocess(img image.Image, inputSize int, dst []float32) {
	scaled := image.NewRGBA(image.Rect(0, 0, inputSize, inputSize))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

	plane := inputSize * inputSize
	for y := 0; y < inputSize; y++ {
		for x := 0; x < inputSize; x++ {
			off := scaled.PixOffset(x, y)
			r := float32(scaled.Pix[off]) / 255.0
			g := float32(scaled.Pix[off+1]) / 255.0
			b := float32(scaled.Pix[off+2]) / 255.0
			i := y*inputSize + x
			dst[i] = (r - channelMean[0]) / channelStd[0]
			dst[plane+i] = (g - channelMean[1]) / channelStd[1]
			dst[2*plane+i] = (b - channelMean[2]) / channelStd[2]
		}
	}
}
