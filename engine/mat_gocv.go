//go:build gocv

package engine

import (
	"fmt"

	iface "YoloDetServer/interface"

	"gocv.io/x/gocv"
)

// DetectMat encodes img losslessly and runs it through DetectBytes.
func (d *Detector) DetectMat(img gocv.Mat) ([]iface.YoloItem, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty mat", ErrInvalidImageFormat)
	}
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImageFormat, err)
	}
	defer buf.Close()
	return d.DetectBytes(buf.GetBytes())
}
