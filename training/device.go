package training

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DeviceType identifies where prediction matrices live. Only CPU is backed
// here; GPU exists so replayed predictions are explicitly placed rather than
// assumed to be host memory.
type DeviceType int

const (
	CPU DeviceType = iota
	GPU
)

func (d DeviceType) String() string {
	switch d {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	default:
		return fmt.Sprintf("Unknown(%d)", int(d))
	}
}

// placeBatch ensures one batch of predictions lives on the given device. CPU
// placement is the identity for host-resident matrices.
func placeBatch(preds []*mat.Dense, device DeviceType) ([]*mat.Dense, error) {
	switch device {
	case CPU:
		return preds, nil
	default:
		return nil, fmt.Errorf("device %s is not available for prediction placement", device)
	}
}
