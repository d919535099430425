//go:build !linux

package sockdiag

import "errors"

// Kernel is unavailable outside Linux.
type Kernel struct{}

// NewKernel returns a Kernel whose Connect always fails.
func NewKernel(KernelConfig) *Kernel {
	return &Kernel{}
}

// Connect always fails: sock_diag is a Linux interface.
func (k *Kernel) Connect() (Channel, error) {
	return nil, errors.New("sock_diag is only available on linux")
}

// Supported is always false outside Linux.
func Supported() bool {
	return false
}
