//go:build !windows

package traverse

import "context"

func (ntfsStrategy) Supported() bool { return false }

func (ntfsStrategy) Walk(context.Context, string, Config, func() Visitor) error {
	return ErrUnsupported
}
