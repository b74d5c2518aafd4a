//go:build !unix

package traverse

import "context"

func (posixStrategy) Supported() bool { return false }

func (posixStrategy) Walk(context.Context, string, Config, func() Visitor) error {
	return ErrUnsupported
}
