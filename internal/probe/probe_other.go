//go:build !linux && !darwin && !windows

package probe

func detect(string) (Info, error) {
	return Info{}, ErrUnsupported
}
