//go:build darwin

package probe

import "golang.org/x/sys/unix"

func detect(path string) (Info, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Info{}, err
	}

	name := unix.ByteSliceToString(st.Fstypename[:])
	info := Info{
		Name:       name,
		Kind:       kindFromName(name),
		TotalBytes: int64(st.Blocks) * int64(st.Bsize),
		FreeBytes:  int64(st.Bavail) * int64(st.Bsize),
	}
	info.Remote = info.Kind == Network || st.Flags&unix.MNT_LOCAL == 0
	return info, nil
}
