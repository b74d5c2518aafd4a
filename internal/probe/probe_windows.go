//go:build windows

package probe

import (
	"path/filepath"

	"golang.org/x/sys/windows"
)

func detect(path string) (Info, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Info{}, err
	}
	p, err := windows.UTF16PtrFromString(abs)
	if err != nil {
		return Info{}, err
	}

	volume := make([]uint16, windows.MAX_PATH+1)
	if err := windows.GetVolumePathName(p, &volume[0], uint32(len(volume))); err != nil {
		return Info{}, err
	}

	fsName := make([]uint16, windows.MAX_PATH+1)
	if err := windows.GetVolumeInformation(&volume[0], nil, 0, nil, nil, nil, &fsName[0], uint32(len(fsName))); err != nil {
		return Info{}, err
	}

	name := windows.UTF16ToString(fsName)
	info := Info{Name: name, Kind: kindFromName(name)}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(&volume[0], &free, &total, &totalFree); err == nil {
		info.TotalBytes, info.FreeBytes = int64(total), int64(free)
	}
	if windows.GetDriveType(&volume[0]) == windows.DRIVE_REMOTE {
		info.Kind = Network
		info.Remote = true
	}
	return info, nil
}
