package catalog

import (
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
)

type lsblkJSON struct {
	Blockdevices []lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Size       any           `json:"size"`
	Type       string        `json:"type"`
	Model      *string       `json:"model"`
	FSType     *string       `json:"fstype"`
	Mountpoint *string       `json:"mountpoint"`
	Children   []lsblkDevice `json:"children"`
}

// LsblkArgs are the arguments the Linux source passes to lsblk.
var LsblkArgs = []string{"-J", "-b", "-o", "NAME,PATH,SIZE,TYPE,MODEL,FSTYPE,MOUNTPOINT"}

func sizeToBytes(v any) uint64 {
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return uint64(t)
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// LsblkVolume is a partition with its mountpoint, used to query usage.
type LsblkVolume struct {
	VolumeRow
	Mountpoint string
}

// LsblkLayout is the parsed lsblk tree. Disk indices are assigned in the
// order lsblk lists whole disks.
type LsblkLayout struct {
	Disks      []DiskRow
	Volumes    []LsblkVolume
	SystemDisk int
}

// ParseLsblk decodes lsblk JSON output. Loop, rom and other non-disk
// top-level devices are skipped.
func ParseLsblk(data []byte) (LsblkLayout, error) {
	var tree lsblkJSON
	if err := json.Unmarshal(data, &tree); err != nil {
		return LsblkLayout{}, errors.Wrap(err, "decode lsblk output")
	}

	layout := LsblkLayout{SystemDisk: -1}
	for _, dev := range tree.Blockdevices {
		if dev.Type != "disk" {
			continue
		}
		idx := len(layout.Disks)
		path := dev.Path
		if path == "" {
			path = "/dev/" + dev.Name
		}
		layout.Disks = append(layout.Disks, DiskRow{
			Index: idx,
			Model: deref(dev.Model),
			Size:  sizeToBytes(dev.Size),
			Path:  path,
		})

		var walk func(d lsblkDevice)
		walk = func(d lsblkDevice) {
			mp := deref(d.Mountpoint)
			if mp == "/" {
				layout.SystemDisk = idx
			}
			if fs := deref(d.FSType); fs != "" {
				size := sizeToBytes(d.Size)
				layout.Volumes = append(layout.Volumes, LsblkVolume{
					VolumeRow: VolumeRow{
						DiskIndex:  idx,
						Caption:    d.Name,
						Filesystem: fs,
						Size:       size,
						Free:       size,
					},
					Mountpoint: mp,
				})
			}
			for _, c := range d.Children {
				walk(c)
			}
		}
		walk(dev)
	}
	return layout, nil
}
