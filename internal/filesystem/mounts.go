package filesystem

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/procfs"
)

// remoteFSTypes are filesystem types where reading a file may go over the
// network or through a userspace daemon.
var remoteFSTypes = map[string]bool{
	"nfs":             true,
	"nfs4":            true,
	"cifs":            true,
	"smb3":            true,
	"smbfs":           true,
	"9p":              true,
	"afs":             true,
	"ceph":            true,
	"glusterfs":       true,
	"davfs":           true,
	"fuse.sshfs":      true,
	"fuse.gvfsd-fuse": true,
	"fuse.rclone":     true,
	"fuse.s3fs":       true,
}

// Mount is a single entry of the mount table.
type Mount struct {
	Device string
	Path   string
	FSType string
}

// Remote reports whether the mount is a network or virtual filesystem.
func (m Mount) Remote() bool {
	return remoteFSTypes[m.FSType]
}

// MountTable resolves paths to the mount that contains them.
type MountTable struct {
	// mounts is sorted by path length descending for longest-prefix matching
	mounts []Mount
}

// LoadMountTable reads the mount table of this process from
// /proc/self/mountinfo.
func LoadMountTable() (*MountTable, error) {
	infos, err := procfs.GetMounts()
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}
	return NewMountTable(infos), nil
}

// NewMountTable builds a table from parsed mountinfo entries.
func NewMountTable(infos []*procfs.MountInfo) *MountTable {
	mounts := make([]Mount, 0, len(infos))
	for _, info := range infos {
		if info == nil || info.MountPoint == "" {
			continue
		}
		mounts = append(mounts, Mount{
			Device: unescapeMountField(info.Source),
			Path:   filepath.Clean(unescapeMountField(info.MountPoint)),
			FSType: info.FSType,
		})
	}

	sort.SliceStable(mounts, func(i, j int) bool {
		return len(mounts[i].Path) > len(mounts[j].Path)
	})

	return &MountTable{mounts: mounts}
}

// unescapeMountField decodes the octal escapes (\040 for space etc.) the
// kernel uses in mount table fields.
func unescapeMountField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			var v byte
			ok := true
			for _, c := range []byte(s[i+1 : i+4]) {
				if c < '0' || c > '7' {
					ok = false
					break
				}
				v = v*8 + (c - '0')
			}
			if ok {
				b.WriteByte(v)
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Lookup returns the most specific mount containing path.
func (t *MountTable) Lookup(path string) (Mount, bool) {
	if t == nil {
		return Mount{}, false
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Mount{}, false
	}

	for _, m := range t.mounts {
		if m.Path == "/" || absPath == m.Path || strings.HasPrefix(absPath, m.Path+"/") {
			return m, true
		}
	}
	return Mount{}, false
}

// IsRemote reports whether path lives on a network or virtual mount. GVFS
// user mounts under /run/user/<uid>/gvfs are always remote.
func (t *MountTable) IsRemote(path string) bool {
	if isGvfsPath(path) {
		return true
	}
	m, ok := t.Lookup(path)
	return ok && m.Remote()
}

func isGvfsPath(path string) bool {
	rest, ok := strings.CutPrefix(filepath.Clean(path), "/run/user/")
	if !ok {
		return false
	}
	_, sub, ok := strings.Cut(rest, "/")
	return ok && (sub == "gvfs" || strings.HasPrefix(sub, "gvfs/"))
}
