package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"sync"
)

// QEMUConfPath is where libvirt's qemu driver reads its process user.
const QEMUConfPath = "/etc/libvirt/qemu.conf"

// fallbackOwnerID is the Fedora/RHEL qemu uid/gid.
const fallbackOwnerID = "107"

// Owner is the uid/gid written into pool and volume permissions so the
// qemu process can open the disks it is given.
type Owner struct {
	UID string
	GID string
}

var (
	qemuOwner     Owner
	qemuOwnerErr  error
	qemuOwnerOnce sync.Once
)

// QEMUOwner returns the owner the qemu process runs as. It reads
// QEMUConfPath, then tries the usual account names, then falls back to 107.
// The fallback is returned together with an error so callers can warn.
// The result is cached after the first call.
func QEMUOwner() (Owner, error) {
	qemuOwnerOnce.Do(func() {
		username, groupname := "", ""
		if f, err := os.Open(QEMUConfPath); err == nil {
			username, groupname = parseQEMUConf(f)
			_ = f.Close()
		}
		qemuOwner, qemuOwnerErr = resolveOwner(username, groupname, user.Lookup, user.LookupGroup)
	})
	return qemuOwner, qemuOwnerErr
}

// resolveOwner maps configured names to numeric ids. lookupUser and
// lookupGroup are os/user lookups, injected for tests.
func resolveOwner(
	username, groupname string,
	lookupUser func(string) (*user.User, error),
	lookupGroup func(string) (*user.Group, error),
) (Owner, error) {
	if username != "" {
		if u, err := lookupUser(username); err == nil {
			owner := Owner{UID: u.Uid, GID: u.Gid}
			if groupname != "" {
				if g, err := lookupGroup(groupname); err == nil {
					owner.GID = g.Gid
				}
			}
			return owner, nil
		}
	}

	for _, name := range []string{"qemu", "libvirt-qemu"} {
		if u, err := lookupUser(name); err == nil {
			return Owner{UID: u.Uid, GID: u.Gid}, nil
		}
	}

	return Owner{UID: fallbackOwnerID, GID: fallbackOwnerID},
		fmt.Errorf("could not determine QEMU user/group, using fallback UID/GID %s", fallbackOwnerID)
}

// parseQEMUConf extracts the user and group settings from qemu.conf
// content. Missing settings come back empty.
func parseQEMUConf(r io.Reader) (username, groupname string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}
	return username, groupname
}
