// Package config loads the plain-text configuration file shared by the
// dfs commands. The file lives in a base directory (flag -base,
// defaulting to $DFS_BASE or $HOME/lib/dfs) and holds one "key value"
// pair per line.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBaseDirectoryPath is where all dfs commands look for their
// configuration. It defaults to $DFS_BASE if it is set, otherwise to
// $HOME/lib/dfs. Commands override this via the -base flag.
var DefaultBaseDirectoryPath string

func init() {
	if base := os.Getenv("DFS_BASE"); base != "" {
		DefaultBaseDirectoryPath = base
	} else {
		DefaultBaseDirectoryPath = os.ExpandEnv("$HOME/lib/dfs")
	}
}

type C struct {
	// Listen on localhost or a local-only network. There is no
	// authentication nor TLS so neither server kind must be exposed on
	// a public address.
	ListenNet string

	// Naming server listen addresses for the client-facing Service
	// interface and the storage-server-facing Registration interface.
	ServiceListenAddr      string
	RegistrationListenAddr string

	// ReplicationThreshold is how many reads of a single-replica file
	// the naming server tolerates before minting a second replica.
	// Zero means the tree's default.
	ReplicationThreshold uint32

	// NamingAddr is the registration endpoint a storage server
	// announces itself to.
	NamingAddr string

	// Storage server listen addresses for the client-facing StorageOp
	// interface and the naming-server-facing CommandOp interface.
	// Empty means a system-chosen port.
	StorageListenAddr string
	CommandListenAddr string

	// StorageRoot is the directory whose subtree a storage server
	// serves. If relative, it is taken relative to the base dir.
	StorageRoot string

	// Directory holding the dfs config file. Other paths are derived
	// from this.
	base string
}

// Load loads the configuration from the file called "config" in the
// provided base directory.
func Load(base string) (*C, error) {
	filename := filepath.Join(base, "config")
	if fi, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	} else if fi.Mode()&0077 != 0 {
		return nil, fmt.Errorf("config.Load %q: mode is %#o, want at most %#o",
			filename, fi.Mode()&0777, fi.Mode()&0700)
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		// Ignore error closing file opened only for reading.
		_ = f.Close()
	}()
	c, err := load(f)
	if err != nil {
		return nil, err
	}
	c.base = base
	if c.ListenNet == "" {
		c.ListenNet = "tcp"
	}
	if c.StorageRoot == "" {
		c.StorageRoot = "storage"
	}
	if !filepath.IsAbs(c.StorageRoot) {
		c.StorageRoot = filepath.Clean(filepath.Join(c.base, c.StorageRoot))
	}
	return c, nil
}

func load(f io.Reader) (*C, error) {
	c := C{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		i := strings.IndexAny(line, " 	")
		if i == -1 {
			return nil, fmt.Errorf("load: no separator in %q", line)
		}
		switch key, val := line[:i], strings.TrimSpace(line[i:]); key {
		case "listen-net":
			c.ListenNet = val
		case "service-listen-addr":
			c.ServiceListenAddr = val
		case "registration-listen-addr":
			c.RegistrationListenAddr = val
		case "replication-threshold":
			if i, err := strconv.ParseUint(val, 10, 32); err != nil {
				return nil, fmt.Errorf("load: %w", err)
			} else {
				c.ReplicationThreshold = uint32(i)
			}
		case "naming-addr":
			c.NamingAddr = val
		case "storage-listen-addr":
			c.StorageListenAddr = val
		case "command-listen-addr":
			c.CommandListenAddr = val
		case "storage-root":
			c.StorageRoot = val
		default:
			return nil, fmt.Errorf("load: unknown key %q", key)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return &c, nil
}
