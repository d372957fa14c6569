package service

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Blocklist answers whether a client address is banned from uploading.
// The backing file holds one address per line; '#' starts a comment.
type Blocklist struct {
	addrs map[string]struct{}
}

// LoadBlocklist reads a blocklist file. An empty path yields an empty
// list that blocks nothing.
func LoadBlocklist(path string) (*Blocklist, error) {
	b := &Blocklist{addrs: make(map[string]struct{})}
	if path == "" {
		return b, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blocklist: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			b.addrs[line] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read blocklist: %w", err)
	}
	return b, nil
}

// Contains reports whether addr is listed. IPv4-mapped IPv6 addresses
// are normalized to their dotted form first.
func (b *Blocklist) Contains(addr string) bool {
	addr = strings.TrimPrefix(addr, "::ffff:")
	_, ok := b.addrs[addr]
	return ok
}
