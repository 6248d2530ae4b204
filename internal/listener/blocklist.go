package listener

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// ErrBlocklistEntry is returned for an entry that is neither an IP nor a CIDR.
var ErrBlocklistEntry = errors.New("invalid blocklist entry")

// Blocklist matches peer addresses against exact IPs and prefixes.
// A nil Blocklist matches nothing.
type Blocklist struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

// ParseBlocklist parses IP ("192.0.2.1") and CIDR ("198.51.100.0/24") entries.
func ParseBlocklist(entries []string) (*Blocklist, error) {
	b := &Blocklist{addrs: make(map[netip.Addr]struct{}, len(entries))}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrBlocklistEntry, raw, err)
			}
			b.prefixes = append(b.prefixes, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrBlocklistEntry, raw, err)
		}
		b.addrs[a.Unmap()] = struct{}{}
	}
	return b, nil
}

// Contains reports whether addr is blocked.
func (b *Blocklist) Contains(addr netip.Addr) bool {
	if b == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	if _, ok := b.addrs[addr]; ok {
		return true
	}
	for _, p := range b.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ContainsConn reports whether the remote end of conn is blocked.
func (b *Blocklist) ContainsConn(conn net.Conn) bool {
	return b.Contains(remoteAddr(conn))
}

// Len returns the number of entries.
func (b *Blocklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.addrs) + len(b.prefixes)
}

func remoteAddr(conn net.Conn) netip.Addr {
	switch ra := conn.RemoteAddr().(type) {
	case *net.TCPAddr:
		a, _ := netip.AddrFromSlice(ra.IP)
		return a
	case nil:
		return netip.Addr{}
	default:
		ap, err := netip.ParseAddrPort(ra.String())
		if err != nil {
			return netip.Addr{}
		}
		return ap.Addr()
	}
}
