package ids

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// ParseNID parses a NID in Lustre-style "addr@net" notation, e.g.
// "1@o2ib0" or "10@tcp1", mirroring LNET_MKNID/libcfs_str2net from
// original_source/lnet/lnet/nidstrings.c (not present in the retrieval
// pack; the encoding below follows the packed-(net,addr) layout
// documented at pkg/ids.NID). net is split into an alphabetic type
// (hashed to 16 bits, since this fabric defines no fixed type table)
// and a trailing numeric instance, packed as (hash<<16 | instance)
// into the NID's upper 32 bits.
//
// A bare "*" parses to NIDAny.
func ParseNID(s string) (NID, error) {
	if s == "*" || s == "" {
		return NIDAny, nil
	}

	addrPart, netPart, ok := strings.Cut(s, "@")
	if !ok {
		return 0, fmt.Errorf("ids: malformed nid %q: want \"addr@net\"", s)
	}

	addr, err := strconv.ParseUint(addrPart, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("ids: malformed nid address %q: %w", addrPart, err)
	}

	net, err := ParseNet(netPart)
	if err != nil {
		return 0, err
	}

	return NewNID(net, uint32(addr)), nil
}

// ParseNet packs a network name like "o2ib0" or "tcp1" into the 32-bit
// net id NID.Net expects: an alphabetic type prefix hashed to its upper
// 16 bits, and a trailing numeric instance in its lower 16 bits.
func ParseNet(name string) (uint32, error) {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	typ, instance := name[:i], name[i:]
	if typ == "" {
		return 0, fmt.Errorf("ids: malformed net %q: missing type prefix", name)
	}

	num := uint64(0)
	if instance != "" {
		n, err := strconv.ParseUint(instance, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("ids: malformed net instance %q: %w", name, err)
		}
		num = n
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(typ))
	return (h.Sum32()&0xffff)<<16 | uint32(num), nil
}

// NIDFromInterfaceName derives a stable NID for a network interface
// named iface (a config map key, e.g. "o2ib0") when no explicit NID
// string was configured, using addr as the node's per-fabric address
// component.
func NIDFromInterfaceName(iface string, addr uint32) (NID, error) {
	net, err := ParseNet(iface)
	if err != nil {
		return 0, err
	}
	return NewNID(net, addr), nil
}
