//go:build linux
// +build linux

package firewall

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"grimm.is/portguard/internal/secgroup"
)

const (
	// Address lengths for payload matching
	IPv6AddrLen = 16
	IPv4AddrLen = 4

	// IPv6 Header Offsets (RFC 2460)
	IPv6SrcOffset = 8
	IPv6DstOffset = 24

	// IPv4 Header Offsets (RFC 791)
	IPv4SrcOffset = 12
	IPv4DstOffset = 16

	// Destination port offset in the TCP and UDP headers
	dstPortOffset = 2
)

// buildACLExprs translates one ACL rule into nftables expressions. The remote
// address is the source of inbound traffic and the destination of outbound
// traffic; the port range always applies to the destination port.
func buildACLExprs(rule secgroup.ACLRule) ([]expr.Any, error) {
	proto, err := protocolNumber(rule.Protocol)
	if err != nil {
		return nil, err
	}

	switch rule.Direction {
	case secgroup.ACLDirectionIn, secgroup.ACLDirectionOut:
	default:
		return nil, fmt.Errorf("unsupported direction %q", rule.Direction)
	}

	var verdict expr.VerdictKind
	switch rule.Action {
	case secgroup.ActionAllow:
		verdict = expr.VerdictAccept
	case secgroup.ActionDeny:
		verdict = expr.VerdictDrop
	default:
		return nil, fmt.Errorf("unsupported action %q", rule.Action)
	}

	exprs, err := buildIPMatch(rule.RemoteAddress, rule.Direction == secgroup.ACLDirectionIn)
	if err != nil {
		return nil, err
	}

	exprs = append(exprs,
		&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     []byte{proto},
		},
	)

	if proto == unix.IPPROTO_TCP || proto == unix.IPPROTO_UDP {
		portExprs, err := buildPortMatch(rule.LocalPort)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, portExprs...)
	}

	exprs = append(exprs,
		&expr.Counter{},
		&expr.Verdict{Kind: verdict},
	)
	return exprs, nil
}

// buildIPMatch builds expressions to match source or destination IP/CIDR (IPv4 or IPv6).
// A zero-length prefix only pins the address family.
func buildIPMatch(cidr string, isSrc bool) ([]expr.Any, error) {
	// Parse CIDR
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		// Try parsing as single IP
		ip := net.ParseIP(cidr)
		if ip == nil {
			return nil, fmt.Errorf("invalid remote address %q", cidr)
		}
		if ip4 := ip.To4(); ip4 != nil {
			ipNet = &net.IPNet{IP: ip4, Mask: net.CIDRMask(32, 32)}
		} else {
			ipNet = &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}
		}
	}

	isIPv6 := ipNet.IP.To4() == nil

	// In an inet table the family check keeps IPv4 rules off IPv6 packets
	family := byte(ProtoIPv4)
	if isIPv6 {
		family = byte(ProtoIPv6)
	}
	exprs := []expr.Any{
		&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     []byte{family},
		},
	}

	ones, bits := ipNet.Mask.Size()
	if ones == 0 {
		return exprs, nil
	}

	var offset, addrLen uint32
	if isIPv6 {
		addrLen = IPv6AddrLen
		offset = IPv6DstOffset
		if isSrc {
			offset = IPv6SrcOffset
		}
	} else {
		addrLen = IPv4AddrLen
		offset = IPv4DstOffset
		if isSrc {
			offset = IPv4SrcOffset
		}
	}

	// Load IP from packet
	exprs = append(exprs, &expr.Payload{
		DestRegister: 1,
		Base:         expr.PayloadBaseNetworkHeader,
		Offset:       offset,
		Len:          addrLen,
	})

	// Apply netmask if not a full host match
	if ones < bits {
		exprs = append(exprs, &expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            addrLen,
			Mask:           ipNet.Mask,
			Xor:            make([]byte, addrLen),
		})
	}

	// Compare with network address
	target := ipNet.IP.Mask(ipNet.Mask)
	if isIPv6 {
		target = target.To16()
	} else {
		target = target.To4()
	}

	exprs = append(exprs, &expr.Cmp{
		Op:       expr.CmpOpEq,
		Register: 1,
		Data:     target,
	})

	return exprs, nil
}

// buildPortMatch matches the destination port against "N-M". The wildcard
// and the empty port match everything.
func buildPortMatch(localPort string) ([]expr.Any, error) {
	if localPort == "" || localPort == secgroup.Any {
		return nil, nil
	}

	lo, hi, found := strings.Cut(localPort, "-")
	if !found {
		hi = lo
	}
	from, err := strconv.ParseUint(lo, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid port range %q: %w", localPort, err)
	}
	to, err := strconv.ParseUint(hi, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid port range %q: %w", localPort, err)
	}
	if from > to {
		return nil, fmt.Errorf("invalid port range %q: start after end", localPort)
	}

	exprs := []expr.Any{
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseTransportHeader,
			Offset:       dstPortOffset,
			Len:          2,
		},
	}
	if from == to {
		return append(exprs, &expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     binaryutil.BigEndian.PutUint16(uint16(from)),
		}), nil
	}
	return append(exprs, &expr.Range{
		Op:       expr.CmpOpEq,
		Register: 1,
		FromData: binaryutil.BigEndian.PutUint16(uint16(from)),
		ToData:   binaryutil.BigEndian.PutUint16(uint16(to)),
	}), nil
}

// buildInterfaceMatch matches the input or output interface name.
func buildInterfaceMatch(device string, input bool) []expr.Any {
	key := expr.MetaKeyOIFNAME
	if input {
		key = expr.MetaKeyIIFNAME
	}
	return []expr.Any{
		&expr.Meta{Key: key, Register: 1},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     []byte(device + "\x00"),
		},
	}
}

// buildEstablishedAccept accepts packets of tracked connections.
func buildEstablishedAccept() []expr.Any {
	return []expr.Any{
		&expr.Ct{Key: expr.CtKeySTATE, Register: 1},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           binaryutil.NativeEndian.PutUint32(expr.CtStateBitESTABLISHED | expr.CtStateBitRELATED),
			Xor:            binaryutil.NativeEndian.PutUint32(0),
		},
		&expr.Cmp{
			Op:       expr.CmpOpNeq,
			Register: 1,
			Data:     binaryutil.NativeEndian.PutUint32(0),
		},
		&expr.Verdict{Kind: expr.VerdictAccept},
	}
}

// protocolNumber resolves a protocol code to its IP protocol number.
func protocolNumber(protocol string) (uint8, error) {
	switch protocol {
	case secgroup.ProtocolTCP:
		return unix.IPPROTO_TCP, nil
	case secgroup.ProtocolUDP:
		return unix.IPPROTO_UDP, nil
	case secgroup.ProtocolICMP:
		return unix.IPPROTO_ICMP, nil
	case secgroup.ProtocolICMPv6:
		return unix.IPPROTO_ICMPV6, nil
	}
	if n, err := strconv.ParseUint(protocol, 10, 8); err == nil {
		return uint8(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, protocol)
}
