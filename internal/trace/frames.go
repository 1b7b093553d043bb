// internal/trace/frames.go
package trace

import (
	"regexp"
	"strconv"

	"github.com/signalnine/rpltrace/internal/protocol"
)

// {asn <msb>.<lsb> link <radio> <a> <b> <c> <d> ch <channel>} bc-<x>-0 tx|rx ...
const frameHeader = `\{asn ([a-f\d]+\.[a-f\d]+) link +(\d+) +\d+ +\d+ +\d+ +\d+ ch +(\d+)\} bc-[01]-0 `

var (
	frameRe   = regexp.MustCompile(frameHeader + `[tr]x`)
	frameTxRe = regexp.MustCompile(frameHeader + `tx`)
	frameRxRe = regexp.MustCompile(frameHeader + `rx LL-(\d*)->LL-NULL, len +[-\d]*, seq +[-\d]*, rssi +([-\d]*), edr +([-\d]*)`)
)

// IsFrame reports whether msg is a TSCH frame trace
func IsFrame(msg string) bool {
	return frameRe.MatchString(msg)
}

// ParseFrame reads a TSCH frame trace. Transmissions carry no peer; receptions
// carry the link-layer source in Peer, the RSSI and the absolute EDR.
func ParseFrame(msg string) (protocol.Event, bool, error) {
	if m := frameRxRe.FindStringSubmatch(msg); m != nil {
		src := atoi(m[4])
		if src == 0 {
			return protocol.Event{}, false, ErrUnknownSource
		}
		edr := signed(m[6])
		if edr < 0 {
			edr = -edr
		}
		return protocol.Event{
			Kind:    protocol.EventFrame,
			ASN:     m[1],
			Radio:   atoi(m[2]),
			Channel: atoi(m[3]),
			Peer:    src,
			RSSI:    signed(m[5]),
			EDR:     edr,
		}, true, nil
	}
	if m := frameTxRe.FindStringSubmatch(msg); m != nil {
		return protocol.Event{
			Kind:    protocol.EventFrame,
			ASN:     m[1],
			Tx:      true,
			Radio:   atoi(m[2]),
			Channel: atoi(m[3]),
		}, true, nil
	}
	return protocol.Event{}, false, nil
}

// signed reads a [-\d]* group; empty or "-" give 0
func signed(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
