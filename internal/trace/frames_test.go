// internal/trace/frames_test.go
package trace

import (
	"errors"
	"testing"

	"github.com/signalnine/rpltrace/internal/protocol"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want protocol.Event
	}{
		{
			name: "tx",
			msg:  "{asn 00.00002ee0 link  1  7  3  1  0 ch 20} bc-0-0 tx LL-2->LL-NULL, len 40, seq 17",
			want: protocol.Event{Kind: protocol.EventFrame, ASN: "00.00002ee0", Tx: true, Radio: 1, Channel: 20},
		},
		{
			name: "rx",
			msg:  "{asn 00.00002ee0 link  2  7  3  1  0 ch 15} bc-1-0 rx LL-4->LL-NULL, len 40, seq 17, rssi -64, edr -3",
			want: protocol.Event{Kind: protocol.EventFrame, ASN: "00.00002ee0", Radio: 2, Channel: 15, Peer: 4, RSSI: -64, EDR: 3},
		},
		{
			name: "rx positive edr",
			msg:  "{asn 01.0000ff00 link  0 101  5  0  0 ch 26} bc-0-0 rx LL-12->LL-NULL, len 21, seq 3, rssi -90, edr 7",
			want: protocol.Event{Kind: protocol.EventFrame, ASN: "01.0000ff00", Channel: 26, Peer: 12, RSSI: -90, EDR: 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !IsFrame(tt.msg) {
				t.Errorf("IsFrame(%q) = false", tt.msg)
			}
			ev, ok, err := ParseFrame(tt.msg)
			if err != nil || !ok {
				t.Fatalf("ParseFrame ok=%v err=%v", ok, err)
			}
			if ev != tt.want {
				t.Errorf("ParseFrame = %+v, want %+v", ev, tt.want)
			}
		})
	}
}

func TestParseFrameUnknownSource(t *testing.T) {
	for _, msg := range []string{
		"{asn 00.00002f00 link  1  7  3  1  0 ch 25} bc-0-0 rx LL-0->LL-NULL, len 40, seq 18, rssi -80, edr 9",
		"{asn 00.00002f00 link  1  7  3  1  0 ch 25} bc-0-0 rx LL-->LL-NULL, len 40, seq 18, rssi -80, edr 9",
	} {
		if _, ok, err := ParseFrame(msg); ok || !errors.Is(err, ErrUnknownSource) {
			t.Errorf("ParseFrame(%q) ok=%v err=%v, want ErrUnknownSource", msg, ok, err)
		}
	}
}

func TestParseFrameNoMatch(t *testing.T) {
	for _, msg := range []string{
		"",
		"leaving the network",
		"{asn 00.00002f00 link  1  7  3  1  0 ch 25} uc-0-0 tx LL-2->LL-3",
		"{asn 00.00002f00 link  1  7  3 ch 25} bc-0-0 tx",
	} {
		if IsFrame(msg) {
			t.Errorf("IsFrame(%q) = true", msg)
		}
		if ev, ok, err := ParseFrame(msg); ok || err != nil {
			t.Errorf("ParseFrame(%q) = %+v ok=%v err=%v, want no event", msg, ev, ok, err)
		}
	}
}
