// internal/store/db_test.go
package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/rpltrace/internal/protocol"
)

const testOptions = "format=auto,correlate=node"

func sampleResult() *protocol.Result {
	latency := 4.0
	formation := 10.0
	trickle := 1.5
	nbr := 3
	return &protocol.Result{
		Packets: []*protocol.PendingRequest{
			{PacketID: 7, Origin: 1, Dest: 3, SendTime: 10, Resolved: true, Latency: &latency, PDR: 100},
			{PacketID: 8, Origin: 1, Dest: 3, SendTime: 20},
		},
		Energy: []protocol.EnergyRecord{
			{Timestamp: 60, Node: 2, Metric: protocol.MetricDutyCycle, Value: 1.25},
		},
		Ranks: []protocol.RankRecord{
			{Timestamp: 30, Node: 2, Rank: 256, Trickle: &trickle, NbrCount: &nbr},
			{Timestamp: 90, Node: 2, Rank: 384},
		},
		Switches: []protocol.SwitchRecord{{Timestamp: 31, Node: 2, Parent: 1}},
		Messages: map[string][]protocol.MessageRecord{
			"DIS": {{Timestamp: 5, Node: 2, Message: "DIS"}},
			"DAO": {{Timestamp: 6, Node: 2, Message: "DAO"}, {Timestamp: 7, Node: 3, Message: "DAO"}},
		},
		Topology: []protocol.TopologyRecord{
			{Timestamp: 60, Node: 1, Hops: 0, Children: 1},
			{Timestamp: 60, Node: 2, Hops: 1, Children: 0},
		},
		Frames: []protocol.FrameRecord{
			{Timestamp: 40, Node: 2, ASN: "00.000001a4", Tx: true, Radio: 1, Channel: 20, Source: 2},
			{Timestamp: 40, Node: 3, ASN: "00.000001a4", Radio: 1, Channel: 20, Source: 2, Destination: 3, RSSI: -71, EDR: 12},
		},
		Stats:                protocol.Stats{Lines: 100, Malformed: 3, CorrelationMisses: 1},
		NetworkFormationTime: &formation,
	}
}

func TestDBSaveAndLoad(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB error: %v", err)
	}
	defer db.Close()

	if _, ok, err := db.LoadRun("/runs/42_a", testOptions); err != nil || ok {
		t.Fatalf("LoadRun on empty cache: ok=%v err=%v", ok, err)
	}

	if err := db.SaveRun("/runs/42_a", testOptions, sampleResult()); err != nil {
		t.Fatalf("SaveRun error: %v", err)
	}

	res, ok, err := db.LoadRun("/runs/42_a", testOptions)
	if err != nil || !ok {
		t.Fatalf("LoadRun ok=%v err=%v", ok, err)
	}

	if len(res.Packets) != 2 {
		t.Fatalf("Packets = %d, want 2", len(res.Packets))
	}
	if !res.Packets[0].Resolved || res.Packets[0].Latency == nil || *res.Packets[0].Latency != 4 {
		t.Errorf("Packets[0] = %+v", res.Packets[0])
	}
	if res.Packets[1].Resolved || res.Packets[1].Latency != nil {
		t.Errorf("Packets[1] = %+v, want unresolved", res.Packets[1])
	}
	if len(res.Ranks) != 2 || res.Ranks[0].Trickle == nil || *res.Ranks[0].NbrCount != 3 || res.Ranks[1].Trickle != nil {
		t.Errorf("Ranks = %+v", res.Ranks)
	}
	if len(res.Messages["DAO"]) != 2 || len(res.Messages["DIS"]) != 1 {
		t.Errorf("Messages = %+v", res.Messages)
	}
	if len(res.Topology) != 2 || res.Topology[0].Children != 1 {
		t.Errorf("Topology = %+v", res.Topology)
	}
	if len(res.Energy) != 1 || len(res.Switches) != 1 {
		t.Errorf("Energy = %+v Switches = %+v", res.Energy, res.Switches)
	}
	if res.Stats.Lines != 100 || res.Stats.CorrelationMisses != 1 {
		t.Errorf("Stats = %+v", res.Stats)
	}
	if res.NetworkFormationTime == nil || *res.NetworkFormationTime != 10 {
		t.Errorf("NetworkFormationTime = %v, want 10", res.NetworkFormationTime)
	}
	if len(res.Frames) != 2 {
		t.Fatalf("Frames = %d, want 2", len(res.Frames))
	}
	if rx := res.Frames[1]; rx.Tx || rx.ASN != "00.000001a4" || rx.Source != 2 || rx.Destination != 3 || rx.RSSI != -71 || rx.EDR != 12 {
		t.Errorf("Frames[1] = %+v", rx)
	}
	if !res.Frames[0].Tx {
		t.Errorf("Frames[0] = %+v, want tx", res.Frames[0])
	}
}

func TestDBLoadRunOptionsMismatch(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB error: %v", err)
	}
	defer db.Close()

	if err := db.SaveRun("/runs/42_a", testOptions, sampleResult()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		options string
		wantOK  bool
	}{
		{testOptions, true},
		{"format=full,correlate=node", false},
		{"format=auto,correlate=id", false},
		{"", false},
	}
	for _, tt := range tests {
		_, ok, err := db.LoadRun("/runs/42_a", tt.options)
		if err != nil {
			t.Errorf("LoadRun(%q) error: %v", tt.options, err)
		}
		if ok != tt.wantOK {
			t.Errorf("LoadRun(%q) ok = %v, want %v", tt.options, ok, tt.wantOK)
		}
	}

	runs, err := db.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns error: %v", err)
	}
	if len(runs) != 1 || runs[0].Options != testOptions {
		t.Errorf("ListRuns = %+v", runs)
	}
}

func TestDBListRunsCorruptStats(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB error: %v", err)
	}
	defer db.Close()

	if err := db.SaveRun("/runs/1", testOptions, sampleResult()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.db.Exec(`UPDATE runs SET stats = '{not json' WHERE dir = ?`, "/runs/1"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ListRuns(); err == nil || !strings.Contains(err.Error(), "/runs/1") {
		t.Errorf("ListRuns error = %v, want decode error naming the run", err)
	}

	if _, err := db.db.Exec(`UPDATE runs SET stats = '{}', parsed_at = 'yesterday' WHERE dir = ?`, "/runs/1"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ListRuns(); err == nil {
		t.Error("ListRuns accepted an unreadable parse time")
	}
}

func TestDBSaveReplaces(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB error: %v", err)
	}
	defer db.Close()

	if err := db.SaveRun("/runs/1", testOptions, sampleResult()); err != nil {
		t.Fatal(err)
	}
	smaller := &protocol.Result{Stats: protocol.Stats{Lines: 5}}
	if err := db.SaveRun("/runs/1", testOptions, smaller); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveRun("/runs/2", testOptions, sampleResult()); err != nil {
		t.Fatal(err)
	}

	res, ok, err := db.LoadRun("/runs/1", testOptions)
	if err != nil || !ok {
		t.Fatalf("LoadRun ok=%v err=%v", ok, err)
	}
	if len(res.Packets) != 0 || res.Stats.Lines != 5 || res.NetworkFormationTime != nil {
		t.Errorf("stale rows after replace: %+v", res)
	}

	runs, err := db.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns = %d runs, want 2", len(runs))
	}

	if err := db.DeleteRun("/runs/2"); err != nil {
		t.Fatalf("DeleteRun error: %v", err)
	}
	if _, ok, _ := db.LoadRun("/runs/2", testOptions); ok {
		t.Error("run still cached after DeleteRun")
	}
}
