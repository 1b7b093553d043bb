// internal/store/db.go
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/signalnine/rpltrace/internal/protocol"
)

// RunInfo describes a cached run
type RunInfo struct {
	ID       string
	Dir      string
	Options  string
	ParsedAt time.Time
	Stats    protocol.Stats
}

// DB caches parsed runs in SQLite so reports can be regenerated without
// re-reading large logs
type DB struct {
	db *sql.DB
}

// NewDB opens or creates the SQLite database
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Parse workers share the handle; one connection serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		dir TEXT NOT NULL UNIQUE,
		options TEXT NOT NULL DEFAULT '',
		stats TEXT NOT NULL,
		formation_time REAL,
		parsed_at TEXT DEFAULT (datetime('now'))
	);
	CREATE TABLE IF NOT EXISTS packets (
		run_id TEXT NOT NULL,
		packet_id INTEGER NOT NULL,
		origin INTEGER NOT NULL,
		dest INTEGER NOT NULL,
		send_time REAL NOT NULL,
		resolved INTEGER NOT NULL,
		latency REAL,
		pdr REAL NOT NULL
	);
	CREATE TABLE IF NOT EXISTS energy (
		run_id TEXT NOT NULL,
		timestamp REAL NOT NULL,
		node INTEGER NOT NULL,
		metric TEXT NOT NULL,
		value REAL NOT NULL
	);
	CREATE TABLE IF NOT EXISTS ranks (
		run_id TEXT NOT NULL,
		timestamp REAL NOT NULL,
		node INTEGER NOT NULL,
		rank INTEGER NOT NULL,
		trickle REAL,
		nbr_count INTEGER
	);
	CREATE TABLE IF NOT EXISTS switches (
		run_id TEXT NOT NULL,
		timestamp REAL NOT NULL,
		node INTEGER NOT NULL,
		parent INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		run_id TEXT NOT NULL,
		timestamp REAL NOT NULL,
		node INTEGER NOT NULL,
		message TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS topology (
		run_id TEXT NOT NULL,
		timestamp REAL NOT NULL,
		node INTEGER NOT NULL,
		hops INTEGER NOT NULL,
		children INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS frames (
		run_id TEXT NOT NULL,
		timestamp REAL NOT NULL,
		node INTEGER NOT NULL,
		asn TEXT NOT NULL,
		tx INTEGER NOT NULL,
		radio INTEGER NOT NULL,
		channel INTEGER NOT NULL,
		source INTEGER NOT NULL,
		destination INTEGER NOT NULL,
		rssi INTEGER NOT NULL,
		edr INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_packets_run ON packets(run_id);
	CREATE INDEX IF NOT EXISTS idx_energy_run ON energy(run_id);
	CREATE INDEX IF NOT EXISTS idx_ranks_run ON ranks(run_id);
	CREATE INDEX IF NOT EXISTS idx_switches_run ON switches(run_id);
	CREATE INDEX IF NOT EXISTS idx_messages_run ON messages(run_id);
	CREATE INDEX IF NOT EXISTS idx_topology_run ON topology(run_id);
	CREATE INDEX IF NOT EXISTS idx_frames_run ON frames(run_id);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	// Caches created before parse options were recorded
	if _, err := db.Exec(`ALTER TABLE runs ADD COLUMN options TEXT NOT NULL DEFAULT ''`); err != nil &&
		!strings.Contains(err.Error(), "duplicate column") {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

var runTables = []string{"packets", "energy", "ranks", "switches", "messages", "topology", "frames"}

// SaveRun stores a result parsed from dir with the given parse options,
// replacing any previous entry
func (d *DB) SaveRun(dir, options string, res *protocol.Result) (err error) {
	statsJSON, err := json.Marshal(res.Stats)
	if err != nil {
		return err
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = deleteRun(tx, dir); err != nil {
		return err
	}

	runID := uuid.NewString()
	if _, err = tx.Exec(`INSERT INTO runs (id, dir, options, stats, formation_time) VALUES (?, ?, ?, ?, ?)`,
		runID, dir, options, string(statsJSON), nullFloat(res.NetworkFormationTime)); err != nil {
		return err
	}

	for _, p := range res.Packets {
		if _, err = tx.Exec(`INSERT INTO packets (run_id, packet_id, origin, dest, send_time, resolved, latency, pdr) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, p.PacketID, p.Origin, p.Dest, p.SendTime, p.Resolved, nullFloat(p.Latency), p.PDR); err != nil {
			return fmt.Errorf("insert packet: %w", err)
		}
	}
	for _, e := range res.Energy {
		if _, err = tx.Exec(`INSERT INTO energy (run_id, timestamp, node, metric, value) VALUES (?, ?, ?, ?, ?)`,
			runID, e.Timestamp, e.Node, e.Metric, e.Value); err != nil {
			return fmt.Errorf("insert energy: %w", err)
		}
	}
	for _, r := range res.Ranks {
		var nbr sql.NullInt64
		if r.NbrCount != nil {
			nbr = sql.NullInt64{Int64: int64(*r.NbrCount), Valid: true}
		}
		if _, err = tx.Exec(`INSERT INTO ranks (run_id, timestamp, node, rank, trickle, nbr_count) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, r.Timestamp, r.Node, r.Rank, nullFloat(r.Trickle), nbr); err != nil {
			return fmt.Errorf("insert rank: %w", err)
		}
	}
	for _, s := range res.Switches {
		if _, err = tx.Exec(`INSERT INTO switches (run_id, timestamp, node, parent) VALUES (?, ?, ?, ?)`,
			runID, s.Timestamp, s.Node, s.Parent); err != nil {
			return fmt.Errorf("insert switch: %w", err)
		}
	}
	for _, records := range res.Messages {
		for _, m := range records {
			if _, err = tx.Exec(`INSERT INTO messages (run_id, timestamp, node, message) VALUES (?, ?, ?, ?)`,
				runID, m.Timestamp, m.Node, m.Message); err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
		}
	}
	for _, t := range res.Topology {
		if _, err = tx.Exec(`INSERT INTO topology (run_id, timestamp, node, hops, children) VALUES (?, ?, ?, ?, ?)`,
			runID, t.Timestamp, t.Node, t.Hops, t.Children); err != nil {
			return fmt.Errorf("insert topology: %w", err)
		}
	}
	for _, f := range res.Frames {
		if _, err = tx.Exec(`INSERT INTO frames (run_id, timestamp, node, asn, tx, radio, channel, source, destination, rssi, edr) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, f.Timestamp, f.Node, f.ASN, f.Tx, f.Radio, f.Channel, f.Source, f.Destination, f.RSSI, f.EDR); err != nil {
			return fmt.Errorf("insert frame: %w", err)
		}
	}

	return tx.Commit()
}

func deleteRun(tx *sql.Tx, dir string) error {
	var id string
	err := tx.QueryRow(`SELECT id FROM runs WHERE dir = ?`, dir).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	for _, table := range runTables {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE run_id = ?`, id); err != nil {
			return err
		}
	}
	_, err = tx.Exec(`DELETE FROM runs WHERE id = ?`, id)
	return err
}

// LoadRun returns the cached result for dir. ok is false on a cache miss,
// including a run cached under different parse options.
func (d *DB) LoadRun(dir, options string) (res *protocol.Result, ok bool, err error) {
	var runID, cachedOptions, statsJSON string
	var formation sql.NullFloat64
	err = d.db.QueryRow(`SELECT id, options, stats, formation_time FROM runs WHERE dir = ?`, dir).
		Scan(&runID, &cachedOptions, &statsJSON, &formation)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if cachedOptions != options {
		return nil, false, nil
	}

	res = &protocol.Result{Messages: make(map[string][]protocol.MessageRecord)}
	if err := json.Unmarshal([]byte(statsJSON), &res.Stats); err != nil {
		return nil, false, fmt.Errorf("decode stats: %w", err)
	}
	if formation.Valid {
		res.NetworkFormationTime = &formation.Float64
	}

	loaders := []func(string, *protocol.Result) error{
		d.loadPackets, d.loadEnergy, d.loadRanks, d.loadSwitches, d.loadMessages, d.loadTopology, d.loadFrames,
	}
	for _, load := range loaders {
		if err := load(runID, res); err != nil {
			return nil, false, err
		}
	}
	return res, true, nil
}

func (d *DB) loadPackets(runID string, res *protocol.Result) error {
	rows, err := d.db.Query(`SELECT packet_id, origin, dest, send_time, resolved, latency, pdr FROM packets WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p protocol.PendingRequest
		var latency sql.NullFloat64
		if err := rows.Scan(&p.PacketID, &p.Origin, &p.Dest, &p.SendTime, &p.Resolved, &latency, &p.PDR); err != nil {
			return err
		}
		if latency.Valid {
			p.Latency = &latency.Float64
		}
		res.Packets = append(res.Packets, &p)
	}
	return rows.Err()
}

func (d *DB) loadEnergy(runID string, res *protocol.Result) error {
	rows, err := d.db.Query(`SELECT timestamp, node, metric, value FROM energy WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e protocol.EnergyRecord
		if err := rows.Scan(&e.Timestamp, &e.Node, &e.Metric, &e.Value); err != nil {
			return err
		}
		res.Energy = append(res.Energy, e)
	}
	return rows.Err()
}

func (d *DB) loadRanks(runID string, res *protocol.Result) error {
	rows, err := d.db.Query(`SELECT timestamp, node, rank, trickle, nbr_count FROM ranks WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r protocol.RankRecord
		var trickle sql.NullFloat64
		var nbr sql.NullInt64
		if err := rows.Scan(&r.Timestamp, &r.Node, &r.Rank, &trickle, &nbr); err != nil {
			return err
		}
		if trickle.Valid {
			r.Trickle = &trickle.Float64
		}
		if nbr.Valid {
			n := int(nbr.Int64)
			r.NbrCount = &n
		}
		res.Ranks = append(res.Ranks, r)
	}
	return rows.Err()
}

func (d *DB) loadSwitches(runID string, res *protocol.Result) error {
	rows, err := d.db.Query(`SELECT timestamp, node, parent FROM switches WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var s protocol.SwitchRecord
		if err := rows.Scan(&s.Timestamp, &s.Node, &s.Parent); err != nil {
			return err
		}
		res.Switches = append(res.Switches, s)
	}
	return rows.Err()
}

func (d *DB) loadMessages(runID string, res *protocol.Result) error {
	rows, err := d.db.Query(`SELECT timestamp, node, message FROM messages WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var m protocol.MessageRecord
		if err := rows.Scan(&m.Timestamp, &m.Node, &m.Message); err != nil {
			return err
		}
		res.Messages[m.Message] = append(res.Messages[m.Message], m)
	}
	return rows.Err()
}

func (d *DB) loadTopology(runID string, res *protocol.Result) error {
	rows, err := d.db.Query(`SELECT timestamp, node, hops, children FROM topology WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var t protocol.TopologyRecord
		if err := rows.Scan(&t.Timestamp, &t.Node, &t.Hops, &t.Children); err != nil {
			return err
		}
		res.Topology = append(res.Topology, t)
	}
	return rows.Err()
}

func (d *DB) loadFrames(runID string, res *protocol.Result) error {
	rows, err := d.db.Query(`SELECT timestamp, node, asn, tx, radio, channel, source, destination, rssi, edr FROM frames WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var f protocol.FrameRecord
		if err := rows.Scan(&f.Timestamp, &f.Node, &f.ASN, &f.Tx, &f.Radio, &f.Channel, &f.Source, &f.Destination, &f.RSSI, &f.EDR); err != nil {
			return err
		}
		res.Frames = append(res.Frames, f)
	}
	return rows.Err()
}

// ListRuns returns every cached run, most recent first
func (d *DB) ListRuns() ([]RunInfo, error) {
	rows, err := d.db.Query(`SELECT id, dir, options, stats, parsed_at FROM runs ORDER BY parsed_at DESC, dir`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var r RunInfo
		var statsJSON, parsedStr string
		if err := rows.Scan(&r.ID, &r.Dir, &r.Options, &statsJSON, &parsedStr); err != nil {
			return nil, err
		}
		if r.ParsedAt, err = time.Parse("2006-01-02 15:04:05", parsedStr); err != nil {
			return nil, fmt.Errorf("parse time of %s: %w", r.Dir, err)
		}
		if err := json.Unmarshal([]byte(statsJSON), &r.Stats); err != nil {
			return nil, fmt.Errorf("decode stats of %s: %w", r.Dir, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes dir from the cache
func (d *DB) DeleteRun(dir string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	if err := deleteRun(tx, dir); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
