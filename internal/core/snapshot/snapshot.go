// Package snapshot captures the component state of a World so that a fresh
// consumer can start from it instead of replaying every event.
package snapshot

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/zeusync/recsync/internal/core/ecs"
	"github.com/zeusync/recsync/internal/core/network"
)

// Entry is one component value. Component and Entity index the snapshot's
// Components and Entities tables.
type Entry struct {
	Component uint32
	Entity    uint32
	Value     []byte
}

// Snapshot is the state of a world between two block numbers. Entries are
// ordered by component id, then entity id.
type Snapshot struct {
	Components []string
	Entities   []string
	State      []Entry
	StateHash  string
	StartBlock uint64
	EndBlock   uint64
}

// FromWorld captures every component value held in w. Entities without an
// external id are skipped since they cannot be addressed by a consumer.
// Entity reference fields are written as external ids.
func FromWorld(w *ecs.World, startBlock, endBlock uint64) (*Snapshot, error) {
	components := w.Components()
	sort.Slice(components, func(i, j int) bool { return components[i].ID() < components[j].ID() })

	b := newBuilder(startBlock, endBlock)
	for _, c := range components {
		type held struct {
			id    string
			value ecs.Value
		}
		var rows []held
		for _, e := range c.Entities() {
			id, ok := w.EntityID(e)
			if !ok {
				continue
			}
			v, ok := c.Get(e)
			if !ok {
				continue
			}
			exported, err := w.ExportValue(c.Schema(), v)
			if err != nil {
				return nil, fmt.Errorf("encode %s/%s: %w", c.ID(), id, err)
			}
			rows = append(rows, held{id: string(id), value: exported})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

		for _, row := range rows {
			data, err := json.Marshal(row.value)
			if err != nil {
				return nil, fmt.Errorf("encode %s/%s: %w", c.ID(), row.id, err)
			}
			b.add(c.ID(), row.id, data)
		}
	}
	return b.build(), nil
}

// builder assigns table indexes in order of first appearance.
type builder struct {
	snap        *Snapshot
	componentIx map[string]uint32
	entityIx    map[string]uint32
}

func newBuilder(startBlock, endBlock uint64) *builder {
	return &builder{
		snap:        &Snapshot{StartBlock: startBlock, EndBlock: endBlock},
		componentIx: make(map[string]uint32),
		entityIx:    make(map[string]uint32),
	}
}

func (b *builder) add(component, entity string, value []byte) {
	ci, ok := b.componentIx[component]
	if !ok {
		ci = uint32(len(b.snap.Components))
		b.snap.Components = append(b.snap.Components, component)
		b.componentIx[component] = ci
	}
	ei, ok := b.entityIx[entity]
	if !ok {
		ei = uint32(len(b.snap.Entities))
		b.snap.Entities = append(b.snap.Entities, entity)
		b.entityIx[entity] = ei
	}
	b.snap.State = append(b.snap.State, Entry{Component: ci, Entity: ei, Value: value})
}

func (b *builder) build() *Snapshot {
	b.snap.StateHash = b.snap.computeHash()
	return b.snap
}

func (s *Snapshot) computeHash() string {
	h := xxhash.New()
	for _, entry := range s.State {
		writeField(h, []byte(s.Components[entry.Component]))
		writeField(h, []byte(s.Entities[entry.Entity]))
		writeField(h, entry.Value)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// writeField length-prefixes b so adjacent fields cannot run together.
func writeField(h *xxhash.Digest, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	_, _ = h.Write(n[:])
	_, _ = h.Write(b)
}

func (s *Snapshot) validate() error {
	for i, entry := range s.State {
		if int(entry.Component) >= len(s.Components) || int(entry.Entity) >= len(s.Entities) {
			return fmt.Errorf("%w: entry %d indexes outside the tables", ErrInvalidSnapshot, i)
		}
	}
	return nil
}

// Verify recomputes the state hash. Chunks and pruned snapshots carry the
// hash of the snapshot they were cut from and do not verify.
func (s *Snapshot) Verify() error {
	if err := s.validate(); err != nil {
		return err
	}
	if got := s.computeHash(); got != s.StateHash {
		return fmt.Errorf("%w: have %s, computed %s", ErrHashMismatch, s.StateHash, got)
	}
	return nil
}

// Chunk splits the state into chunks of percentage percent of the entries
// each. Every chunk has its own re-indexed tables.
func (s *Snapshot) Chunk(percentage int) []*Snapshot {
	if percentage <= 0 || percentage > 100 {
		percentage = 100
	}
	if len(s.State) == 0 {
		return []*Snapshot{s}
	}
	size := (len(s.State)*percentage + 99) / 100

	var chunks []*Snapshot
	for start := 0; start < len(s.State); start += size {
		end := start + size
		if end > len(s.State) {
			end = len(s.State)
		}
		b := newBuilder(s.StartBlock, s.EndBlock)
		for _, entry := range s.State[start:end] {
			b.add(s.Components[entry.Component], s.Entities[entry.Entity], entry.Value)
		}
		b.snap.StateHash = s.StateHash
		chunks = append(chunks, b.snap)
	}
	return chunks
}

// Prune drops entries of component whose decoded value fails keep. Entries
// of other components are kept as they are.
func (s *Snapshot) Prune(component string, keep func(ecs.Value) bool) (*Snapshot, error) {
	out := &Snapshot{
		Components: s.Components,
		Entities:   s.Entities,
		StateHash:  s.StateHash,
		StartBlock: s.StartBlock,
		EndBlock:   s.EndBlock,
	}
	for _, entry := range s.State {
		if s.Components[entry.Component] == component {
			var v ecs.Value
			if err := json.Unmarshal(entry.Value, &v); err != nil {
				return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidSnapshot, component, err)
			}
			if !keep(v) {
				continue
			}
		}
		out.State = append(out.State, entry)
	}
	return out, nil
}

// Events converts the state into NetworkEvents stamped with EndBlock.
func (s *Snapshot) Events() ([]network.NetworkEvent, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	events := make([]network.NetworkEvent, 0, len(s.State))
	for i, entry := range s.State {
		var v ecs.Value
		if err := json.Unmarshal(entry.Value, &v); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidSnapshot, i, err)
		}
		if v == nil {
			v = ecs.Value{}
		}
		events = append(events, network.NetworkEvent{
			Component:   s.Components[entry.Component],
			Entity:      ecs.EntityID(s.Entities[entry.Entity]),
			Value:       v,
			BlockNumber: s.EndBlock,
		})
	}
	return events, nil
}

// Factory replays the snapshot through a sync channel. The source cursor is
// the entry offset.
func (s *Snapshot) Factory() network.SourceFactory {
	return func(context.Context) (network.Source, error) {
		events, err := s.Events()
		if err != nil {
			return nil, err
		}
		return network.NewSliceSource(events), nil
	}
}
