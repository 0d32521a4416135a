package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/recsync/internal/core/ecs"
	"github.com/zeusync/recsync/internal/core/network"
)

type fixture struct {
	world *ecs.World
	pos   ecs.Component
	owner ecs.Component
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	w := ecs.NewWorld()
	pos, err := ecs.DefineCoordComponent(w, ecs.WithID("Position"))
	require.NoError(t, err)
	owner, err := ecs.DefineStringComponent(w, ecs.WithID("OwnedBy"))
	require.NoError(t, err)

	_, err = w.CreateEntityWithID("0x02", ecs.WithValue(pos, ecs.Value{"x": 2, "y": 2}), ecs.WithValue(owner, ecs.Value{"value": "alice"}))
	require.NoError(t, err)
	_, err = w.CreateEntityWithID("0x01", ecs.WithValue(pos, ecs.Value{"x": 1, "y": 1}), ecs.WithValue(owner, ecs.Value{"value": "bob"}))
	require.NoError(t, err)
	_, err = w.CreateEntityWithID("0x03", ecs.WithValue(pos, ecs.Value{"x": 3, "y": 3}))
	require.NoError(t, err)
	return fixture{world: w, pos: pos, owner: owner}
}

func TestFromWorld_SortedTablesAndHash(t *testing.T) {
	f := newFixture(t)
	s, err := FromWorld(f.world, 10, 20)
	require.NoError(t, err)

	assert.Equal(t, []string{"OwnedBy", "Position"}, s.Components)
	assert.Equal(t, []string{"0x01", "0x02", "0x03"}, s.Entities)
	require.Len(t, s.State, 5)
	assert.Equal(t, Entry{Component: 0, Entity: 0, Value: []byte(`{"value":"bob"}`)}, s.State[0])
	assert.Equal(t, Entry{Component: 1, Entity: 2, Value: []byte(`{"x":3,"y":3}`)}, s.State[4])
	assert.Len(t, s.StateHash, 16)
	assert.NoError(t, s.Verify())

	again, err := FromWorld(f.world, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, s.StateHash, again.StateHash)

	require.NoError(t, f.pos.Set(f.world.RegisterEntity("0x03"), ecs.Value{"x": 4, "y": 4}))
	changed, err := FromWorld(f.world, 10, 21)
	require.NoError(t, err)
	assert.NotEqual(t, s.StateHash, changed.StateHash)
}

func TestVerify_DetectsTampering(t *testing.T) {
	s, err := FromWorld(newFixture(t).world, 0, 1)
	require.NoError(t, err)

	s.State[1].Value = []byte(`{"value":"mallory"}`)
	assert.ErrorIs(t, s.Verify(), ErrHashMismatch)

	s.State[0].Entity = 99
	assert.ErrorIs(t, s.Verify(), ErrInvalidSnapshot)
}

func TestEncodeDecode(t *testing.T) {
	s, err := FromWorld(newFixture(t).world, 3, 4)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "state.snap")
	require.NoError(t, WriteFile(path, s))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
	assert.NoError(t, got.Verify())

	_, err = Decode([]byte("not a snapshot"))
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}

func TestChunk(t *testing.T) {
	s, err := FromWorld(newFixture(t).world, 0, 1)
	require.NoError(t, err)

	chunks := s.Chunk(40)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].State, 2)
	assert.Len(t, chunks[2].State, 1)

	var events []network.NetworkEvent
	for _, c := range chunks {
		assert.Equal(t, s.StateHash, c.StateHash)
		assert.LessOrEqual(t, len(c.Entities), 2)
		ev, err := c.Events()
		require.NoError(t, err)
		events = append(events, ev...)
	}
	all, err := s.Events()
	require.NoError(t, err)
	assert.Equal(t, all, events)

	assert.Len(t, s.Chunk(0), 1)
}

func TestPrune(t *testing.T) {
	s, err := FromWorld(newFixture(t).world, 0, 1)
	require.NoError(t, err)

	pruned, err := s.Prune("OwnedBy", func(v ecs.Value) bool { return v["value"] == "alice" })
	require.NoError(t, err)
	assert.Len(t, pruned.State, 4)
	for _, entry := range pruned.State {
		if pruned.Components[entry.Component] == "OwnedBy" {
			assert.Equal(t, "0x02", pruned.Entities[entry.Entity])
		}
	}
	assert.Len(t, s.State, 5, "the source snapshot is untouched")
}

func TestFactory_RestoresWorld(t *testing.T) {
	src := newFixture(t)
	s, err := FromWorld(src.world, 0, 7)
	require.NoError(t, err)

	fresh := ecs.NewWorld()
	pos, err := ecs.DefineCoordComponent(fresh, ecs.WithID("Position"), ecs.Indexed())
	require.NoError(t, err)
	owner, err := ecs.DefineStringComponent(fresh, ecs.WithID("OwnedBy"))
	require.NoError(t, err)

	ch := network.NewSyncChannel(s.Factory(), network.WithBatchSize(2), network.WithAckPeriod(time.Millisecond))
	defer ch.Dispose()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, network.Consume(ctx, ch, fresh, nil))

	restored, err := FromWorld(fresh, 0, 7)
	require.NoError(t, err)
	assert.Equal(t, s.StateHash, restored.StateHash)
	assert.Equal(t, 3, pos.Len())
	assert.Equal(t, 2, owner.Len())

	e, _ := fresh.EntityIndex("0x03")
	assert.Equal(t, []ecs.Entity{e}, pos.EntitiesWithValue(ecs.Value{"x": 3, "y": 3}))
}

func TestHash_SeparatesFields(t *testing.T) {
	a := &Snapshot{Components: []string{"ab"}, Entities: []string{"c"}, State: []Entry{{Value: []byte(`{}`)}}}
	b := &Snapshot{Components: []string{"a"}, Entities: []string{"bc"}, State: []Entry{{Value: []byte(`{}`)}}}
	assert.NotEqual(t, a.computeHash(), b.computeHash())
}

func TestEntityRefs_RoundTripAcrossWorlds(t *testing.T) {
	link := ecs.Schema{"to": ecs.EntityRef, "via": ecs.OptionalEntityRefArray}

	src := ecs.NewWorld()
	srcLinks, err := ecs.DefineComponent(src, link, ecs.WithID("Link"))
	require.NoError(t, err)
	z := src.RegisterEntity("z")
	_, err = src.CreateEntityWithID("a", ecs.WithValue(srcLinks, ecs.Value{"to": z, "via": []ecs.Entity{z}}))
	require.NoError(t, err)

	s, err := FromWorld(src, 0, 1)
	require.NoError(t, err)
	require.Len(t, s.State, 1)
	assert.JSONEq(t, `{"to":"z","via":["z"]}`, string(s.State[0].Value))

	dst := ecs.NewWorld()
	dstLinks, err := ecs.DefineComponent(dst, link, ecs.WithID("Link"))
	require.NoError(t, err)
	dst.RegisterEntity("first")
	dst.RegisterEntity("second")

	events, err := s.Events()
	require.NoError(t, err)
	require.NoError(t, network.ApplyEvents(dst, events))

	a, ok := dst.EntityIndex("a")
	require.True(t, ok)
	v, err := dstLinks.GetStrict(a)
	require.NoError(t, err)
	to, ok := dst.EntityID(v["to"].(ecs.Entity))
	require.True(t, ok)
	assert.Equal(t, ecs.EntityID("z"), to)

	restored, err := FromWorld(dst, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, s.StateHash, restored.StateHash)
}

func TestFromWorld_DanglingReference(t *testing.T) {
	w := ecs.NewWorld()
	links, err := ecs.DefineComponent(w, ecs.Schema{"to": ecs.EntityRef}, ecs.WithID("Link"))
	require.NoError(t, err)
	z := w.RegisterEntity("z")
	_, err = w.CreateEntityWithID("a", ecs.WithValue(links, ecs.Value{"to": z}))
	require.NoError(t, err)
	w.RemoveEntity(z)

	_, err = FromWorld(w, 0, 1)
	assert.ErrorIs(t, err, ecs.ErrDanglingReference)
}
