package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tick-md/tick/internal/storage"
	"pgregory.net/rapid"
)

// Feature: tick, Property 1: Task IDs are never reused
// Interleaving adds and deletes always mints a strictly increasing sequence,
// so an ID freed by a delete is never issued again.
func TestProperty_TaskIDsNeverReused(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir := t.TempDir()
		tm := NewTaskManager(filepath.Join(dir, "TICK.md"),
			storage.NewAtomicStore(storage.StoreOptions{}),
			storage.NewLockManager(filepath.Join(dir, "locks")),
			TaskManagerOptions{PadWidth: DefaultIDPadWidth})
		ctx := context.Background()
		at := baseTime
		caller := func() Caller {
			at = at.Add(time.Second)
			return Caller{Actor: "@alice", At: at}
		}
		if _, err := tm.Init(ctx, caller(), InitOptions{Project: "prop", IDPrefix: "P"}); err != nil {
			rt.Fatalf("Init: %v", err)
		}

		ops := rapid.SliceOfN(rapid.Bool(), 1, 30).Draw(rt, "ops")
		var live []string
		lastSeq := 0
		for _, add := range ops {
			if !add && len(live) > 0 {
				i := rapid.IntRange(0, len(live)-1).Draw(rt, "victim")
				if err := tm.DeleteTask(ctx, caller(), live[i]); err != nil {
					rt.Fatalf("DeleteTask(%s): %v", live[i], err)
				}
				live = append(live[:i], live[i+1:]...)
				continue
			}
			task, err := tm.AddTask(ctx, caller(), NewTaskOptions{Title: "t"})
			if err != nil {
				rt.Fatalf("AddTask: %v", err)
			}
			seq, ok := ParseTaskSeq("P", task.ID)
			if !ok {
				rt.Fatalf("minted unparseable ID %q", task.ID)
			}
			if seq <= lastSeq {
				rt.Fatalf("minted %s after sequence %d", task.ID, lastSeq)
			}
			lastSeq = seq
			live = append(live, task.ID)
		}

		res, err := tm.Validate(ctx)
		if err != nil {
			rt.Fatalf("Validate: %v", err)
		}
		if !res.Valid {
			rt.Fatalf("document invalid: %+v", res.Errors)
		}
	})
}

// Feature: tick, Property 2: Symmetric links survive edits
// After random dependency edits that are accepted, every depends_on edge has
// a matching blocks edge and the graph stays acyclic.
func TestProperty_DependencyEditsKeepGraphConsistent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir := t.TempDir()
		tm := NewTaskManager(filepath.Join(dir, "TICK.md"),
			storage.NewAtomicStore(storage.StoreOptions{}),
			storage.NewLockManager(filepath.Join(dir, "locks")),
			TaskManagerOptions{PadWidth: DefaultIDPadWidth})
		ctx := context.Background()
		at := baseTime
		caller := func() Caller {
			at = at.Add(time.Second)
			return Caller{Actor: "@alice", At: at}
		}
		if _, err := tm.Init(ctx, caller(), InitOptions{Project: "prop", IDPrefix: "P"}); err != nil {
			rt.Fatalf("Init: %v", err)
		}

		n := rapid.IntRange(2, 6).Draw(rt, "tasks")
		ids := make([]string, n)
		for i := range ids {
			task, err := tm.AddTask(ctx, caller(), NewTaskOptions{Title: "t"})
			if err != nil {
				rt.Fatalf("AddTask: %v", err)
			}
			ids[i] = task.ID
		}

		edits := rapid.IntRange(1, 10).Draw(rt, "edits")
		for e := 0; e < edits; e++ {
			target := rapid.SampledFrom(ids).Draw(rt, "target")
			deps := rapid.SliceOfN(rapid.SampledFrom(ids), 0, 3).Draw(rt, "deps")
			// Rejections are expected; the invariants below must hold either way.
			_, _ = tm.EditTask(ctx, caller(), target, TaskEdit{DependsOn: &deps})
		}

		doc, err := tm.Document(ctx)
		if err != nil {
			rt.Fatalf("Document: %v", err)
		}
		for _, task := range doc.Tasks {
			for _, dep := range task.DependsOn {
				if other := doc.Task(dep); other == nil || !contains(other.Blocks, task.ID) {
					rt.Fatalf("%s depends on %s without a matching blocks entry", task.ID, dep)
				}
			}
		}
		if cycles := findCycles(doc.Tasks); len(cycles) != 0 {
			rt.Fatalf("accepted edits produced cycles: %v", cycles)
		}
	})
}
