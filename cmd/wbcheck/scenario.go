package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/chazu/wbcheck/arena"
	"github.com/chazu/wbcheck/gc"
)

type scenarioFunc func(a *arena.Arena, o *options) error

var scenarios = map[string]scenarioFunc{
	"chain":      runChain,
	"churn":      runChurn,
	"missed":     runMissed,
	"concurrent": runConcurrent,
}

func scenarioNames() string {
	return strings.Join(slices.Sorted(maps.Keys(scenarios)), ", ")
}

// runChain builds a rooted linked list of n cons cells, collecting every
// few pushes, then checks the list and drops it.
//
// Every scenario allocates through an attached mutator so that pacer
// requests wait for a safepoint instead of collecting between an
// allocation and the store that publishes it.
func runChain(a *arena.Arena, o *options) error {
	root, err := a.Allocate("List", 1, true)
	if err != nil {
		return err
	}
	a.AddRoot(root)
	defer a.RemoveRoot(root)

	m := a.Attach()
	defer m.Detach()
	for i := 0; i < o.n; i++ {
		head, err := m.Load(root, 0)
		if err != nil {
			return err
		}
		cell, err := m.Allocate("Cons", 2, true, head, gc.Immediate(int64(i)))
		if err != nil {
			return err
		}
		if err := m.Store(root, 0, cell); err != nil {
			return err
		}
		m.Reset()
		if i%64 == 63 {
			a.Collect()
		}
	}
	a.Collect()

	length := 0
	for h, _ := a.Load(root, 0); h != gc.Nil; h, _ = a.Load(h, 0) {
		v, err := a.Load(h, 1)
		if err != nil {
			return err
		}
		if want := int64(o.n - 1 - length); v.ImmediateValue() != want {
			return fmt.Errorf("cell %d holds %d, want %d", length, v.ImmediateValue(), want)
		}
		length++
	}
	if length != o.n {
		return fmt.Errorf("list has %d cells, want %d", length, o.n)
	}

	if err := a.Store(root, 0, gc.Nil); err != nil {
		return err
	}
	a.Collect()
	if a.Backend().Name() == gc.BackendEpsilon {
		return nil
	}
	if a.Len() != 1 {
		return fmt.Errorf("%d objects survived dropping the list, want 1", a.Len())
	}
	return nil
}

// runChurn allocates n short-lived objects of mixed sizes in short chains. A
// few are kept in a rotating table, some carry finalizers or native
// teardowns, some are unprotected, and one weak slot always points at the
// newest object. Collections are left to the threshold.
func runChurn(a *arena.Arena, o *options) error {
	const tableSize = 8

	table, err := a.Allocate("Table", tableSize, true)
	if err != nil {
		return err
	}
	a.AddRoot(table)
	defer a.RemoveRoot(table)

	watcher, err := a.Allocate("Watcher", 0, true)
	if err != nil {
		return err
	}
	a.AddRoot(watcher)
	defer a.RemoveRoot(watcher)

	var (
		mu        sync.Mutex
		finalized int
		tornDown  int
	)
	onFinalize := func(gc.Handle) {
		mu.Lock()
		finalized++
		mu.Unlock()
	}
	onTeardown := func(any) {
		mu.Lock()
		tornDown++
		mu.Unlock()
	}

	m := a.Attach()
	defer m.Detach()

	prev := gc.Nil
	for i := 0; i < o.n; i++ {
		var init []gc.Handle
		if i%4 != 0 {
			init = append(init, prev)
		}
		obj, err := m.Allocate("Tmp", 1+i%6, i%3 != 0, init...)
		if err != nil {
			return err
		}
		// Only the newest object stays on the stack; it is the next
		// allocation's initial value.
		m.Reset()
		m.Push(obj)
		if i%5 == 0 {
			if _, err := a.DefineFinalizer(obj, onFinalize); err != nil {
				return err
			}
		}
		if i%7 == 0 {
			if err := a.SetTeardown(obj, onTeardown, i); err != nil {
				return err
			}
		}
		if i%2 == 0 {
			if err := m.Store(table, i%tableSize, obj); err != nil {
				return err
			}
		}
		if err := a.SetWeak(watcher, obj); err != nil {
			return err
		}
		prev = obj
	}

	mu.Lock()
	log.Infof("churn: %d finalizer(s) and %d teardown(s) ran before shutdown", finalized, tornDown)
	mu.Unlock()
	return nil
}

// runMissed overwrites the slots of a rooted holder n times and makes the
// last store without its write barrier. With batch verification the next
// collection reports it; with eager verification it aborts.
func runMissed(a *arena.Arena, o *options) error {
	root, err := a.Allocate("Holder", 2, true)
	if err != nil {
		return err
	}
	a.AddRoot(root)
	a.Collect()

	m := a.Attach()
	defer m.Detach()
	n := max(o.n, 2)
	for i := 0; i < n; i++ {
		child, err := m.Allocate("Leaf", 0, true)
		if err != nil {
			return err
		}
		if i == n-1 {
			err = m.StoreWithoutBarrier(root, i%2, child)
		} else {
			err = m.Store(root, i%2, child)
		}
		if err != nil {
			return err
		}
		m.Reset()
	}
	a.Collect()
	return nil
}

// runConcurrent runs o.workers mutators that each grow their own rooted
// list, periodically asking for a collection through the handshake.
func runConcurrent(a *arena.Arena, o *options) error {
	workers := max(o.workers, 1)
	roots := make([]gc.Handle, workers)
	for i := range roots {
		h, err := a.Allocate("List", 1, true)
		if err != nil {
			return err
		}
		a.AddRoot(h)
		roots[i] = h
	}
	defer func() {
		for _, h := range roots {
			a.RemoveRoot(h)
		}
	}()

	var (
		wg       sync.WaitGroup
		fatals   fatalCatcher
		errMu    sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	for w := 0; w < workers; w++ {
		m := a.Attach()
		wg.Add(1)
		go func(m *arena.Mutator, root gc.Handle) {
			defer wg.Done()
			defer m.Detach()
			fatals.catch(func() {
				if err := pushCells(m, root, o.n); err != nil {
					fail(err)
				}
			})
		}(m, roots[w])
	}
	wg.Wait()

	if fe := fatals.err(); fe != nil {
		panic(fe)
	}
	if firstErr != nil {
		return firstErr
	}

	a.Collect()
	if want := workers * (o.n + 1); a.Len() != want {
		return fmt.Errorf("%d objects live after concurrent run, want %d", a.Len(), want)
	}
	log.Infof("concurrent: %d handshake collection(s)", a.Handshake().Cycle())
	return nil
}

func pushCells(m *arena.Mutator, root gc.Handle, n int) error {
	for i := 0; i < n; i++ {
		head, err := m.Load(root, 0)
		if err != nil {
			return err
		}
		cell, err := m.Allocate("Cons", 1, true, head)
		if err != nil {
			return err
		}
		if err := m.Store(root, 0, cell); err != nil {
			return err
		}
		m.Reset()
		if i%32 == 31 {
			m.RequestCollection()
		}
	}
	return nil
}
