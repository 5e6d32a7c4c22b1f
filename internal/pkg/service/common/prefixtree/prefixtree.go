// Package prefixtree provides a generic wrapper around the github.com/armon/go-radix tree.
// The AtomicTree is safe for concurrent use, multiple operations can be grouped by the Atomic/ModifyAtomic methods.
package prefixtree

import (
	"sync"

	"github.com/armon/go-radix"
)

// AtomicTree is a thread-safe prefix tree.
type AtomicTree[T any] struct {
	lock *sync.RWMutex
	tree *Tree[T]
}

// Tree is a typed prefix tree, it is not thread-safe, see AtomicTree.
type Tree[T any] struct {
	tree *radix.Tree
}

func New[T any]() *AtomicTree[T] {
	return &AtomicTree[T]{lock: &sync.RWMutex{}, tree: &Tree[T]{tree: radix.New()}}
}

// Atomic runs read-only operations under the read lock.
func (t *AtomicTree[T]) Atomic(do func(t *Tree[T])) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	do(t.tree)
}

// ModifyAtomic runs read/write operations under the write lock.
func (t *AtomicTree[T]) ModifyAtomic(do func(t *Tree[T])) {
	t.lock.Lock()
	defer t.lock.Unlock()
	do(t.tree)
}

func (t *AtomicTree[T]) Get(key string) (v T, found bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.tree.Get(key)
}

func (t *AtomicTree[T]) Insert(key string, value T) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.tree.Insert(key, value)
}

func (t *AtomicTree[T]) Delete(key string) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.tree.Delete(key)
}

func (t *AtomicTree[T]) DeletePrefix(prefix string) int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.tree.DeletePrefix(prefix)
}

func (t *AtomicTree[T]) AllFromPrefix(prefix string) []T {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.tree.AllFromPrefix(prefix)
}

func (t *AtomicTree[T]) FirstFromPrefix(prefix string) (v T, found bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.tree.FirstFromPrefix(prefix)
}

func (t *AtomicTree[T]) LastFromPrefix(prefix string) (v T, found bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.tree.LastFromPrefix(prefix)
}

func (t *AtomicTree[T]) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.tree.Len()
}

func (t *Tree[T]) Get(key string) (v T, found bool) {
	raw, found := t.tree.Get(key)
	if !found {
		return v, false
	}
	return raw.(T), true
}

func (t *Tree[T]) Insert(key string, value T) {
	t.tree.Insert(key, value)
}

func (t *Tree[T]) Delete(key string) bool {
	_, deleted := t.tree.Delete(key)
	return deleted
}

func (t *Tree[T]) DeletePrefix(prefix string) int {
	return t.tree.DeletePrefix(prefix)
}

func (t *Tree[T]) Len() int {
	return t.tree.Len()
}

// WalkPrefix iterates keys with the prefix in lexicographic order, return true to stop the iteration.
func (t *Tree[T]) WalkPrefix(prefix string, fn func(key string, value T) (stop bool)) {
	t.tree.WalkPrefix(prefix, func(key string, raw any) bool {
		return fn(key, raw.(T))
	})
}

// WalkAll iterates all keys in lexicographic order, return true to stop the iteration.
func (t *Tree[T]) WalkAll(fn func(key string, value T) (stop bool)) {
	t.tree.Walk(func(key string, raw any) bool {
		return fn(key, raw.(T))
	})
}

func (t *Tree[T]) AllFromPrefix(prefix string) (out []T) {
	t.WalkPrefix(prefix, func(_ string, value T) bool {
		out = append(out, value)
		return false
	})
	return out
}

func (t *Tree[T]) FirstFromPrefix(prefix string) (value T, found bool) {
	t.WalkPrefix(prefix, func(_ string, v T) bool {
		value, found = v, true
		return true
	})
	return value, found
}

func (t *Tree[T]) LastFromPrefix(prefix string) (value T, found bool) {
	t.WalkPrefix(prefix, func(_ string, v T) bool {
		value, found = v, true
		return false
	})
	return value, found
}
