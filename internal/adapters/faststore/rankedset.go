package faststore

import (
	"math/rand"
	"sync"

	"github.com/okian/pulse/internal/domain/types"
)

// Treap-backed ranked set, one per category.
//
// Ordering: score DESC, then item id ASC (deterministic). The BST
// comparator treats "less" as "ranks earlier", so in-order traversal
// yields the trending list from best to worst.

type node struct {
	id    string
	score float64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aID) ranks earlier than (bScore, bID).
func less(aScore float64, aID string, bScore float64, bID string) bool {
	if aScore != bScore {
		return aScore > bScore // higher score ranks earlier
	}
	return aID < bID // tie-breaker by id asc
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score float64, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio, size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score float64) *node {
	if n == nil {
		return nil
	}
	if score == n.score && id == n.id {
		// Rotate the higher-priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	} else if less(score, id, n.score, n.id) {
		n.left = deleteNode(n.left, id, score)
	} else {
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// collectTop appends up to limit entries in rank order.
func collectTop(n *node, limit int, out *[]types.ScoredItem) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTop(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, types.ScoredItem{ItemID: n.id, Score: n.score})
	}
	if len(*out) < limit {
		collectTop(n.right, limit, out)
	}
}

// collectAll appends every entry in rank order.
func collectAll(n *node, out *[]types.ScoredItem) {
	if n == nil {
		return
	}
	collectAll(n.left, out)
	*out = append(*out, types.ScoredItem{ItemID: n.id, Score: n.score})
	collectAll(n.right, out)
}

// rankedSet is a single category's score-sorted set.
type rankedSet struct {
	mu   sync.RWMutex
	root *node
	byID map[string]float64
	rng  *rand.Rand
}

func newRankedSet() *rankedSet {
	return &rankedSet{
		byID: make(map[string]float64),
		rng:  rand.New(rand.NewSource(rand.Int63())), //nolint:gosec // treap priorities, not security
	}
}

// upsert inserts or replaces the item's score.
func (r *rankedSet) upsert(id string, score float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[id]; ok {
		r.root = deleteNode(r.root, id, old)
	}
	r.byID[id] = score
	r.root = insert(r.root, id, score, r.rng.Uint64())
}

// remove deletes the item if present.
func (r *rankedSet) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	r.root = deleteNode(r.root, id, old)
}

// top returns up to n entries in rank order.
func (r *rankedSet) top(n int) []types.ScoredItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ScoredItem, 0, n)
	collectTop(r.root, n, &out)
	return out
}

// trim drops everything ranked beyond keep.
func (r *rankedSet) trim(keep int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if nsize(r.root) <= keep {
		return
	}
	all := make([]types.ScoredItem, 0, nsize(r.root))
	collectAll(r.root, &all)
	for _, e := range all[keep:] {
		delete(r.byID, e.ItemID)
		r.root = deleteNode(r.root, e.ItemID, e.Score)
	}
}

// size returns the number of items in the set.
func (r *rankedSet) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
