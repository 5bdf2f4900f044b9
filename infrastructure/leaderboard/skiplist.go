package leaderboard

import (
	"math/rand/v2"

	"github.com/ahrav/go-scorekeeper/internal/domain"
)

const (
	maxLevel    = 32
	probability = 0.25
)

// skipList is a span-annotated skip list of leaderboard entries ordered by
// score descending, then user ID ascending. Spans make rank lookups
// O(log n). It is not safe for concurrent use.
type skipList struct {
	head   *skipNode
	level  int
	length int64
}

type skipNode struct {
	entry domain.LeaderboardEntry
	next  []skipLink
}

// skipLink points at the next node on one level. span counts the bottom-level
// nodes between the owner and forward, forward included.
type skipLink struct {
	forward *skipNode
	span    int64
}

func newSkipList() *skipList {
	return &skipList{
		head:  &skipNode{next: make([]skipLink, maxLevel)},
		level: 1,
	}
}

// before reports whether a sorts ahead of b.
func before(a, b domain.LeaderboardEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.UserID < b.UserID
}

func randomLevel() int {
	lvl := 1
	for lvl < maxLevel && rand.Float64() < probability {
		lvl++
	}
	return lvl
}

// insert adds e. The caller guarantees e is not already present.
func (l *skipList) insert(e domain.LeaderboardEntry) {
	var (
		update [maxLevel]*skipNode
		rank   [maxLevel]int64
	)

	x := l.head
	for i := l.level - 1; i >= 0; i-- {
		if i < l.level-1 {
			rank[i] = rank[i+1]
		}
		for x.next[i].forward != nil && before(x.next[i].forward.entry, e) {
			rank[i] += x.next[i].span
			x = x.next[i].forward
		}
		update[i] = x
	}

	lvl := randomLevel()
	if lvl > l.level {
		for i := l.level; i < lvl; i++ {
			rank[i] = 0
			update[i] = l.head
			update[i].next[i].span = l.length
		}
		l.level = lvl
	}

	n := &skipNode{entry: e, next: make([]skipLink, lvl)}
	for i := 0; i < lvl; i++ {
		n.next[i].forward = update[i].next[i].forward
		update[i].next[i].forward = n
		n.next[i].span = update[i].next[i].span - (rank[0] - rank[i])
		update[i].next[i].span = rank[0] - rank[i] + 1
	}
	for i := lvl; i < l.level; i++ {
		update[i].next[i].span++
	}
	l.length++
}

// remove deletes e and reports whether it was present.
func (l *skipList) remove(e domain.LeaderboardEntry) bool {
	var update [maxLevel]*skipNode

	x := l.head
	for i := l.level - 1; i >= 0; i-- {
		for x.next[i].forward != nil && before(x.next[i].forward.entry, e) {
			x = x.next[i].forward
		}
		update[i] = x
	}

	x = x.next[0].forward
	if x == nil || x.entry != e {
		return false
	}

	for i := 0; i < l.level; i++ {
		if update[i].next[i].forward == x {
			update[i].next[i].span += x.next[i].span - 1
			update[i].next[i].forward = x.next[i].forward
		} else {
			update[i].next[i].span--
		}
	}
	for l.level > 1 && l.head.next[l.level-1].forward == nil {
		l.level--
	}
	l.length--
	return true
}

// rank returns the 1-based position of e, or 0 when absent.
func (l *skipList) rank(e domain.LeaderboardEntry) int64 {
	var r int64
	x := l.head
	for i := l.level - 1; i >= 0; i-- {
		for x.next[i].forward != nil &&
			(before(x.next[i].forward.entry, e) || x.next[i].forward.entry == e) {
			r += x.next[i].span
			x = x.next[i].forward
		}
		if x != l.head && x.entry == e {
			return r
		}
	}
	return 0
}

// first returns up to k entries from the front of the list.
func (l *skipList) first(k int) []domain.LeaderboardEntry {
	if k <= 0 || l.length == 0 {
		return []domain.LeaderboardEntry{}
	}
	if int64(k) > l.length {
		k = int(l.length)
	}
	out := make([]domain.LeaderboardEntry, 0, k)
	for x := l.head.next[0].forward; x != nil && len(out) < k; x = x.next[0].forward {
		out = append(out, x.entry)
	}
	return out
}
