package flagstore

import (
	"container/list"
)

// userIndex orders cached user hashes from most to least recently used.
// Callers serialize access.
type userIndex struct {
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

func newUserIndex(capacity int, hashes []string) *userIndex {
	idx := &userIndex{
		capacity: capacity,
		items:    make(map[string]*list.Element, len(hashes)),
		order:    list.New(),
	}
	for _, h := range hashes {
		if _, dup := idx.items[h]; dup {
			continue
		}
		idx.items[h] = idx.order.PushBack(h)
	}
	return idx
}

// touch marks hash as most recently used and returns the hashes evicted
// to stay within capacity.
func (idx *userIndex) touch(hash string) []string {
	if el, ok := idx.items[hash]; ok {
		idx.order.MoveToFront(el)
	} else {
		idx.items[hash] = idx.order.PushFront(hash)
	}

	var evicted []string
	for idx.capacity > 0 && idx.order.Len() > idx.capacity {
		oldest := idx.order.Back()
		h := oldest.Value.(string)
		idx.order.Remove(oldest)
		delete(idx.items, h)
		evicted = append(evicted, h)
	}
	return evicted
}

func (idx *userIndex) hashes() []string {
	out := make([]string, 0, idx.order.Len())
	for el := idx.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(string))
	}
	return out
}
