package bcache

// Buckets are circular doubly-linked lists threaded through an arena of
// links. Index i < nbuf is the link of buffer i; index nbuf+k is the sentinel
// of bucket k.
type link struct {
	next uint64
	prev uint64
}

type arena struct {
	nbuf  uint64
	links []link
}

func mkArena(nbuf uint64, nbucket uint64) arena {
	a := arena{
		nbuf:  nbuf,
		links: make([]link, nbuf+nbucket),
	}
	for k := uint64(0); k < nbucket; k++ {
		h := a.head(k)
		a.links[h] = link{next: h, prev: h}
	}
	return a
}

func (a *arena) head(bucket uint64) uint64 {
	return a.nbuf + bucket
}

// pushFront links buffer i right after the sentinel h.
func (a *arena) pushFront(h uint64, i uint64) {
	first := a.links[h].next
	a.links[i] = link{next: first, prev: h}
	a.links[first].prev = i
	a.links[h].next = i
}

func (a *arena) unlink(i uint64) {
	l := a.links[i]
	a.links[l.prev].next = l.next
	a.links[l.next].prev = l.prev
	a.links[i] = link{next: i, prev: i}
}

// each calls f on every buffer in the list headed by h, stopping early if
// f returns false.
func (a *arena) each(h uint64, f func(i uint64) bool) {
	for i := a.links[h].next; i != h; {
		next := a.links[i].next
		if !f(i) {
			return
		}
		i = next
	}
}

func (a *arena) len(h uint64) uint64 {
	var n uint64
	a.each(h, func(uint64) bool {
		n++
		return true
	})
	return n
}
