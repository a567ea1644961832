package crawler

// entry is a URL waiting to be visited.
type entry struct {
	// url is the canonical URL, except for a seed that is canonicalized
	// when dequeued.
	url string

	// depth is the number of links followed from the seed.
	depth int

	// parent is the canonical URL of the page that linked here, empty for
	// the seed.
	parent string
}

// frontier is a FIFO queue that remembers every URL ever pushed.
// Pushing in breadth-first order keeps it sorted by depth.
type frontier struct {
	items  []entry
	head   int
	queued map[string]struct{}
}

func newFrontier() *frontier {
	return &frontier{queued: make(map[string]struct{})}
}

// push appends e unless its URL was pushed before. It reports whether e was
// added.
func (f *frontier) push(e entry) bool {
	if _, ok := f.queued[e.url]; ok {
		return false
	}
	f.queued[e.url] = struct{}{}
	f.items = append(f.items, e)
	return true
}

// pop removes and returns the oldest entry.
func (f *frontier) pop() (entry, bool) {
	if f.head >= len(f.items) {
		return entry{}, false
	}
	e := f.items[f.head]
	f.items[f.head] = entry{}
	f.head++

	// Reclaim the consumed prefix once it dominates the slice.
	if f.head > 1024 && f.head*2 > len(f.items) {
		f.items = append([]entry(nil), f.items[f.head:]...)
		f.head = 0
	}
	return e, true
}

// wasQueued reports whether url was ever pushed.
func (f *frontier) wasQueued(url string) bool {
	_, ok := f.queued[url]
	return ok
}

// len returns the number of pending entries.
func (f *frontier) len() int {
	return len(f.items) - f.head
}
