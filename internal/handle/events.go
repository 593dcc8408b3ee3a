package handle

import "context"

// EventType enumerates index change events.
type EventType int

const (
	EventDocumentIndexed EventType = iota
	EventDocumentDeleted
	EventPathRenamed
	EventMarkerAdded
	EventMarkerRemoved
)

func (t EventType) String() string {
	switch t {
	case EventDocumentIndexed:
		return "indexed"
	case EventDocumentDeleted:
		return "deleted"
	case EventPathRenamed:
		return "renamed"
	case EventMarkerAdded:
		return "marker-added"
	case EventMarkerRemoved:
		return "marker-removed"
	}
	return "unknown"
}

// Event describes one index mutation. OldPath is set for renames only.
type Event struct {
	Type    EventType
	Path    string
	OldPath string
}

// Subscribe returns a channel of index change events. The channel closes
// when ctx is cancelled. A slow subscriber drops events rather than block
// the indexing path.
func (x *Index) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 64)
	x.mu.Lock()
	x.subs = append(x.subs, ch)
	x.mu.Unlock()

	go func() {
		<-ctx.Done()
		x.mu.Lock()
		for i, s := range x.subs {
			if s == ch {
				x.subs = append(x.subs[:i], x.subs[i+1:]...)
				break
			}
		}
		x.mu.Unlock()
		close(ch)
	}()
	return ch
}

func (x *Index) emit(ev Event) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, ch := range x.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
