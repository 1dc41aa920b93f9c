package localstore

// Op names the kind of mutation carried by a ChangeEvent.
type Op string

const (
	OpPut    Op = "put"
	OpUpdate Op = "update"
	OpSynced Op = "synced"
	OpDelete Op = "delete"
	OpClear  Op = "clear"
	OpNotify Op = "notify"
)

// ChangeEvent tells observers the store changed. LocalID is zero for
// store-wide events.
type ChangeEvent struct {
	Op      Op
	LocalID int64
}

// Subscribe registers an observer of store mutations. Delivery coalesces:
// a slow observer sees at least one event after the latest change, not every
// change. The returned func cancels the subscription.
func (s *Store) Subscribe() (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, 1)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Notify publishes a store-wide change event, for callers that finished a
// batch of mutations and want observers to refresh once.
func (s *Store) Notify() {
	s.publish(ChangeEvent{Op: OpNotify})
}

func (s *Store) publish(ev ChangeEvent) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
