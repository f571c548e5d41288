package link_test

// fakePipe is a minimal in-memory BytePipe used only by this package's
// tests: Send appends straight into the peer's inbox, Read drains this
// side's own inbox. Tests drive both ends sequentially, so no locking
// beyond satisfying the BytePipe interface is needed.
type fakePipe struct {
	peer  *fakePipe
	inbox []byte
	clock *uint32
}

func newFakePipePair(clock *uint32) (*fakePipe, *fakePipe) {
	a := &fakePipe{clock: clock}
	b := &fakePipe{clock: clock}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *fakePipe) Send(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	p.peer.inbox = append(p.peer.inbox, cp...)
	return nil
}

func (p *fakePipe) Read(buf []byte) (int, error) {
	n := copy(buf, p.inbox)
	p.inbox = p.inbox[n:]
	return n, nil
}

func (p *fakePipe) Millis() uint32 { return *p.clock }
func (p *fakePipe) Lock()          {}
func (p *fakePipe) Unlock()        {}
