package flash

import "fmt"

// Fake is an in-memory Device used by tests (and by callers that want
// deterministic bad-block/write-failure injection without a real MTD
// partition).
type Fake struct {
	Geometry Geometry

	pebs [][]byte
	oob  [][]byte
	bad  map[int]bool

	// FailWrite, if set, is consulted before every WritePage call;
	// returning true causes that call to fail.
	FailWrite func(peb, pageOffset int) bool
	// FailIsBad, if set, causes IsBad(peb) to return an error instead
	// of a bad-block state.
	FailIsBad map[int]bool
}

// NewFake builds a Fake device of the given geometry, fully erased.
func NewFake(g Geometry) *Fake {
	n := g.PEBCount()
	f := &Fake{
		Geometry: g,
		pebs:     make([][]byte, n),
		oob:      make([][]byte, n),
		bad:      make(map[int]bool),
	}
	for i := range f.pebs {
		f.pebs[i] = erasedBuf(int(g.EBSize))
	}
	return f
}

func erasedBuf(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

// MarkBadForTest pre-marks peb as bad, simulating a factory-bad block.
func (f *Fake) MarkBadForTest(peb int) {
	f.bad[peb] = true
}

// PEB returns the raw current content of peb, for test assertions.
func (f *Fake) PEB(peb int) []byte {
	return f.pebs[peb]
}

// OOB returns the raw OOB bytes most recently written to any page of
// peb since its last erase, if any.
func (f *Fake) OOB(peb int) []byte {
	return f.oob[peb]
}

func (f *Fake) Info() (Geometry, error) {
	return f.Geometry, nil
}

func (f *Fake) IsBad(peb int) (bool, error) {
	if f.FailIsBad[peb] {
		return false, fmt.Errorf("flash: simulated IsBad failure on peb %d", peb)
	}
	return f.bad[peb], nil
}

func (f *Fake) Erase(peb int) error {
	if peb < 0 || peb >= len(f.pebs) {
		return fmt.Errorf("flash: erase: peb %d out of range", peb)
	}
	f.pebs[peb] = erasedBuf(int(f.Geometry.EBSize))
	f.oob[peb] = nil
	return nil
}

func (f *Fake) WritePage(peb, pageOffset int, data, oob []byte) error {
	if peb < 0 || peb >= len(f.pebs) {
		return fmt.Errorf("flash: write: peb %d out of range", peb)
	}
	if f.FailWrite != nil && f.FailWrite(peb, pageOffset) {
		return fmt.Errorf("flash: simulated write failure on peb %d page %#x", peb, pageOffset)
	}
	if data != nil {
		copy(f.pebs[peb][pageOffset:pageOffset+len(data)], data)
	}
	if oob != nil {
		f.oob[peb] = append([]byte(nil), oob...)
	}
	return nil
}

func (f *Fake) MarkBad(peb int) error {
	if peb < 0 || peb >= len(f.pebs) {
		return fmt.Errorf("flash: mark bad: peb %d out of range", peb)
	}
	f.bad[peb] = true
	return nil
}
