package tree

import "hubd/component"

// presenceWords is the number of uint32 words needed to cover every
// component type, including the Absent sentinel slot.
const presenceWords = (component.MaxComponentTypes + 1 + 31) / 32

// Presence is a device-level bitmap: the union of every component type
// ever put on any of its entities. It is monotone — see the design note in
// §9 — and is never cleared, since components are additive-only.
type Presence struct {
	words [presenceWords]uint32
}

// Set marks t as present.
func (p *Presence) Set(t component.Type) {
	p.words[t/32] |= 1 << (t % 32)
}

// Has reports whether t has ever been put on any entity of the device.
func (p Presence) Has(t component.Type) bool {
	return p.words[t/32]&(1<<(t%32)) != 0
}
