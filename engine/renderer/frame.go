package renderer

// tmpCommandList is a barrier-only list drawn from a frame slot. It may be
// reused once the fence has passed the value of its last submission.
type tmpCommandList struct {
	native     NativeCommandList
	fenceValue uint64
}

// frameSlot owns the transient objects of one ring position. Nothing in it
// is reused before fenceValue, recorded when the slot was last presented,
// has completed.
type frameSlot struct {
	fenceValue uint64

	presentList *CommandList

	tmpLists  []*tmpCommandList
	tmpOffset int

	// views released while the slot is current, and the ones released during
	// its previous use that wait for fenceValue
	pendingViews  []*View
	retiringViews []*View
}

func (c *Context) acquireTmpList(slot *frameSlot) (*tmpCommandList, error) {
	if slot.tmpOffset < len(slot.tmpLists) {
		t := slot.tmpLists[slot.tmpOffset]
		if err := c.waitFence(t.fenceValue); err != nil {
			return nil, err
		}
		slot.tmpOffset++
		return t, nil
	}
	native, err := c.device.CreateCommandList()
	if err != nil {
		return nil, err
	}
	t := &tmpCommandList{native: native}
	slot.tmpLists = append(slot.tmpLists, t)
	slot.tmpOffset++
	return t, nil
}

// retire destroys the views whose release was deferred to this slot's
// previous use. The caller has waited for the slot fence.
func (slot *frameSlot) retire() {
	for _, v := range slot.retiringViews {
		v.Destroy()
	}
	slot.retiringViews = slot.retiringViews[:0]
}

// advance hands the views released during this use to the next retirement.
func (slot *frameSlot) advance() {
	slot.retiringViews = append(slot.retiringViews, slot.pendingViews...)
	slot.pendingViews = slot.pendingViews[:0]
}

func (slot *frameSlot) destroy() {
	for _, v := range slot.retiringViews {
		v.Destroy()
	}
	for _, v := range slot.pendingViews {
		v.Destroy()
	}
	slot.retiringViews, slot.pendingViews = nil, nil
	for _, t := range slot.tmpLists {
		t.native.Destroy()
	}
	slot.tmpLists, slot.tmpOffset = nil, 0
	if slot.presentList != nil {
		slot.presentList.Destroy()
		slot.presentList = nil
	}
}
