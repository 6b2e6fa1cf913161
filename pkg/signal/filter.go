package signal

// ReferenceFilter is a fixed-size rolling average of setpoint contributions.
// Each slot holds an already scaled contribution (sample / N), so the running
// sum is the averaged setpoint.
type ReferenceFilter struct {
	slots    []float32
	pos      int
	setpoint float32
}

// NewReferenceFilter creates a filter with size slots. size must be positive.
func NewReferenceFilter(size int) *ReferenceFilter {
	if size <= 0 {
		panic("signal: reference filter size must be positive")
	}
	return &ReferenceFilter{
		slots: make([]float32, size),
	}
}

// Size returns the number of slots.
func (f *ReferenceFilter) Size() int {
	return len(f.slots)
}

// Setpoint returns the running sum of all slots.
func (f *ReferenceFilter) Setpoint() float32 {
	return f.setpoint
}

// Slots returns a copy of the slot contributions.
func (f *ReferenceFilter) Slots() []float32 {
	result := make([]float32, len(f.slots))
	copy(result, f.slots)
	return result
}

// Push replaces the oldest contribution and returns the new setpoint. The
// running sum is recomputed from the slots once per lap so float32 rounding
// cannot accumulate.
func (f *ReferenceFilter) Push(contribution float32) float32 {
	f.setpoint -= f.slots[f.pos]
	f.slots[f.pos] = contribution
	f.setpoint += contribution
	f.pos = (f.pos + 1) % len(f.slots)
	if f.pos == 0 {
		f.setpoint = f.sum()
	}
	return f.setpoint
}

func (f *ReferenceFilter) sum() float32 {
	var total float32
	for _, v := range f.slots {
		total += v
	}
	return total
}

// ApplyCeiling clamps the setpoint to vin when it exceeds ratio*vin. Every
// slot is re-seeded to vin/N so the running sum equals the clamped value.
func (f *ReferenceFilter) ApplyCeiling(vin, ratio float32) bool {
	if f.setpoint <= ratio*vin {
		return false
	}
	share := vin / float32(len(f.slots))
	for i := range f.slots {
		f.slots[i] = share
	}
	f.setpoint = vin
	return true
}

// Reset zeroes every slot.
func (f *ReferenceFilter) Reset() {
	for i := range f.slots {
		f.slots[i] = 0
	}
	f.pos = 0
	f.setpoint = 0
}
