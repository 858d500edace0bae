package value

import "fmt"

// Address is a usize offset relative to the current call frame's top (spec
// §3.4).
type Address uint32

// Output is either an Address (store the instruction's result there) or
// Discard. Every instruction that produces a value targets an Output, so
// the VM can skip the store entirely when the result is unused (spec §4.7).
type Output struct {
	addr    Address
	discard bool
}

// DiscardOutput is the canonical discarding Output.
var DiscardOutput = Output{discard: true}

func OutputTo(addr Address) Output { return Output{addr: addr} }

func (o Output) IsDiscard() bool { return o.discard }

func (o Output) Address() (Address, bool) {
	if o.discard {
		return 0, false
	}
	return o.addr, true
}

func (o Output) String() string {
	if o.discard {
		return "discard"
	}
	return fmt.Sprintf("$%d", o.addr)
}

// Stack is the single growable array of Values backing every VM call
// frame. Frames record their own top; addresses are always relative to the
// frame that is currently executing (spec §3.4, §4.9).
type Stack struct {
	values []Value
	top    Address
}

func NewStack() *Stack {
	return &Stack{}
}

// Top returns the current frame's base offset into the stack.
func (s *Stack) Top() Address { return s.top }

// SetTop moves the frame base, used when entering/leaving a call frame.
func (s *Stack) SetTop(top Address) { s.top = top }

// Len returns the number of values above the current frame's top.
func (s *Stack) Len() int {
	return len(s.values) - int(s.top)
}

// Push appends a value above the current top and returns its Address.
func (s *Stack) Push(v Value) Address {
	s.values = append(s.values, v)
	return Address(len(s.values)-1) - s.top
}

// At returns the value at a frame-relative address.
func (s *Stack) At(addr Address) (Value, error) {
	i := int(s.top) + int(addr)
	if i < 0 || i >= len(s.values) {
		return Value{}, fmt.Errorf("stack index out of bounds: %d (frame len %d)", addr, s.Len())
	}
	return s.values[i], nil
}

// Set stores a value at a frame-relative address, growing the frame if the
// address lies exactly at its current end (used to fill a reserved local
// slot the first time it's written).
func (s *Stack) Set(addr Address, v Value) error {
	i := int(s.top) + int(addr)
	switch {
	case i < int(s.top):
		return fmt.Errorf("stack index out of bounds: %d", addr)
	case i < len(s.values):
		s.values[i] = v
		return nil
	case i == len(s.values):
		s.values = append(s.values, v)
		return nil
	default:
		return fmt.Errorf("stack index out of bounds: %d (frame len %d)", addr, s.Len())
	}
}

// StoreOutput writes v to an Output, a no-op when the Output discards.
func (s *Stack) StoreOutput(out Output, v Value) error {
	addr, ok := out.Address()
	if !ok {
		return nil
	}
	return s.Set(addr, v)
}

// PopN discards the top n values of the current frame without preserving
// any of them (spec §4.5 "PopN").
func (s *Stack) PopN(n int) error {
	if n > s.Len() {
		return fmt.Errorf("pop count %d exceeds frame length %d", n, s.Len())
	}
	s.values = s.values[:len(s.values)-n]
	return nil
}

// Clean pops count values below the top of the frame while preserving the
// topmost value, shifting it down by count slots (spec §4.5 "Clean").
func (s *Stack) Clean(count int) error {
	if s.Len() == 0 {
		return s.PopN(count)
	}
	topIdx := len(s.values) - 1
	topVal := s.values[topIdx]
	if err := s.PopN(count + 1); err != nil {
		return err
	}
	s.values = append(s.values, topVal)
	return nil
}

// PushFrame records the caller's top, pushes args as the new frame's first
// slots, and returns the caller's top for the matching PopFrame/SwapTop
// (spec §4.9 call-frame allocation).
func (s *Stack) PushFrame(args []Value) Address {
	callerTop := s.top
	newTop := Address(len(s.values))
	s.values = append(s.values, args...)
	s.top = newTop
	return callerTop
}

// PopFrame discards the current frame entirely and restores the caller's
// top (spec §4.9 "pop_stack_top").
func (s *Stack) PopFrame(callerTop Address) {
	s.values = s.values[:s.top]
	s.top = callerTop
}

// SwapTop moves `length` return values from the callee's frame to dst
// (frame-relative to the caller, once restored) and restores the caller's
// top (spec §4.9 "swap_top").
func (s *Stack) SwapTop(callerTop Address, dst Output, length int) error {
	results := make([]Value, length)
	if length > 0 {
		copy(results, s.values[len(s.values)-length:])
	}
	s.values = s.values[:s.top]
	s.top = callerTop
	if length == 0 {
		return nil
	}
	return s.StoreOutput(dst, results[0])
}
