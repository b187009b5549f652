package refsim

import "fmt"

// Mismatch describes one lane whose compiled-and-scheduled result disagreed
// with the reference simulator's. Per SPEC_FULL.md section 7,
// CorrectnessMismatch is not a core error type: it is a finding returned by
// Compare, used by `vkc validate` and by tests, never raised as a Go error
// from internal/emitter or internal/scheduler.
type Mismatch struct {
	Lane     int
	Expected uint64
	Got      uint64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("lane %d: expected %#x, got %#x", m.Lane, m.Expected, m.Got)
}

// Compare reports every lane where got's final accumulator disagrees with
// want's, in lane order. A nil/empty result means the two runs agree on
// every lane.
func Compare(want, got Inputs) []Mismatch {
	var mismatches []Mismatch
	for lane := range want.Acc {
		if want.Acc[lane] != got.Acc[lane] {
			mismatches = append(mismatches, Mismatch{
				Lane:     lane,
				Expected: want.Acc[lane],
				Got:      got.Acc[lane],
			})
		}
	}
	return mismatches
}
