package profile

import "fmt"

// Output is one of the two audio destinations a button can switch between.
// Its numeric code is both the device selector value and the button state.
type Output uint8

const (
	Headphones Output = 0
	Speakers   Output = 1
)

// Outputs lists every output in code order.
var Outputs = []Output{Headphones, Speakers}

// Code returns the numeric code of the output.
func (o Output) Code() uint32 {
	return uint32(o)
}

// Toggle returns the other output.
func (o Output) Toggle() Output {
	if o == Headphones {
		return Speakers
	}
	return Headphones
}

func (o Output) String() string {
	switch o {
	case Headphones:
		return "headphones"
	case Speakers:
		return "speakers"
	default:
		return fmt.Sprintf("output(%d)", uint8(o))
	}
}

// OutputFromCode resolves a numeric code. Codes other than 0 and 1 are unrecognized.
func OutputFromCode(code int64) (Output, bool) {
	switch code {
	case 0:
		return Headphones, true
	case 1:
		return Speakers, true
	default:
		return 0, false
	}
}

// OutputFromValue resolves a device selector value. Only integer values are accepted.
func OutputFromValue(v Value) (Output, bool) {
	switch v.Kind() {
	case KindInt32:
		return OutputFromCode(int64(v.i))
	case KindUint32:
		return OutputFromCode(int64(v.u))
	default:
		return 0, false
	}
}
