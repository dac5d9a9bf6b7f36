package codec

import (
	"strconv"
	"strings"
)

// unknownMultiTime marks a multi-blind attempt whose time was not recorded.
const unknownMultiTime = 99999

// MultiBlindResult is a decoded multi-blind attempt.
type MultiBlindResult struct {
	Solved    int
	Attempted int
	// Seconds is -1 when the time is unknown.
	Seconds int64
}

// Missed is the number of cubes attempted but not solved.
func (m MultiBlindResult) Missed() int { return m.Attempted - m.Solved }

func (m MultiBlindResult) String() string {
	var b strings.Builder
	if m.Seconds >= 0 {
		b.WriteString(formatSeconds(m.Seconds))
		b.WriteString("; ")
	}
	b.WriteString(strconv.Itoa(m.Solved))
	b.WriteString(" solved, ")
	if missed := m.Missed(); missed > 0 {
		b.WriteString(strconv.Itoa(missed))
		b.WriteString(" missed, ")
	}
	b.WriteString(strconv.Itoa(m.Attempted))
	b.WriteString(" total")
	return b.String()
}

// DecodeMultiBlind unpacks either historical layout.
//
//	new (9 digits):  DDTTTTTMM   difference = 99-DD, solved = difference+missed
//	old (10 digits): 1SSAATTTTT  solved = 99-SS, attempted = AA
//
// Anything else is a FormatError.
func DecodeMultiBlind(raw int64) (MultiBlindResult, error) {
	digits := strconv.FormatInt(raw, 10)

	var res MultiBlindResult
	var secs int64
	switch {
	case len(digits) == 9:
		dd := atoi(digits[0:2])
		secs = int64(atoi(digits[2:7]))
		missed := atoi(digits[7:9])
		res.Solved = 99 - dd + missed
		res.Attempted = res.Solved + missed
	case len(digits) == 10 && digits[0] == '1':
		ss := atoi(digits[1:3])
		aa := atoi(digits[3:5])
		secs = int64(atoi(digits[5:10]))
		res.Solved = 99 - ss
		res.Attempted = aa
		if res.Attempted < res.Solved {
			return MultiBlindResult{}, formatErr(raw, MultiBlind, "old layout solves more cubes than attempted")
		}
	default:
		return MultiBlindResult{}, formatErr(raw, MultiBlind, "digit count matches neither layout")
	}

	res.Seconds = secs
	if secs == unknownMultiTime {
		res.Seconds = -1
	}
	return res, nil
}

// atoi parses a digit-only substring produced by FormatInt.
func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
