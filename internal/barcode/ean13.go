package barcode

import (
	"errors"
	"fmt"
	"strings"
)

// PayloadLength is the number of digits accepted by Encode (check digit excluded)
const PayloadLength = 12

// ModuleCount is the total width of an EAN-13 symbol in modules, guards included
const ModuleCount = 95

// ErrInvalidPayloadLength is returned when the payload is not exactly 12 decimal digits
var ErrInvalidPayloadLength = errors.New("invalid payload length")

// Module is a run of identical modules: a bar or a space of Width units
type Module struct {
	Bar   bool
	Width int
}

// Symbol is an encoded EAN-13 barcode
type Symbol struct {
	// Digits holds the full 13-digit code including the check digit
	Digits  string
	Modules []Module
}

const (
	startGuard  = "101"
	centerGuard = "01010"
	endGuard    = "101"
)

// Left-hand odd parity (L) codes
var codesL = [10]string{
	"0001101", "0011001", "0010011", "0111101", "0100011",
	"0110001", "0101111", "0111011", "0110111", "0001011",
}

// Left-hand even parity (G) codes, the R codes reversed
var codesG = [10]string{
	"0100111", "0110011", "0011011", "0100001", "0011101",
	"0111001", "0000101", "0010001", "0001001", "0010111",
}

// Right-hand codes, the L codes complemented
var codesR = [10]string{
	"1110010", "1100110", "1101100", "1000010", "1011100",
	"1001110", "1010000", "1000100", "1001000", "1110100",
}

// parity by leading digit, 'L' = odd, 'G' = even
var parity = [10]string{
	"LLLLLL", "LLGLGG", "LLGGLG", "LLGGGL", "LGLLGG",
	"LGGLLG", "LGGGLL", "LGLGLG", "LGLGGL", "LGGLGL",
}

// CheckDigit computes the EAN-13 check digit for a 12-digit payload
func CheckDigit(payload string) (int, error) {
	if !validPayload(payload) {
		return 0, fmt.Errorf("%w: want %d digits, got %q", ErrInvalidPayloadLength, PayloadLength, payload)
	}
	sum := 0
	for i := 0; i < PayloadLength; i++ {
		d := int(payload[i] - '0')
		if i%2 == 0 {
			sum += d
		} else {
			sum += 3 * d
		}
	}
	return (10 - sum%10) % 10, nil
}

// Encode encodes a 12-digit payload as an EAN-13 symbol
func Encode(payload string) (Symbol, error) {
	check, err := CheckDigit(payload)
	if err != nil {
		return Symbol{}, err
	}
	digits := payload + string(rune('0'+check))

	pattern, err := Pattern(digits)
	if err != nil {
		return Symbol{}, err
	}

	return Symbol{
		Digits:  digits,
		Modules: runs(pattern),
	}, nil
}

// Pattern returns the 95-module bar pattern for a 13-digit code as a string of '1' (bar) and '0' (space)
func Pattern(digits string) (string, error) {
	if len(digits) != PayloadLength+1 || !allDigits(digits) {
		return "", fmt.Errorf("%w: want %d digits, got %q", ErrInvalidPayloadLength, PayloadLength+1, digits)
	}

	first := digits[0] - '0'
	var b strings.Builder
	b.Grow(ModuleCount)

	b.WriteString(startGuard)
	for i := 1; i <= 6; i++ {
		d := digits[i] - '0'
		if parity[first][i-1] == 'L' {
			b.WriteString(codesL[d])
		} else {
			b.WriteString(codesG[d])
		}
	}
	b.WriteString(centerGuard)
	for i := 7; i <= 12; i++ {
		b.WriteString(codesR[digits[i]-'0'])
	}
	b.WriteString(endGuard)

	return b.String(), nil
}

// Width returns the total symbol width in modules
func (s Symbol) Width() int {
	w := 0
	for _, m := range s.Modules {
		w += m.Width
	}
	return w
}

// String renders the symbol back into its '1'/'0' module pattern
func (s Symbol) String() string {
	var b strings.Builder
	b.Grow(s.Width())
	for _, m := range s.Modules {
		c := "0"
		if m.Bar {
			c = "1"
		}
		b.WriteString(strings.Repeat(c, m.Width))
	}
	return b.String()
}

// runs collapses a module pattern into bar/space runs
func runs(pattern string) []Module {
	out := make([]Module, 0, 60)
	for i := 0; i < len(pattern); {
		j := i
		for j < len(pattern) && pattern[j] == pattern[i] {
			j++
		}
		out = append(out, Module{Bar: pattern[i] == '1', Width: j - i})
		i = j
	}
	return out
}

func validPayload(s string) bool {
	return len(s) == PayloadLength && allDigits(s)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
