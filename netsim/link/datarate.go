// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DataRate is a data rate in bits per second.
type DataRate uint64

// Common data rates.
const (
	BitPerSecond  DataRate = 1
	KbitPerSecond          = 1000 * BitPerSecond
	MbitPerSecond          = 1000 * KbitPerSecond
	GbitPerSecond          = 1000 * MbitPerSecond
)

// dataRateUnits maps unit suffixes to multipliers. Longer suffixes
// come first so that "kbps" is not matched by "bps".
var dataRateUnits = []struct {
	suffix string
	value  DataRate
}{
	{"Gbps", GbitPerSecond},
	{"Gb/s", GbitPerSecond},
	{"GB/s", 8 * GbitPerSecond},
	{"Mbps", MbitPerSecond},
	{"Mb/s", MbitPerSecond},
	{"MB/s", 8 * MbitPerSecond},
	{"kbps", KbitPerSecond},
	{"Kbps", KbitPerSecond},
	{"kb/s", KbitPerSecond},
	{"kB/s", 8 * KbitPerSecond},
	{"bps", BitPerSecond},
	{"b/s", BitPerSecond},
	{"B/s", 8 * BitPerSecond},
}

// ErrInvalidDataRate is returned by [ParseDataRate] for invalid rates.
var ErrInvalidDataRate = errors.New("invalid data rate")

// ParseDataRate parses data rates such as "1000Mbps", "1Gb/s", "10MB/s".
// A number without unit is interpreted as bits per second.
func ParseDataRate(value string) (DataRate, error) {
	value = strings.TrimSpace(value)
	number, multiplier := value, BitPerSecond
	for _, unit := range dataRateUnits {
		if strings.HasSuffix(value, unit.suffix) {
			number, multiplier = strings.TrimSuffix(value, unit.suffix), unit.value
			break
		}
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(number), 64)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDataRate, value)
	}
	rate := DataRate(parsed * float64(multiplier))
	if rate <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDataRate, value)
	}
	return rate, nil
}

// String returns the string representation of the rate.
func (r DataRate) String() string {
	switch {
	case r >= GbitPerSecond && r%GbitPerSecond == 0:
		return fmt.Sprintf("%dGbps", r/GbitPerSecond)
	case r >= MbitPerSecond && r%MbitPerSecond == 0:
		return fmt.Sprintf("%dMbps", r/MbitPerSecond)
	case r >= KbitPerSecond && r%KbitPerSecond == 0:
		return fmt.Sprintf("%dkbps", r/KbitPerSecond)
	default:
		return fmt.Sprintf("%dbps", uint64(r))
	}
}

// TxTime returns the time to serialize size bytes at this rate.
func (r DataRate) TxTime(size int) time.Duration {
	if r <= 0 {
		return 0
	}
	bits := uint64(size) * 8
	return time.Duration(bits * uint64(time.Second) / uint64(r))
}
