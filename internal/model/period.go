package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LendPeriod is a span of calendar time, e.g. "14 days" or "1 month".
//
// It is not a time.Duration: adding one month to 31 January lands on
// 3 March (time.AddDate normalisation), and adding a day across a DST change
// keeps the wall-clock hour.
type LendPeriod struct {
	Years  int
	Months int
	Days   int
}

// maxPeriodComponent bounds each of years, months and days (weeks are
// counted as days) so AddTo stays far inside the range of time.Time.
const maxPeriodComponent = 9999

// DefaultLendPeriod is used for items created without an explicit period.
var DefaultLendPeriod = Days(14)

// Days returns a period of n days.
func Days(n int) LendPeriod {
	return LendPeriod{Days: n}
}

// AddTo returns t moved forward by the period.
func (p LendPeriod) AddTo(t time.Time) time.Time {
	return t.AddDate(p.Years, p.Months, p.Days)
}

func (p LendPeriod) IsZero() bool {
	return p == LendPeriod{}
}

// Positive reports whether the period moves time forward: no component is
// negative and at least one is non-zero.
func (p LendPeriod) Positive() bool {
	return p.Years >= 0 && p.Months >= 0 && p.Days >= 0 && !p.IsZero()
}

// String renders the ISO-8601 period form, e.g. "P14D" or "P1Y2M".
// The zero period is "P0D".
func (p LendPeriod) String() string {
	if p.IsZero() {
		return "P0D"
	}
	var b strings.Builder
	b.WriteByte('P')
	if p.Years != 0 {
		b.WriteString(strconv.Itoa(p.Years))
		b.WriteByte('Y')
	}
	if p.Months != 0 {
		b.WriteString(strconv.Itoa(p.Months))
		b.WriteByte('M')
	}
	if p.Days != 0 {
		b.WriteString(strconv.Itoa(p.Days))
		b.WriteByte('D')
	}
	return b.String()
}

// ParseLendPeriod parses the date part of an ISO-8601 period:
// PnYnMnWnD, each component optional but at least one present, components
// in that order. Weeks are folded into days. Time components (PT...) are
// rejected because a lend period is calendar-based. A component, or the
// folded day count, beyond maxPeriodComponent in magnitude is rejected.
func ParseLendPeriod(s string) (LendPeriod, error) {
	var p LendPeriod

	rest := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(rest, "P") || len(rest) < 3 {
		return p, fmt.Errorf("model: invalid lend period %q", s)
	}
	rest = rest[1:]

	order := "YMWD"
	seen := -1
	for rest != "" {
		i := 0
		if rest[0] == '-' || rest[0] == '+' {
			i++
		}
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i == len(rest) {
			return LendPeriod{}, fmt.Errorf("model: invalid lend period %q", s)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return LendPeriod{}, fmt.Errorf("model: invalid lend period %q: %w", s, err)
		}
		if n > maxPeriodComponent || n < -maxPeriodComponent {
			return LendPeriod{}, fmt.Errorf("model: lend period %q out of range", s)
		}

		unit := rest[i]
		pos := strings.IndexByte(order, unit)
		if pos < 0 || pos <= seen {
			return LendPeriod{}, fmt.Errorf("model: invalid lend period %q: unexpected %q", s, unit)
		}
		seen = pos

		switch unit {
		case 'Y':
			p.Years = n
		case 'M':
			p.Months = n
		case 'W':
			p.Days += n * 7
		case 'D':
			p.Days += n
		}
		rest = rest[i+1:]
	}
	if p.Days > maxPeriodComponent || p.Days < -maxPeriodComponent {
		return LendPeriod{}, fmt.Errorf("model: lend period %q out of range", s)
	}

	return p, nil
}

func (p LendPeriod) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *LendPeriod) UnmarshalText(text []byte) error {
	parsed, err := ParseLendPeriod(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
