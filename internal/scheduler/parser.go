package scheduler

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// MinInterval is the shortest accepted "every" interval.
const MinInterval = time.Minute

// Expr computes run times for a parsed schedule expression.
type Expr interface {
	// Next returns the first run time strictly after from.
	Next(from time.Time) time.Time
	String() string
}

// Every runs at a fixed interval after the previous run.
type Every struct {
	Interval time.Duration
}

func (e Every) Next(from time.Time) time.Time { return from.Add(e.Interval) }
func (e Every) String() string                { return "every " + FormatDuration(e.Interval) }

// Daily runs once a day at a wall-clock time in from's location.
type Daily struct {
	Hour, Minute int
}

func (d Daily) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), d.Hour, d.Minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (d Daily) String() string { return fmt.Sprintf("daily at %02d:%02d", d.Hour, d.Minute) }

var intervalUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseExpression parses "every <n><unit>", "daily at HH:MM" or a five-field
// cron expression.
func ParseExpression(expr string) (Expr, error) {
	fields := strings.Fields(strings.ToLower(expr))
	switch {
	case len(fields) == 0:
		return nil, fmt.Errorf("empty schedule expression")
	case fields[0] == "every":
		return parseEvery(strings.Join(fields[1:], ""))
	case fields[0] == "daily":
		if len(fields) != 3 || fields[1] != "at" {
			return nil, fmt.Errorf("expected \"daily at HH:MM\", got %q", expr)
		}
		return parseDaily(fields[2])
	case len(fields) == 5:
		c, err := parseCron(fields)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unrecognized schedule expression: %s", expr)
}

// NextRunTime parses expr and returns its first run after from.
func NextRunTime(expr string, from time.Time) (time.Time, error) {
	e, err := ParseExpression(expr)
	if err != nil {
		return time.Time{}, err
	}
	return e.Next(from), nil
}

func parseEvery(s string) (Expr, error) {
	i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if i <= 0 {
		return nil, fmt.Errorf("invalid interval %q", s)
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return nil, fmt.Errorf("invalid interval %q", s)
	}
	unit, ok := intervalUnits[s[i:]]
	if !ok {
		return nil, fmt.Errorf("unknown interval unit %q", s[i:])
	}
	d := time.Duration(n) * unit
	if d < MinInterval {
		return nil, fmt.Errorf("minimum interval is %s", FormatDuration(MinInterval))
	}
	return Every{Interval: d}, nil
}

func parseDaily(hhmm string) (Expr, error) {
	h, m, ok := strings.Cut(hhmm, ":")
	if !ok || len(m) != 2 {
		return nil, fmt.Errorf("invalid time %q", hhmm)
	}
	hour, err1 := strconv.Atoi(h)
	minute, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid time %q", hhmm)
	}
	return Daily{Hour: hour, Minute: minute}, nil
}

// fieldSet is a bitmask of allowed values for one cron field (0..63).
type fieldSet uint64

func (f fieldSet) has(v int) bool { return f&(1<<uint(v)) != 0 }

// Values lists the set members in ascending order.
func (f fieldSet) Values() []int {
	out := make([]int, 0, bits.OnesCount64(uint64(f)))
	for v := 0; v < 64; v++ {
		if f.has(v) {
			out = append(out, v)
		}
	}
	return out
}

func span(lo, hi, step int) fieldSet {
	var f fieldSet
	for v := lo; v <= hi; v += step {
		f |= 1 << uint(v)
	}
	return f
}

// Cron is a five-field cron expression: minute hour day-of-month month
// day-of-week (Sunday = 0).
type Cron struct {
	Minute, Hour, DayOfMonth, Month, DayOfWeek fieldSet

	// A "*" day field does not widen the other one.
	anyDayOfMonth bool
	anyDayOfWeek  bool
	src           string
}

var cronBounds = [5]struct {
	name   string
	lo, hi int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

func parseCron(fields []string) (*Cron, error) {
	var sets [5]fieldSet
	for i, f := range fields {
		b := cronBounds[i]
		set, err := parseCronField(f, b.lo, b.hi)
		if err != nil {
			return nil, fmt.Errorf("%s field: %w", b.name, err)
		}
		sets[i] = set
	}
	return &Cron{
		Minute:        sets[0],
		Hour:          sets[1],
		DayOfMonth:    sets[2],
		Month:         sets[3],
		DayOfWeek:     sets[4],
		anyDayOfMonth: fields[2] == "*",
		anyDayOfWeek:  fields[4] == "*",
		src:           strings.Join(fields, " "),
	}, nil
}

// parseCronField accepts "*", "*/step", "n", "a-b", "a-b/step" and comma
// lists of those.
func parseCronField(field string, lo, hi int) (fieldSet, error) {
	var set fieldSet
	for _, part := range strings.Split(field, ",") {
		rng, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid step: %s", stepStr)
			}
			step = n
		}

		var start, end int
		switch {
		case rng == "*":
			start, end = lo, hi
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err1, err2 error
			start, err1 = strconv.Atoi(a)
			end, err2 = strconv.Atoi(b)
			if err1 != nil || err2 != nil {
				return 0, fmt.Errorf("invalid range: %s", rng)
			}
			if start < lo || end > hi || start > end {
				return 0, fmt.Errorf("range %d-%d out of bounds [%d-%d]", start, end, lo, hi)
			}
		default:
			if hasStep {
				return 0, fmt.Errorf("step needs a range: %s", part)
			}
			v, err := strconv.Atoi(rng)
			if err != nil {
				return 0, fmt.Errorf("invalid value: %s", rng)
			}
			if v < lo || v > hi {
				return 0, fmt.Errorf("value %d out of range [%d-%d]", v, lo, hi)
			}
			start, end = v, v
		}
		set |= span(start, end, step)
	}
	return set, nil
}

func (c *Cron) String() string { return c.src }

// Next searches minute by minute, skipping whole months, days and hours
// that cannot match. It gives up after a year and returns from plus one hour.
func (c *Cron) Next(from time.Time) time.Time {
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := from.AddDate(1, 0, 0)

	for t.Before(limit) {
		switch {
		case !c.Month.has(int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
		case !c.dayMatches(t):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
		case !c.Hour.has(t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
		case !c.Minute.has(t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t
		}
	}
	return from.Add(time.Hour)
}

func (c *Cron) matches(t time.Time) bool {
	return c.Minute.has(t.Minute()) &&
		c.Hour.has(t.Hour()) &&
		c.dayMatches(t) &&
		c.Month.has(int(t.Month()))
}

// dayMatches follows cron: when both day fields are restricted either may
// match, otherwise only the restricted one counts.
func (c *Cron) dayMatches(t time.Time) bool {
	dom := c.DayOfMonth.has(t.Day())
	dow := c.DayOfWeek.has(int(t.Weekday()))
	switch {
	case c.anyDayOfMonth && c.anyDayOfWeek:
		return true
	case c.anyDayOfMonth:
		return dow
	case c.anyDayOfWeek:
		return dom
	default:
		return dom || dow
	}
}

// FormatDuration renders d in its largest whole unit: 90s → "1m".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
