package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"reminder-bot/internal/domain"
)

// Slot is a wall-clock time of day (hour:minute) in the server's fixed offset.
type Slot struct {
	Hour   int
	Minute int
}

// OfferedSlots is the closed set of reminder times users can pick, in menu order.
var OfferedSlots = []Slot{
	{Hour: 19}, {Hour: 20},
	{Hour: 18}, {Hour: 17},
	{Hour: 16}, {Hour: 15},
}

// DefaultSlot is assigned on first contact.
var DefaultSlot = Slot{Hour: 19}

// ParseSlot accepts "HH:MM" and tolerates a trailing label such as "19:00 (22:00 yours)".
func ParseSlot(s string) (Slot, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return Slot{}, fmt.Errorf("%w: empty time", domain.ErrInvalidArgument)
	}
	parts := strings.Split(fields[0], ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return Slot{}, fmt.Errorf("%w: expected HH:MM, got %q", domain.ErrInvalidArgument, fields[0])
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Slot{}, fmt.Errorf("%w: invalid hour %q", domain.ErrInvalidArgument, parts[0])
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Slot{}, fmt.Errorf("%w: invalid minute %q", domain.ErrInvalidArgument, parts[1])
	}
	return Slot{Hour: h, Minute: m}, nil
}

// ParseOfferedSlot is ParseSlot restricted to OfferedSlots.
func ParseOfferedSlot(s string) (Slot, error) {
	slot, err := ParseSlot(s)
	if err != nil {
		return Slot{}, err
	}
	if !slot.IsOffered() {
		return Slot{}, fmt.Errorf("%w: %s", domain.ErrInvalidSlot, slot)
	}
	return slot, nil
}

func (s Slot) String() string { return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute) }

func (s Slot) IsOffered() bool {
	for _, o := range OfferedSlots {
		if o == s {
			return true
		}
	}
	return false
}

func (s Slot) minutes() int { return s.Hour*60 + s.Minute }

// UserTime shifts the slot by a fixed display offset, wrapping around midnight.
func (s Slot) UserTime(offset time.Duration) Slot {
	const day = 24 * 60
	m := (s.minutes() + int(offset/time.Minute)) % day
	if m < 0 {
		m += day
	}
	return Slot{Hour: m / 60, Minute: m % 60}
}

// Label renders the slot for a keyboard button, e.g. format "%s (%s yours)".
func (s Slot) Label(offset time.Duration, format string) string {
	return fmt.Sprintf(format, s.String(), s.UserTime(offset).String())
}

func (s Slot) schedule() cron.Schedule {
	sched, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", s.Minute, s.Hour))
	if err != nil {
		// Hour and minute are range-checked by ParseSlot; an invalid literal is a programming error.
		panic(fmt.Sprintf("slot %s: %v", s, err))
	}
	return sched
}

// Next returns the first fire instant strictly after now in loc: today at the slot when
// that is still ahead, tomorrow otherwise.
func (s Slot) Next(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return s.schedule().Next(now.In(loc))
}

// After returns the fire instant one calendar day after fired.
func (s Slot) After(fired time.Time, loc *time.Location) time.Time {
	return s.Next(fired, loc)
}
