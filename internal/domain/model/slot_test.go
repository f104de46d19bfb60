//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"reminder-bot/internal/domain"
)

var serverZone = time.FixedZone("server", 3*60*60)

func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.May, day, hour, minute, 0, 0, serverZone)
}

func TestSlotNext(t *testing.T) {
	slot := Slot{Hour: 19}

	t.Run("should fire today when the slot is still ahead", func(t *testing.T) {
		got := slot.Next(at(5, 18, 0), serverZone)
		if want := at(5, 19, 0); !got.Equal(want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("should fire tomorrow when the slot has passed", func(t *testing.T) {
		got := slot.Next(at(5, 20, 0), serverZone)
		if want := at(6, 19, 0); !got.Equal(want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("should fire tomorrow when now is exactly the slot", func(t *testing.T) {
		got := slot.Next(at(5, 19, 0), serverZone)
		if want := at(6, 19, 0); !got.Equal(want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("should compute in the server zone regardless of the input zone", func(t *testing.T) {
		now := at(5, 18, 30).UTC()
		got := slot.Next(now, serverZone)
		if want := at(5, 19, 0); !got.Equal(want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("After should add exactly one calendar day", func(t *testing.T) {
		fired := at(31, 19, 0)
		got := slot.After(fired, serverZone)
		if want := time.Date(2025, time.June, 1, 19, 0, 0, 0, serverZone); !got.Equal(want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})
}

func TestSlotUserTime(t *testing.T) {
	cases := map[Slot]string{
		{Hour: 19}: "22:00",
		{Hour: 20}: "23:00",
		{Hour: 18}: "21:00",
		{Hour: 17}: "20:00",
		{Hour: 16}: "19:00",
		{Hour: 15}: "18:00",
	}
	for slot, want := range cases {
		if got := slot.UserTime(3 * time.Hour).String(); got != want {
			t.Errorf("slot %s: expected user time %s, got %s", slot, want, got)
		}
	}

	if got := (Slot{Hour: 22, Minute: 30}).UserTime(3 * time.Hour).String(); got != "01:30" {
		t.Errorf("expected wrap past midnight to 01:30, got %s", got)
	}
	if got := (Slot{Hour: 1}).UserTime(-2 * time.Hour).String(); got != "23:00" {
		t.Errorf("expected negative offset to wrap to 23:00, got %s", got)
	}
}

func TestParseOfferedSlot(t *testing.T) {
	t.Run("should parse a label produced for a keyboard", func(t *testing.T) {
		label := Slot{Hour: 18}.Label(3*time.Hour, "%s (%s yours)")
		if label != "18:00 (21:00 yours)" {
			t.Fatalf("unexpected label %q", label)
		}
		slot, err := ParseOfferedSlot(label)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if slot != (Slot{Hour: 18}) {
			t.Errorf("expected 18:00, got %s", slot)
		}
	})

	t.Run("should reject a valid time that is not offered", func(t *testing.T) {
		_, err := ParseOfferedSlot("07:15")
		if !errors.Is(err, domain.ErrInvalidSlot) {
			t.Errorf("expected ErrInvalidSlot, got %v", err)
		}
	})

	t.Run("should reject malformed input", func(t *testing.T) {
		for _, in := range []string{"", "7pm", "25:00", "12:7", "ab:cd"} {
			if _, err := ParseSlot(in); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("input %q: expected ErrInvalidArgument, got %v", in, err)
			}
		}
	})
}

func TestNewReminderSettings(t *testing.T) {
	now := time.Date(2025, time.May, 5, 10, 0, 0, 123, time.UTC)

	s, err := NewReminderSettings(42, 4242, false, DefaultSlot, now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if s.Active || s.FireTime != DefaultSlot || s.ChatID != 4242 {
		t.Errorf("unexpected settings %+v", s)
	}
	if !s.CreatedAt.Equal(now.Truncate(time.Second)) {
		t.Errorf("expected created_at truncated to seconds, got %v", s.CreatedAt)
	}

	if _, err := NewReminderSettings(0, 1, true, DefaultSlot, now); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for zero user id, got %v", err)
	}
	if _, err := NewReminderSettings(1, 1, true, Slot{Hour: 3}, now); !errors.Is(err, domain.ErrInvalidSlot) {
		t.Errorf("expected ErrInvalidSlot, got %v", err)
	}
}
