// Package calendar exports payment schedules as iCalendar feeds.
package calendar

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"paydays/internal/core"
	"paydays/internal/scheduler"

	"github.com/emersion/go-ical"
)

const (
	ProdID  = "-//paydays//schedule//EN"
	CalName = "Bill payments"
	// uidDomain suffixes event UIDs so they stay unique across feeds.
	uidDomain = "paydays"
)

// stub is a valid calendar with no events. The encoder refuses calendars
// without components, but subscribers expect a feed even for an empty plan.
const stub = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + ProdID + "\r\nEND:VCALENDAR\r\n"

// Build creates one all-day event per assignment on its weekend-adjusted
// date. now stamps every event.
func Build(plan scheduler.Plan, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProdID)
	cal.Props.SetText("X-WR-CALNAME", CalName)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")
	cal.Props.SetText(ical.PropMethod, "PUBLISH")

	stamp := ical.NewProp(ical.PropDateTimeStamp)
	stamp.SetDateTime(now.UTC())

	for _, a := range scheduler.SortAssignments(plan.Assignments) {
		ev := event(a)
		ev.Props.Set(stamp)
		cal.Children = append(cal.Children, ev.Component)
	}
	return cal
}

// Encode writes the plan as an iCalendar document.
func Encode(w io.Writer, plan scheduler.Plan, now time.Time) error {
	cal := Build(plan, now)
	if len(cal.Children) == 0 {
		_, err := io.WriteString(w, stub)
		return err
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

// Bytes is Encode into memory.
func Bytes(plan scheduler.Plan, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, plan, now); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func event(a scheduler.PaymentAssignment) *ical.Event {
	day := a.AdjustedDate()

	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, fmt.Sprintf("%s-%s@%s", a.Bill.ID, a.PaymentDate, uidDomain))
	ev.Props.SetText(ical.PropSummary, "Pay "+title(a.Bill))
	ev.Props.SetText(ical.PropDescription, description(a))

	start := ical.NewProp(ical.PropDateTimeStart)
	start.SetDate(day.Time)
	ev.Props.Set(start)

	end := ical.NewProp(ical.PropDateTimeEnd)
	end.SetDate(day.AddDays(1).Time)
	ev.Props.Set(end)

	ev.Props.SetText(ical.PropTransparency, "TRANSPARENT")
	return ev
}

func title(b core.Bill) string {
	if t := strings.TrimSpace(b.Title); t != "" {
		return t
	}
	return b.ID
}

func description(a scheduler.PaymentAssignment) string {
	lines := []string{
		"Amount: " + core.FormatAmount(a.Bill.Amount),
		"Due: " + a.Bill.DueDate.String(),
		fmt.Sprintf("Priority: %d", a.Priority),
		"Payday: " + a.PaymentDate.String(),
	}
	if a.Deflected {
		lines = append(lines, "Moved to an earlier payday to balance load")
	}
	return strings.Join(lines, "\n")
}
