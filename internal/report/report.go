// Package report renders plans and rankings for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"

	"paydays/internal/amqp"
	"paydays/internal/core"
	"paydays/internal/scheduler"
	"paydays/internal/storage"

	"github.com/charmbracelet/lipgloss"
)

// Report writes styled text. Colours are used only when the destination is a
// terminal.
type Report struct {
	w       io.Writer
	heading lipgloss.Style
	muted   lipgloss.Style
	warn    lipgloss.Style
	amount  lipgloss.Style
}

func New(w io.Writer) *Report {
	r := lipgloss.NewRenderer(w)
	return &Report{
		w:       w,
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#7f849c")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#f38ba8")),
		amount:  r.NewStyle().Width(10).Align(lipgloss.Right),
	}
}

// Plan prints one section per payday, then the bills left out.
func (r *Report) Plan(plan scheduler.Plan) error {
	var lines []string
	lines = append(lines, r.heading.Render(fmt.Sprintf("Schedule (%s) as of %s", plan.Strategy, plan.Today)))

	if plan.IsEmpty() && len(plan.Rejected) == 0 {
		lines = append(lines, r.muted.Render("Nothing to pay."))
		return r.write(lines)
	}

	for _, b := range plan.Buckets {
		lines = append(lines, "", r.bucketHeader(b))
		for _, a := range b.Assignments {
			lines = append(lines, r.assignmentLine(a))
		}
	}

	if len(plan.Unassigned) > 0 {
		lines = append(lines, "", r.warn.Render(fmt.Sprintf("Unassigned (%d)", len(plan.Unassigned))))
		for _, u := range plan.Unassigned {
			lines = append(lines, fmt.Sprintf("  %-24s %s  due %s  p%d  %s",
				label(u.Bill), r.amount.Render(core.FormatAmount(u.Bill.Amount)), u.Bill.DueDate, u.Priority, u.Reason))
		}
	}
	lines = append(lines, r.rejectedLines(plan.Rejected)...)

	lines = append(lines, "", fmt.Sprintf("Total scheduled: %s across %d bills",
		core.FormatAmount(plan.Total()), len(plan.Assignments)))
	return r.write(lines)
}

// Ranking prints bills most urgent first with the factors behind each score.
func (r *Report) Ranking(ranked []scheduler.PrioritizedBill, rejected []scheduler.RejectedBill) error {
	lines := []string{r.heading.Render("Priorities")}
	if len(ranked) == 0 {
		lines = append(lines, r.muted.Render("No pending bills."))
	}
	for i, p := range ranked {
		lines = append(lines, fmt.Sprintf("%3d. %-24s %s  due %s  p%d",
			i+1, label(p.Bill), r.amount.Render(core.FormatAmount(p.Bill.Amount)), p.Bill.DueDate, p.Priority))
		if p.Notes != "" {
			lines = append(lines, "     "+r.muted.Render(p.Notes))
		}
	}
	lines = append(lines, r.rejectedLines(rejected)...)
	return r.write(lines)
}

// Run prints a persisted run, assigned entries grouped by payment date.
func (r *Report) Run(run storage.ScheduleRun) error {
	lines := []string{
		r.heading.Render(fmt.Sprintf("Run %s (%s) as of %s", run.ID, run.Strategy, run.Today)),
		r.muted.Render("computed " + run.CreatedAt.Format("2006-01-02 15:04 MST")),
	}
	var current core.Date
	var unassigned []storage.ScheduleEntry
	for _, e := range run.Entries {
		if e.PaymentDate.IsZero() {
			unassigned = append(unassigned, e)
			continue
		}
		if e.PaymentDate.Compare(current) != 0 {
			current = e.PaymentDate
			lines = append(lines, "", r.heading.Render(current.String()))
		}
		line := fmt.Sprintf("  %-24s p%d", e.BillID, e.Priority)
		if e.Deflected {
			line += " " + r.muted.Render("(moved earlier)")
		}
		lines = append(lines, line)
	}
	if len(unassigned) > 0 {
		lines = append(lines, "", r.warn.Render(fmt.Sprintf("Unassigned (%d)", len(unassigned))))
		for _, e := range unassigned {
			lines = append(lines, fmt.Sprintf("  %-24s p%d  %s", e.BillID, e.Priority, e.Reason))
		}
	}
	lines = append(lines, "", fmt.Sprintf("Total scheduled: %s across %d bills (%d rejected)",
		core.FormatAmount(run.Total), run.Assigned, run.Rejected))
	return r.write(lines)
}

// Event prints a one-line summary of a schedule event.
func (r *Report) Event(ev *amqp.Event) error {
	head := fmt.Sprintf("%s %s %s", ev.Timestamp.Format("15:04:05"), r.heading.Render(string(ev.Kind)), ev.RunID)
	switch ev.Kind {
	case amqp.ScheduleComputed:
		head += fmt.Sprintf("  %s as of %s: %d assigned, %d unassigned, total %s",
			ev.Strategy, ev.Today, ev.Assigned, ev.Unassigned, ev.Total)
	case amqp.PrioritiesUpdated:
		head += fmt.Sprintf("  %s as of %s: %d priorities written", ev.Strategy, ev.Today, ev.Updated)
	}
	lines := []string{head}
	for _, b := range ev.Buckets {
		lines = append(lines, fmt.Sprintf("  %s %-12s %3d bills %s", b.Date, b.Label, b.Bills, r.amount.Render(b.Total)))
	}
	return r.write(lines)
}

func (r *Report) bucketHeader(b scheduler.PaydayBucket) string {
	head := b.Payday.Date.String()
	if adjusted := scheduler.AdjustForWeekend(b.Payday.Date); adjusted != b.Payday.Date {
		head += " (pay " + adjusted.String() + ")"
	}
	if b.Payday.Label != "" {
		head += " " + b.Payday.Label
	}
	return r.heading.Render(head) + "  " + core.FormatAmount(b.Total)
}

func (r *Report) assignmentLine(a scheduler.PaymentAssignment) string {
	line := fmt.Sprintf("  %-24s %s  due %s  p%d",
		label(a.Bill), r.amount.Render(core.FormatAmount(a.Bill.Amount)), a.Bill.DueDate, a.Priority)
	if a.Deflected {
		line += " " + r.muted.Render("(moved earlier)")
	}
	return line
}

func (r *Report) rejectedLines(rejected []scheduler.RejectedBill) []string {
	if len(rejected) == 0 {
		return nil
	}
	lines := []string{"", r.warn.Render(fmt.Sprintf("Rejected (%d)", len(rejected)))}
	for _, rb := range rejected {
		lines = append(lines, fmt.Sprintf("  %-24s %s", label(rb.Bill), rb.Reason))
	}
	return lines
}

func (r *Report) write(lines []string) error {
	_, err := io.WriteString(r.w, strings.Join(lines, "\n")+"\n")
	return err
}

func label(b core.Bill) string {
	if b.Title == "" {
		return b.ID
	}
	if len(b.Title) > 24 {
		return b.Title[:23] + "…"
	}
	return b.Title
}
