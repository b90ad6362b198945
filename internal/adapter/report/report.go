// Package report renders verdicts and diagnoses for the terminal. Colour is
// applied only when the destination supports it, so piped output stays
// plain text.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"pollguard/internal/domain"
)

// Printer writes human-readable reports to one destination.
type Printer struct {
	w     io.Writer
	title lipgloss.Style
	dim   lipgloss.Style
	label lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	bad   lipgloss.Style
}

// New creates a printer whose colour profile follows w.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:     w,
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("57")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("240")),
		label: r.NewStyle().Bold(true),
		ok:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("34")),
		warn:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		bad:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("160")),
	}
}

func (p *Printer) outcome(o domain.Outcome) string {
	switch o {
	case domain.OutcomeResolved:
		return p.ok.Render(string(o))
	case domain.OutcomeAborted:
		return p.bad.Render(string(o))
	default:
		return p.warn.Render(string(o))
	}
}

// Verdict prints one recovery run: outcome first, then the evidence trail.
func (p *Printer) Verdict(v domain.RecoveryVerdict) {
	fmt.Fprintf(p.w, "%s %s\n", p.title.Render("Recovery"), p.dim.Render("run "+v.RunID))
	fmt.Fprintf(p.w, "  %s %s\n", p.label.Render("Outcome:"), p.outcome(v.Outcome))
	if v.Kind != domain.KindNone {
		fmt.Fprintf(p.w, "  %s %s\n", p.label.Render("Kind:   "), v.Kind)
	}
	if v.Reason != "" {
		fmt.Fprintf(p.w, "  %s %s\n", p.label.Render("Reason: "), v.Reason)
	}
	if v.RetryAfter > 0 {
		fmt.Fprintf(p.w, "  %s %s\n", p.label.Render("Retry:  "), v.RetryAfter)
	}
	if len(v.Residual) > 0 {
		fmt.Fprintf(p.w, "  %s\n", p.bad.Render("Still running:"))
		for _, r := range v.Residual {
			fmt.Fprintf(p.w, "    %s\n", r)
		}
	}
	p.events(v.Events)
}

// Verdicts prints a sequence of retried runs.
func (p *Printer) Verdicts(vs []domain.RecoveryVerdict) {
	for i, v := range vs {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		if len(vs) > 1 {
			fmt.Fprintln(p.w, p.dim.Render(fmt.Sprintf("attempt %d/%d", i+1, len(vs))))
		}
		p.Verdict(v)
	}
}

// Diagnosis prints a read-only inspection.
func (p *Printer) Diagnosis(unit string, d domain.Diagnosis) {
	fmt.Fprintf(p.w, "%s %s\n", p.title.Render("Diagnosis"), p.dim.Render(unit))
	fmt.Fprintf(p.w, "  %s %s\n", p.label.Render("Outcome: "), p.outcome(d.Outcome))
	fmt.Fprintf(p.w, "  %s %s\n", p.label.Render("Unit:    "), p.state(d.Service))
	fmt.Fprintf(p.w, "  %s %s", p.label.Render("Probe:   "), d.Probe.Status)
	if d.Probe.Detail != "" {
		fmt.Fprintf(p.w, " (%s)", d.Probe.Detail)
	}
	if d.Probe.RetryAfter > 0 {
		fmt.Fprintf(p.w, " retry after %s", d.Probe.RetryAfter)
	}
	fmt.Fprintln(p.w)
	if d.Webhook != nil {
		url := d.Webhook.URL
		if url == "" {
			url = "none"
		}
		fmt.Fprintf(p.w, "  %s %s, %d pending update(s)\n", p.label.Render("Webhook: "), url, d.Webhook.PendingUpdateCount)
		if d.Webhook.LastErrorMessage != "" {
			fmt.Fprintf(p.w, "  %s %s\n", p.label.Render("Last err:"), d.Webhook.LastErrorMessage)
		}
	}
	fmt.Fprintf(p.w, "  %s %d\n", p.label.Render("Pollers: "), len(d.Processes))
	if len(d.Processes) > 0 {
		p.table(d.Processes, "    ")
	}
	p.events(d.Events)
}

// Status prints the supervisor's view of the unit.
func (p *Printer) Status(unit string, st domain.ServiceStatus) {
	fmt.Fprintf(p.w, "%s %s\n", p.label.Render(unit), p.state(st))
}

// Processes prints scan results as a table.
func (p *Printer) Processes(procs []domain.ProcessRecord) {
	if len(procs) == 0 {
		fmt.Fprintln(p.w, "No matching processes.")
		return
	}
	p.table(procs, "")
}

func (p *Printer) state(st domain.ServiceStatus) string {
	var s string
	switch st.State {
	case domain.ServiceRunning:
		s = p.ok.Render(string(st.State))
	case domain.ServiceFailed:
		s = p.bad.Render(string(st.State))
	default:
		s = p.warn.Render(string(st.State))
	}
	if st.Detail != "" && st.Detail != "active" && st.Detail != "inactive" {
		s += " " + p.dim.Render("("+st.Detail+")")
	}
	return s
}

func (p *Printer) table(procs []domain.ProcessRecord, indent string) {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%sPID\tPPID\tUSER\tCOMMAND\n", indent)
	for _, r := range procs {
		fmt.Fprintf(tw, "%s%d\t%d\t%s\t%s\n", indent, r.PID, r.PPID, r.OwnerUser, r.CommandLine)
	}
	tw.Flush()
}

func (p *Printer) events(events []domain.ConflictEvent) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintf(p.w, "  %s\n", p.label.Render("Evidence:"))
	for _, e := range events {
		ts := e.Time.Format("15:04:05.000")
		phase := fmt.Sprintf("%-9s", e.Phase)
		fmt.Fprintf(p.w, "    %s %s %s\n", p.dim.Render(ts), phase, strings.TrimSpace(e.Detail))
	}
}
