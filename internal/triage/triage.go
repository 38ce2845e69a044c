// Package triage is the interactive review loop over pending
// proposals: step through what the pipeline surfaced and accept or
// reject each one, with the decision recorded durably as you go.
package triage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/codequarry/quarry/internal/events"
	"github.com/codequarry/quarry/internal/storage"
	"github.com/codequarry/quarry/internal/types"
)

// Session steps through pending proposals one at a time
type Session struct {
	store    storage.Store
	out      io.Writer
	rl       *readline.Instance
	pending  []*types.Proposal
	position int
	decided  int
	commands map[string]commandHandler
}

type commandHandler func(ctx context.Context, args []string) error

// Config holds triage session configuration
type Config struct {
	Store storage.Store

	// Out receives session output (default os.Stdout)
	Out io.Writer
}

// New creates a triage session. The pending queue is loaded lazily on
// Run so the session always sees the latest store state.
func New(cfg *Config) (*Session, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	s := &Session{
		store: cfg.Store,
		out:   out,
	}
	s.registerCommands()
	return s, nil
}

// Run starts the interactive loop. It returns when the queue is
// exhausted, the user quits, or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if err := s.loadQueue(ctx); err != nil {
		return err
	}
	if len(s.pending) == 0 {
		fmt.Fprintln(s.out, "No pending proposals to triage.")
		return nil
	}

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("triage> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "quit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	s.rl = rl

	s.printWelcome()
	s.showCurrent()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				s.printFarewell()
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := s.processInput(ctx, line); err != nil {
			if err == io.EOF {
				s.printFarewell()
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(s.out, "%s %v\n", red("Error:"), err)
		}

		if s.position >= len(s.pending) {
			fmt.Fprintln(s.out, "\nQueue complete.")
			s.printFarewell()
			return nil
		}
	}
}

func (s *Session) loadQueue(ctx context.Context) error {
	pending, err := s.store.ListByStatus(ctx, types.StatusPending)
	if err != nil {
		return fmt.Errorf("loading pending proposals: %w", err)
	}
	s.pending = pending
	s.position = 0
	return nil
}

func (s *Session) processInput(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	if handler, ok := s.commands[command]; ok {
		return handler(ctx, args)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(s.out, "%s Unknown command %q. Type 'help' for available commands.\n", yellow("Note:"), command)
	return nil
}

func (s *Session) registerCommands() {
	s.commands = map[string]commandHandler{
		"accept": s.cmdAccept,
		"a":      s.cmdAccept,
		"reject": s.cmdReject,
		"r":      s.cmdReject,
		"skip":   s.cmdSkip,
		"s":      s.cmdSkip,
		"show":   s.cmdShow,
		"help":   s.cmdHelp,
		"?":      s.cmdHelp,
		"quit":   s.cmdQuit,
		"exit":   s.cmdQuit,
	}
}

// current returns the proposal under review
func (s *Session) current() *types.Proposal {
	if s.position < 0 || s.position >= len(s.pending) {
		return nil
	}
	return s.pending[s.position]
}

func (s *Session) cmdAccept(ctx context.Context, args []string) error {
	return s.decide(ctx, types.StatusAccepted)
}

func (s *Session) cmdReject(ctx context.Context, args []string) error {
	return s.decide(ctx, types.StatusRejected)
}

func (s *Session) decide(ctx context.Context, status types.ProposalStatus) error {
	proposal := s.current()
	if proposal == nil {
		return fmt.Errorf("no proposal under review")
	}

	if _, err := s.store.Decide(ctx, proposal.Fingerprint, status, time.Now()); err != nil {
		return err
	}

	event := events.NewProposalEvent(events.EventTypeProposalDecided, "", proposal.Fingerprint,
		events.SeverityInfo, fmt.Sprintf("proposal %s %s via triage", proposal.Fingerprint.Short(), status))
	if err := s.store.RecordEvent(ctx, event); err != nil {
		return fmt.Errorf("recording decision event: %w", err)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(s.out, "%s %s %s\n\n", green("✓"), status, proposal.Fingerprint.Short())

	s.decided++
	s.position++
	s.showCurrent()
	return nil
}

func (s *Session) cmdSkip(ctx context.Context, args []string) error {
	if s.current() == nil {
		return fmt.Errorf("no proposal under review")
	}
	s.position++
	s.showCurrent()
	return nil
}

func (s *Session) cmdShow(ctx context.Context, args []string) error {
	s.showCurrent()
	return nil
}

func (s *Session) cmdQuit(ctx context.Context, args []string) error {
	return io.EOF
}

func (s *Session) cmdHelp(ctx context.Context, args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(s.out, "\n%s\n", cyan("Triage Commands:"))
	for _, c := range []struct{ name, desc string }{
		{"accept, a", "Accept the current proposal (you intend to fix it)"},
		{"reject, r", "Reject it (suppress from all future runs)"},
		{"skip, s", "Leave it pending and move on"},
		{"show", "Reprint the current proposal"},
		{"help, ?", "Show this help message"},
		{"quit, exit", "End the session"},
	} {
		fmt.Fprintf(s.out, "  %-12s %s\n", green(c.name), c.desc)
	}
	fmt.Fprintln(s.out)
	return nil
}

// showCurrent prints the proposal under review
func (s *Session) showCurrent() {
	proposal := s.current()
	if proposal == nil {
		return
	}

	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(s.out, "[%d/%d] %s\n", s.position+1, len(s.pending), cyan(proposal.Fingerprint.Short()))
	fmt.Fprintf(s.out, "  %s\n", proposal.Summary)
	fmt.Fprintf(s.out, "  %s\n", gray(fmt.Sprintf("%s · rule %s · first seen %s",
		proposal.SourcePath, proposal.Rule, proposal.FirstSeenAt.Format("2006-01-02"))))
}

func (s *Session) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(s.out, "\n%s\n", cyan("Quarry Triage"))
	fmt.Fprintf(s.out, "%d pending proposal(s). accept/reject/skip each one; 'help' for commands.\n\n", len(s.pending))
}

func (s *Session) printFarewell() {
	green := color.New(color.FgGreen).SprintFunc()
	remaining := len(s.pending) - s.position
	if remaining < 0 {
		remaining = 0
	}
	fmt.Fprintf(s.out, "%s Decided %d, %d still pending.\n", green("✓"), s.decided, remaining)
}
