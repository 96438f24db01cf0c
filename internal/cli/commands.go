// Package cli implements the operator console: contact tables, pipeline
// counters, and a manual flush/quit for a running decoy.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/lure-project/lure/internal/db"
	"github.com/lure-project/lure/internal/events"
	"github.com/lure-project/lure/internal/notify"
	"github.com/lure-project/lure/internal/ping"
	"github.com/lure-project/lure/internal/util"
)

const defaultContactRows = 20

// ContactLister reads recent contacts.
type ContactLister interface {
	Recent(ctx context.Context, limit int) ([]db.Contact, error)
}

// Pipeline is the notification pipeline as seen from the console.
type Pipeline interface {
	Stats() notify.Stats
	ForceFlush()
}

// CLI provides an interactive command-line interface. contacts and
// pipeline may be nil when the matching feature is disabled.
type CLI struct {
	contacts ContactLister
	pipeline Pipeline
	emitter  events.Emitter

	in  io.Reader
	out io.Writer
}

// NewCLI creates a console reading stdin and writing stdout.
func NewCLI(contacts ContactLister, pipeline Pipeline, emitter events.Emitter) *CLI {
	return &CLI{
		contacts: contacts,
		pipeline: pipeline,
		emitter:  emitter,
		in:       os.Stdin,
		out:      os.Stdout,
	}
}

// Start runs the command loop until ctx is cancelled, input ends, or the
// operator quits.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintf(c.out, "\n%s console ready. Type 'help' for available commands.\n", util.AppName)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("console input failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			quit, err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:])
			if err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
			if quit {
				return
			}
		}
	}
}

// execute processes a single command and reports whether the console
// should exit.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) (bool, error) {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "contacts", "c":
		return false, c.cmdContacts(ctx, args)
	case "stats", "s":
		return false, c.cmdStats()
	case "flush":
		return false, c.cmdFlush()
	case "quit", "exit", "q":
		fmt.Fprintf(c.out, "Shutting down %s...\n", util.AppName)
		if c.emitter != nil {
			c.emitter.Emit(ctx, events.Event{
				Type:   events.EventShutdown,
				Source: "cli",
			})
		}
		return true, nil
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return false, nil
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "  contacts [n]   Show the n most recent contacts (default 20)")
	fmt.Fprintln(c.out, "  stats          Show notification pipeline counters")
	fmt.Fprintln(c.out, "  flush          Send pending notifications now")
	fmt.Fprintln(c.out, "  quit           Shut down")
	fmt.Fprintln(c.out, "  help           Show this help message")
}

func (c *CLI) cmdContacts(ctx context.Context, args []string) error {
	if c.contacts == nil {
		return fmt.Errorf("contact log is disabled")
	}

	limit := defaultContactRows
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		limit = n
	}

	contacts, err := c.contacts.Recent(ctx, limit)
	if err != nil {
		return err
	}
	PrintContacts(c.out, contacts)
	return nil
}

func (c *CLI) cmdStats() error {
	if c.pipeline == nil {
		return fmt.Errorf("notifications are disabled")
	}
	s := c.pipeline.Stats()

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Recorded", "Dropped", "Batches", "Batches Dropped", "Delivered", "Failed"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	tw.Append([]string{
		strconv.FormatUint(s.Recorded, 10),
		strconv.FormatUint(s.Dropped, 10),
		strconv.FormatUint(s.Batches, 10),
		strconv.FormatUint(s.BatchesDropped, 10),
		strconv.FormatUint(s.Delivered, 10),
		strconv.FormatUint(s.Failed, 10),
	})
	tw.Render()
	return nil
}

func (c *CLI) cmdFlush() error {
	if c.pipeline == nil {
		return fmt.Errorf("notifications are disabled")
	}
	c.pipeline.ForceFlush()
	fmt.Fprintln(c.out, "Pending notifications flushed.")
	return nil
}

// PrintContacts renders contacts as a table, newest first as given.
func PrintContacts(w io.Writer, contacts []db.Contact) {
	if len(contacts) == 0 {
		fmt.Fprintln(w, "No contacts recorded.")
		return
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"ID", "Time", "Kind", "Remote", "Protocol", "Target", "Player"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, ct := range contacts {
		target, player, protocol := "-", "-", "-"
		if ct.ServerAddress != "" || ct.ServerPort != 0 {
			target = fmt.Sprintf("%s:%d", ct.ServerAddress, ct.ServerPort)
		}
		if ct.PlayerName != "" {
			player = ct.PlayerName
			if ct.PlayerID != "" {
				player += " (" + ct.PlayerID + ")"
			}
		}
		if ct.Kind != ping.KindJoin {
			protocol = strconv.Itoa(int(ct.ProtocolVersion))
		}

		tw.Append([]string{
			strconv.FormatInt(ct.ID, 10),
			ct.CreatedAt.Local().Format(time.DateTime),
			ct.Kind,
			ct.RemoteAddr,
			protocol,
			target,
			player,
		})
	}
	tw.Render()
}
