package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/alejandrodnm/oods/internal/ports"
	"github.com/cockroachdb/apd/v3"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier escribiendo una línea por evento.
// También imprime el estado de un lanzamiento para el comando status.
type Console struct {
	out io.Writer
	now func() time.Time
}

var _ ports.Notifier = (*Console)(nil)

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, now: time.Now}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// Publish imprime el evento en una línea.
func (c *Console) Publish(_ context.Context, ev domain.Event) error {
	ts := c.now().Format("15:04:05")
	switch e := ev.(type) {
	case domain.LaunchCreated:
		fmt.Fprintf(c.out, "[%s] %s %s name=%q symbol=%s supply=%d authority=%s discovery_end=%d predict_end=%d\n",
			ts, e.Kind(), e.LaunchID, e.Name, e.Symbol, e.TotalSupply, e.Authority, e.DiscoveryEnd, e.PredictEnd)
	case domain.VoteSubmitted:
		fmt.Fprintf(c.out, "[%s] %s %s voter=%s mcap=%d\n", ts, e.Kind(), e.LaunchID, e.Voter, e.McapVote)
	case domain.PredictStarted:
		fmt.Fprintf(c.out, "[%s] %s %s median=%d\n", ts, e.Kind(), e.LaunchID, e.MedianMcap)
	case domain.BetPlaced:
		side := "NO"
		if e.IsYes {
			side = "YES"
		}
		fmt.Fprintf(c.out, "[%s] %s %s bet=%s bettor=%s %s@%d stake=%s mult=%s\n",
			ts, e.Kind(), e.LaunchID, e.BetID, e.Bettor, side, e.Breakpoint,
			FormatUnits(e.Amount), FormatMultiplier(e.Multiplier))
	case domain.LaunchSettled:
		fmt.Fprintf(c.out, "[%s] %s %s value=%d locked=%s\n",
			ts, e.Kind(), e.LaunchID, e.SettlementValue, FormatUnits(e.TotalLocked))
	case domain.TokensClaimed:
		fmt.Fprintf(c.out, "[%s] %s %s bet=%s claimer=%s tokens=%d accuracy=%s\n",
			ts, e.Kind(), e.LaunchID, e.BetID, e.Claimer, e.Tokens, FormatAccuracy(e.Accuracy))
	default:
		fmt.Fprintf(c.out, "[%s] %s %s\n", ts, ev.Kind(), ev.Launch())
	}
	return nil
}

// PrintLaunch imprime el estado de un lanzamiento y sus ventanas relativas a now.
func (c *Console) PrintLaunch(l domain.Launch, now int64) {
	fmt.Fprintf(c.out, "\n── %s (%s) ── %s\n", l.Name, l.Symbol, l.ID)

	table := tablewriter.NewWriter(c.out)
	table.Header("Field", "Value")
	table.Append("Phase", l.Phase.String())
	table.Append("Authority", string(l.Authority))
	table.Append("Total supply", strconv.FormatUint(l.TotalSupply, 10))
	table.Append("Participant pool", strconv.FormatUint(l.ParticipantPool(), 10))
	table.Append("Discovery end", windowLabel(l.DiscoveryEnd, now))
	table.Append("Predict end", windowLabel(l.PredictEnd, now))
	table.Append("Votes", strconv.FormatUint(uint64(l.TotalVotes), 10))
	table.Append("Locked", FormatUnits(l.TotalLocked))
	table.Append("Current multiplier", FormatMultiplier(domain.StakeMultiplier(l.TotalLocked)))
	if m, ok := l.MedianMcap(); ok {
		table.Append("Median mcap", strconv.FormatUint(m, 10))
	}
	if v, ok := l.SettlementValue(); ok {
		table.Append("Settlement", strconv.FormatUint(v, 10))
	}
	table.Append("Distributed", strconv.FormatUint(l.TotalDistributed, 10))
	table.Render()
}

// PrintBets imprime las apuestas de un lanzamiento.
func (c *Console) PrintBets(bets []domain.Bet) {
	if len(bets) == 0 {
		fmt.Fprintln(c.out, "  (no bets)")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Bet", "Bettor", "Side", "Breakpoint", "Stake", "Mult", "Claimed", "Accuracy", "Tokens")
	for i, b := range bets {
		claimed, accuracy, tokens := "-", "-", "-"
		if b.Claimed {
			claimed = "yes"
			if !b.Minted && b.ClaimedTokens > 0 {
				claimed = "yes (mint pending)"
			}
			accuracy = FormatAccuracy(b.Accuracy)
			tokens = strconv.FormatUint(b.ClaimedTokens, 10)
		}
		table.Append(
			strconv.Itoa(i+1),
			shortID(b.ID),
			string(b.Bettor),
			b.Side(),
			strconv.FormatUint(b.Breakpoint, 10),
			FormatUnits(b.Amount),
			FormatMultiplier(b.Multiplier),
			claimed,
			accuracy,
			tokens,
		)
	}
	table.Render()
}

// PrintVotes imprime los votos de Discovery.
func (c *Console) PrintVotes(votes []domain.Vote) {
	if len(votes) == 0 {
		fmt.Fprintln(c.out, "  (no votes)")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Voter", "Mcap", "At")
	for i, v := range votes {
		table.Append(
			strconv.Itoa(i+1),
			string(v.Voter),
			strconv.FormatUint(v.McapVote, 10),
			time.Unix(v.Timestamp, 0).UTC().Format(time.RFC3339),
		)
	}
	table.Render()
}

// FormatUnits muestra lamports como unidades con hasta 9 decimales: 1500000000 → "1.5".
func FormatUnits(lamports uint64) string {
	d, _, err := apd.NewFromString(strconv.FormatUint(lamports, 10) + "E-9")
	if err != nil {
		return strconv.FormatUint(lamports, 10)
	}
	var r apd.Decimal
	r.Reduce(d)
	return r.Text('f')
}

// FormatMultiplier muestra el multiplicador (centésimas) como factor: 150 → "1.5x".
func FormatMultiplier(m uint16) string {
	return hundredths(m) + "x"
}

// FormatAccuracy muestra basis points como porcentaje: 5360 → "53.6%".
func FormatAccuracy(bp uint16) string {
	return hundredths(bp) + "%"
}

func hundredths(v uint16) string {
	var r apd.Decimal
	r.Reduce(apd.New(int64(v), -2))
	return r.Text('f')
}

func windowLabel(end, now int64) string {
	at := time.Unix(end, 0).UTC().Format(time.RFC3339)
	if now >= end {
		return at + " (ended)"
	}
	return fmt.Sprintf("%s (in %s)", at, time.Duration(end-now)*time.Second)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Multi reparte cada evento a varios notifiers. Un fallo no corta el resto.
type Multi []ports.Notifier

var _ ports.Notifier = Multi(nil)

func (m Multi) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
