package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/alejandrodnm/oods/internal/adapters/notify"
	"github.com/alejandrodnm/oods/internal/application/aggregate"
	"github.com/alejandrodnm/oods/internal/domain"
)

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "create":
		return a.runCreate(ctx, args)
	case "vote":
		return a.runVote(ctx, args)
	case "advance":
		return a.runAdvance(ctx, args)
	case "bet":
		return a.runBet(ctx, args)
	case "settle":
		return a.runSettle(ctx, args)
	case "claim":
		return a.runClaim(ctx, args)
	case "status":
		return a.runStatus(ctx, args)
	case "deposit":
		return a.runDeposit(ctx, args)
	case "retry-mints":
		return a.runRetryMints(ctx, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) runCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	as := fs.String("as", "", "caller identity (ignored when -key is set)")
	name := fs.String("name", "", "display name (max 32 chars)")
	symbol := fs.String("symbol", "", "ticker symbol (max 10 chars)")
	supply := fs.Uint64("supply", 0, "total token supply")
	discovery := fs.Duration("discovery", time.Hour, "discovery window (max 1h)")
	predict := fs.Duration("predict", 24*time.Hour, "predict window (max 24h)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	who, err := a.caller(ctx, *as, "create", "", *name, *symbol, strconv.FormatUint(*supply, 10))
	if err != nil {
		return err
	}
	l, err := a.svc.Create(ctx, domain.CreateLaunchInput{
		Authority:         who,
		Name:              *name,
		Symbol:            *symbol,
		TotalSupply:       *supply,
		DiscoveryDuration: int64(*discovery / time.Second),
		PredictDuration:   int64(*predict / time.Second),
	})
	if err != nil {
		return err
	}
	a.console.PrintLaunch(l, a.svc.Now())
	return nil
}

func (a *app) runVote(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("vote", flag.ContinueOnError)
	as := fs.String("as", "", "caller identity (ignored when -key is set)")
	id := fs.String("launch", "", "launch id")
	mcap := fs.Uint64("mcap", 0, "market cap estimate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	who, err := a.caller(ctx, *as, "submit_vote", *id, strconv.FormatUint(*mcap, 10))
	if err != nil {
		return err
	}
	_, err = a.svc.SubmitVote(ctx, *id, who, *mcap)
	return err
}

func (a *app) runAdvance(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("advance", flag.ContinueOnError)
	as := fs.String("as", "", "caller identity (ignored when -key is set)")
	id := fs.String("launch", "", "launch id")
	median := fs.Uint64("median", 0, "median market cap of the votes")
	auto := fs.Bool("auto", false, "compute the median from the stored votes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *auto {
		votes, err := a.svc.ListVotes(ctx, *id)
		if err != nil {
			return err
		}
		if *median, err = aggregate.MedianVote(votes); err != nil {
			return err
		}
	}
	who, err := a.caller(ctx, *as, "advance_to_predict", *id, strconv.FormatUint(*median, 10))
	if err != nil {
		return err
	}
	l, err := a.svc.AdvanceToPredict(ctx, *id, who, *median)
	if err != nil {
		return err
	}
	a.console.PrintLaunch(l, a.svc.Now())
	return nil
}

func (a *app) runBet(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bet", flag.ContinueOnError)
	as := fs.String("as", "", "caller identity (ignored when -key is set)")
	id := fs.String("launch", "", "launch id")
	breakpoint := fs.Uint64("breakpoint", 0, "predicted market cap threshold")
	side := fs.String("side", "yes", "yes (settles >= breakpoint) | no (settles < breakpoint)")
	amount := fs.String("amount", "", "stake in whole units, up to 9 decimals (e.g. 1.5)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	isYes, err := parseSide(*side)
	if err != nil {
		return err
	}
	lamports, err := parseUnits(*amount)
	if err != nil {
		return err
	}
	who, err := a.caller(ctx, *as, "place_bet", *id,
		strconv.FormatUint(*breakpoint, 10), *side, strconv.FormatUint(lamports, 10))
	if err != nil {
		return err
	}
	_, err = a.svc.PlaceBet(ctx, *id, who, *breakpoint, isYes, lamports)
	return err
}

func (a *app) runSettle(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("settle", flag.ContinueOnError)
	as := fs.String("as", "", "caller identity (ignored when -key is set)")
	id := fs.String("launch", "", "launch id")
	value := fs.Uint64("value", 0, "settlement value")
	auto := fs.Bool("auto", false, "use the stake-weighted median breakpoint")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *auto {
		bets, err := a.svc.ListBets(ctx, *id)
		if err != nil {
			return err
		}
		if *value, err = aggregate.BalancedSettlement(bets); err != nil {
			return err
		}
	}
	who, err := a.caller(ctx, *as, "settle", *id, strconv.FormatUint(*value, 10))
	if err != nil {
		return err
	}
	l, err := a.svc.Settle(ctx, *id, who, *value)
	if err != nil {
		return err
	}
	a.console.PrintLaunch(l, a.svc.Now())
	return nil
}

func (a *app) runClaim(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	as := fs.String("as", "", "caller identity (ignored when -key is set)")
	id := fs.String("launch", "", "launch id")
	bet := fs.String("bet", "", "bet id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	who, err := a.caller(ctx, *as, "claim", *id, *bet)
	if err != nil {
		return err
	}
	out, err := a.svc.Claim(ctx, *id, *bet, who)
	if err != nil {
		return err
	}
	if !out.Minted {
		fmt.Println("claim recorded; mint pending, run `oods retry-mints`")
	}
	return nil
}

func (a *app) runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	id := fs.String("launch", "", "launch id (empty lists all launches)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now := a.svc.Now()
	if *id == "" {
		all, err := a.svc.ListLaunches(ctx)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("no launches")
		}
		for _, l := range all {
			a.console.PrintLaunch(l, now)
		}
		return nil
	}

	l, err := a.svc.GetLaunch(ctx, *id)
	if err != nil {
		return err
	}
	a.console.PrintLaunch(l, now)

	switch l.Phase {
	case domain.PhaseDiscovery:
		votes, err := a.svc.ListVotes(ctx, *id)
		if err != nil {
			return err
		}
		a.console.PrintVotes(votes)
	default:
		bets, err := a.svc.ListBets(ctx, *id)
		if err != nil {
			return err
		}
		a.console.PrintBets(bets)
		if pool, err := a.custody.Pool(ctx, *id); err == nil {
			fmt.Printf("  custody pool: %s\n", notify.FormatUnits(pool))
		}
	}
	return nil
}

func (a *app) runDeposit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("deposit", flag.ContinueOnError)
	as := fs.String("as", "", "identity to credit (ignored when -key is set)")
	amount := fs.String("amount", "", "amount in whole units, up to 9 decimals")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lamports, err := parseUnits(*amount)
	if err != nil {
		return err
	}
	who, err := a.caller(ctx, *as, "deposit", "", strconv.FormatUint(lamports, 10))
	if err != nil {
		return err
	}
	if err := a.custody.Deposit(ctx, who, lamports); err != nil {
		return err
	}
	bal, err := a.custody.Balance(ctx, who)
	if err != nil {
		return err
	}
	fmt.Printf("%s balance: %s\n", who, notify.FormatUnits(bal))
	return nil
}

func (a *app) runRetryMints(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("retry-mints", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, err := a.svc.RetryMints(ctx)
	fmt.Printf("minted %d pending claims\n", n)
	return err
}

func parseSide(s string) (bool, error) {
	switch s {
	case "yes", "YES", "y":
		return true, nil
	case "no", "NO", "n":
		return false, nil
	}
	return false, errors.New("side must be yes or no")
}
