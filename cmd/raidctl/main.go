// Package main provides a terminal client that plays a raid against a running
// server: preview, execute, then the animated sequence with its audio cues.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"city-raid/internal/api"
	"city-raid/internal/raidclient"
)

const usage = `usage: raidctl [flags] <command> [args]

commands:
  preview <target>   show raid odds against target
  raid <target>      preview, execute and play the raid sequence
  loadout            save the default vehicle and tag style
  history            list recent raids
`

func main() {
	flags := pflag.NewFlagSet("raidctl", pflag.ContinueOnError)
	flags.String("server", "http://localhost:8080", "raid API base URL")
	flags.String("login", "", "profile login to act as")
	flags.String("identity-header", raidclient.DefaultIdentityHeader, "header carrying the login")
	flags.Int64("boost", 0, "boost purchase id to spend on execute")
	flags.String("vehicle", "", "vehicle id")
	flags.String("tag-style", "", "tag style id (loadout only)")
	flags.Int("limit", 0, "history rows (0 = server default)")
	flags.Bool("skip", false, "skip the animation straight to the share screen")
	flags.Duration("timeout", 10*time.Second, "request timeout")
	flags.Bool("debug", false, "log phase changes")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage, "\nflags:\n", flags.FlagUsages())
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	v := viper.New()
	v.SetEnvPrefix("RAIDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if v.GetBool("debug") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	login := v.GetString("login")
	if login == "" {
		fmt.Fprintln(os.Stderr, "Error: --login (or RAIDCTL_LOGIN) is required")
		os.Exit(2)
	}
	client, err := raidclient.New(v.GetString("server"), login,
		raidclient.WithIdentityHeader(v.GetString("identity-header")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	timeout := v.GetDuration("timeout")
	switch args[0] {
	case "preview":
		err = runPreview(ctx, client, targetArg(args), timeout)
	case "raid":
		err = runRaid(ctx, client, targetArg(args), raidOptions{
			boost:   v.GetInt64("boost"),
			vehicle: v.GetString("vehicle"),
			skip:    v.GetBool("skip"),
			timeout: timeout,
		})
	case "loadout":
		err = runLoadout(ctx, client, v.GetString("vehicle"), v.GetString("tag-style"), timeout)
	case "history":
		err = runHistory(ctx, client, v.GetInt("limit"), timeout)
	default:
		flags.Usage()
		os.Exit(2)
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func targetArg(args []string) string {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Error: missing target login")
		os.Exit(2)
	}
	return args[1]
}

func runPreview(ctx context.Context, client *raidclient.Client, target string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p, err := client.Preview(ctx, target)
	if err != nil {
		return err
	}
	printPreview(p)
	return nil
}

func runLoadout(ctx context.Context, client *raidclient.Client, vehicle, style string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var req api.LoadoutRequest
	if vehicle != "" {
		req.VehicleID = &vehicle
	}
	if style != "" {
		req.TagStyle = &style
	}
	l, err := client.SaveLoadout(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Loadout saved: vehicle=%s tag_style=%s\n", l.Vehicle, l.TagStyle)
	return nil
}

func runHistory(ctx context.Context, client *raidclient.Client, limit int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h, err := client.History(ctx, limit)
	if err != nil {
		return err
	}
	if len(h.Raids) == 0 {
		fmt.Println("No raids yet.")
		return nil
	}
	for _, r := range h.Raids {
		result := "lost"
		if r.Success {
			result = "won"
		}
		fmt.Printf("%s  %-8s %s -> %s  %s %d:%d  +%d XP\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Role, r.AttackerSlug, r.DefenderSlug,
			result, r.AttackScore, r.DefenseScore, r.XPEarned)
	}
	return nil
}

func printPreview(p *api.PreviewResponse) {
	fmt.Printf("%s vs %s\n", p.AttackerSlug, p.DefenderSlug)
	fmt.Printf("  attack  %3d (%s) %v\n", p.AttackScore, p.AttackEstimate, p.AttackBreakdown)
	fmt.Printf("  defense %3d (%s) %v\n", p.DefenseScore, p.DefenseEstimate, p.DefenseBreakdown)
	fmt.Printf("  raids today %d/%d, vehicle %s\n", p.RaidsToday, p.RaidsMax, p.Vehicle)
	for _, b := range p.AvailableBoosts {
		fmt.Printf("  boost #%d %s (+%d)\n", b.PurchaseID, b.Name, b.Bonus)
	}
}

func printError(err error) {
	var apiErr *raidclient.APIError
	if !errors.As(err, &apiErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s (%s)\n", apiErr.Detail, apiErr.Code)
	for _, f := range apiErr.Fields {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", f.Field, f.Message)
	}
	if len(apiErr.Meta) > 0 {
		fmt.Fprintf(os.Stderr, "  %v\n", apiErr.Meta)
	}
	if apiErr.Retryable {
		fmt.Fprintln(os.Stderr, "  This error is temporary, try again.")
	}
}
