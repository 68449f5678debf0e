package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	cl "crudeidle/internal/cli"
	"crudeidle/internal/game"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]string, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = opt
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if opt, ok := normalized[text]; ok {
			return opt, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func renderBalance(b game.BalanceView) {
	accent.Println("\n== OIL FIELD ==")
	fmt.Printf("Balance:          %s\n", formatAmount(b.Balance))
	fmt.Printf("Earnings/period:  %s\n\n", colorizeAmount(b.PeriodEarnings))
}

func renderPlatforms(platforms []game.Platform, maxLevel int) {
	accent.Println("\nPlatforms")
	if len(platforms) == 0 {
		printInfo("No platforms yet. Try `crd platforms create Rig`.")
		return
	}
	fmt.Printf("%-36s %-7s %7s %12s\n", "ID", "TYPE", "LEVEL", "YIELD")
	for _, p := range platforms {
		level := fmt.Sprintf("%d/%d", p.Level, maxLevel)
		if maxLevel > 0 && p.Level >= maxLevel {
			level = success.Sprint(level)
		}
		fmt.Printf("%-36s %-7s %7s %12s\n", p.ID, p.Kind, level, formatAmount(p.YieldRate))
	}
	fmt.Println()
}

func renderItems(items []game.Item) {
	accent.Println("\nItems")
	if len(items) == 0 {
		printInfo("Nothing for sale.")
		return
	}
	fmt.Printf("%-36s %-20s %12s  %s\n", "ID", "TITLE", "COST", "STATUS")
	for _, it := range items {
		status := neutral.Sprint("for sale")
		if it.Purchased {
			status = success.Sprint("bought")
		}
		fmt.Printf("%-36s %-20s %12s  %s\n", it.ID, truncate(it.Title, 20), formatAmount(it.Cost), status)
	}
	fmt.Println()
}

func renderLedger(entries []game.LedgerEntry) {
	accent.Println("\nLedger")
	if len(entries) == 0 {
		printInfo("Ledger is empty.")
		return
	}
	fmt.Printf("%-20s %-36s %14s\n", "WHEN", "RESOURCE", "AMOUNT")
	for _, e := range entries {
		resource := "-"
		if e.ResourceID != nil {
			resource = e.ResourceID.String()
			if *e.ResourceID == game.SystemResourceID {
				resource = "settlement"
			}
		}
		amount := e.Amount
		if e.Direction == game.Debit {
			amount = -amount
		}
		fmt.Printf("%-20s %-36s %14s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), resource, colorizeAmount(amount))
	}
	fmt.Println()
}

func renderSummary(s game.Summary) {
	if s.Won {
		success.Println("\n== YOU WON ==")
	} else {
		accent.Println("\n== PROGRESS ==")
	}
	fmt.Printf("Earned:     %s\n", formatAmount(s.Earned))
	fmt.Printf("Spent:      %s\n", formatAmount(s.Spent))
	fmt.Printf("Items:      %d/%d\n", s.ItemsPurchased, s.ItemsTotal)
	fmt.Printf("Platforms:  %d\n", len(s.Platforms))
	fmt.Println()
}

func renderCatalog(c cl.CatalogView) {
	accent.Printf("\nCatalog (max level %d)\n", c.MaxLevel)
	fmt.Printf("%-7s %12s %12s %10s\n", "TYPE", "BUILD", "UPGRADE", "+YIELD")
	for _, p := range c.Platforms {
		fmt.Printf("%-7s %12s %12s %10s\n", p.Kind, formatAmount(p.CreateCost), formatAmount(p.UpgradeCost), formatAmount(p.YieldIncrement))
	}
	fmt.Println()
}

func renderMutation(out game.MutationResult, verb string) {
	switch {
	case out.Platform != nil:
		printSuccess(fmt.Sprintf("%s %s (level %d, yield %s) for %s.", verb, out.Platform.Kind, out.Platform.Level, formatAmount(out.Platform.YieldRate), formatAmount(out.Cost)))
	case out.Item != nil:
		printSuccess(fmt.Sprintf("%s %s for %s.", verb, out.Item.Title, formatAmount(out.Cost)))
	default:
		printSuccess(verb + ".")
	}
	fmt.Printf("Balance now %s\n", formatAmount(out.Balance))
	if out.Won {
		success.Println("Every item is bought. You won! Run `crd summary`.")
	}
}

func colorizeAmount(v int64) string {
	text := formatAmount(v)
	switch {
	case v > 0:
		return success.Sprint("+" + text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatAmount(v int64) string {
	if v < 0 {
		return "-" + comma(-v)
	}
	return comma(v)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
