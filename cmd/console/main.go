package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pairpool/pairpool-engine-go/engine"
	"github.com/pairpool/pairpool-engine-go/events"
	"github.com/pairpool/pairpool-engine-go/gateway"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// console holds the in-process engine and the name <-> address book that
// lets users type "weth" or "alice" instead of hex addresses.
type console struct {
	eng   *engine.Engine
	vault *gateway.Vault
	names map[common.Address]string
}

// resolve turns a symbolic name or hex string into an address. Names map to
// deterministic addresses derived from their hash, so the same name always
// refers to the same account across sessions.
func (c *console) resolve(raw string) common.Address {
	if common.IsHexAddress(raw) {
		return common.HexToAddress(raw)
	}
	name := strings.ToLower(raw)
	addr := common.BytesToAddress(crypto.Keccak256([]byte(name))[12:])
	c.names[addr] = name
	return addr
}

// label renders an address as its known name, or shortened hex.
func (c *console) label(addr common.Address) string {
	if name, ok := c.names[addr]; ok {
		return name
	}
	hex := addr.Hex()
	return hex[:8] + ".." + hex[len(hex)-4:]
}

func main() {
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogger := slog.New(slog.NewJSONHandler(logFile, nil))

	vault := gateway.NewVault()
	eng, err := engine.New(engine.Config{
		Gateway:  vault,
		Logger:   rootLogger.With("component", "engine"),
		Registry: prometheus.NewRegistry(),
	})
	if err != nil {
		fmt.Println(Red + "Failed to initialize engine: " + err.Error() + Reset)
		os.Exit(1)
	}

	c := &console{
		eng:   eng,
		vault: vault,
		names: make(map[common.Address]string),
	}

	fmt.Println(Green + "Starting Pair Pool Console..." + Reset)
	fmt.Println("Logs are being written to 'console.log'")
	c.run()
}

func (c *console) run() {
	reader := bufio.NewReader(os.Stdin)
	time.Sleep(200 * time.Millisecond)

	for {
		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)

		if !c.handleCommand(input, reader) {
			return
		}

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "PAIR POOL ENGINE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s List Pools\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Create Pair\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Fund Account %s(credit gateway)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Add Liquidity\n", Cyan, Reset)
	fmt.Printf(" %s5.%s Remove Liquidity\n", Cyan, Reset)
	fmt.Printf(" %s6.%s Quote\n", Cyan, Reset)
	fmt.Printf(" %s7.%s Swap\n", Cyan, Reset)
	fmt.Printf(" %s8.%s Balances %s(by Account)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s9.%s Event Log\n", Cyan, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

// handleCommand dispatches a menu selection; it returns false to quit.
func (c *console) handleCommand(input string, reader *bufio.Reader) bool {
	switch input {
	case "1":
		c.listPools()
	case "2":
		c.createPair(reader)
	case "3":
		c.fund(reader)
	case "4":
		c.addLiquidity(reader)
	case "5":
		c.removeLiquidity(reader)
	case "6":
		c.quote(reader)
	case "7":
		c.swap(reader)
	case "8":
		c.balances(reader)
	case "9":
		c.eventLog()
	case "h":
		printHelp()
	case "q":
		fmt.Println(Yellow + "Bye." + Reset)
		return false
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
	return true
}

func printHelp() {
	fmt.Print("\033[H\033[2J")

	header("PAIR POOL ENGINE")
	fmt.Println("An in-memory constant-product market maker. Each pool holds two")
	fmt.Println("assets and prices swaps so the product of its reserves never")
	fmt.Println("decreases. Liquidity providers hold shares in a per-pool ledger.")
	fmt.Println("")

	fmt.Println(Bold + "NAMES" + Reset)
	fmt.Println("   Anywhere an address is expected you may type a name like")
	fmt.Println("   " + Cyan + "weth" + Reset + " or " + Cyan + "alice" + Reset + ". Names map to deterministic addresses,")
	fmt.Println("   so the same name is the same account in every session.")
	fmt.Println("")

	fmt.Println(Bold + "TYPICAL SESSION" + Reset)
	fmt.Println("   3. Fund " + Cyan + "alice" + Reset + " with " + Cyan + "weth" + Reset + " and " + Cyan + "usdc" + Reset)
	fmt.Println("   2. Create the " + Cyan + "weth/usdc" + Reset + " pair")
	fmt.Println("   4. Add liquidity as alice")
	fmt.Println("   6. Quote, then 7. Swap as another account")
	fmt.Println("   9. Inspect the event log")
}

// --- COMMAND HANDLERS ---

func (c *console) listPools() {
	header("POOLS")

	pools := c.eng.ListPairs()
	if len(pools) == 0 {
		fmt.Println(Yellow + "[INFO] No pools created yet." + Reset)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "POOL\tPAIR\tRESERVES\tSHARES\t")
	fmt.Fprintln(w, "----\t----\t--------\t------\t")
	for _, p := range pools {
		assetA, assetB := p.Assets()
		reserveA, reserveB := p.Reserves()
		fmt.Fprintf(w, "%s\t%s/%s\t%s / %s\t%s\t\n",
			c.label(p.ID()),
			c.label(assetA), c.label(assetB),
			reserveA.Dec(), reserveB.Dec(),
			p.TotalShares().Dec(),
		)
	}
	w.Flush()
}

func (c *console) createPair(reader *bufio.Reader) {
	assetA, ok := c.promptAddress(reader, "First asset")
	if !ok {
		return
	}
	assetB, ok := c.promptAddress(reader, "Second asset")
	if !ok {
		return
	}

	pool, err := c.eng.CreatePair(assetA, assetB)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"Created pool %s for %s/%s%s\n",
		pool.ID().Hex(), c.label(assetA), c.label(assetB), Reset)
}

func (c *console) fund(reader *bufio.Reader) {
	asset, ok := c.promptAddress(reader, "Asset")
	if !ok {
		return
	}
	holder, ok := c.promptAddress(reader, "Account")
	if !ok {
		return
	}
	amount, ok := promptAmount(reader, "Amount")
	if !ok {
		return
	}

	if err := c.vault.Credit(asset, holder, amount); err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"Credited %s %s to %s%s\n",
		amount.Dec(), c.label(asset), c.label(holder), Reset)
}

func (c *console) addLiquidity(reader *bufio.Reader) {
	provider, ok := c.promptAddress(reader, "Provider")
	if !ok {
		return
	}
	assetA, ok := c.promptAddress(reader, "First asset")
	if !ok {
		return
	}
	amountA, ok := promptAmount(reader, "First amount")
	if !ok {
		return
	}
	assetB, ok := c.promptAddress(reader, "Second asset")
	if !ok {
		return
	}
	amountB, ok := promptAmount(reader, "Second amount")
	if !ok {
		return
	}

	shares, err := c.eng.AddLiquidity(provider, assetA, assetB, amountA, amountB)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"Minted %s shares to %s%s\n", shares.Dec(), c.label(provider), Reset)
}

func (c *console) removeLiquidity(reader *bufio.Reader) {
	provider, ok := c.promptAddress(reader, "Provider")
	if !ok {
		return
	}
	assetA, ok := c.promptAddress(reader, "First asset")
	if !ok {
		return
	}
	assetB, ok := c.promptAddress(reader, "Second asset")
	if !ok {
		return
	}
	shares, ok := promptAmount(reader, "Shares to burn")
	if !ok {
		return
	}

	amountA, amountB, err := c.eng.RemoveLiquidity(provider, assetA, assetB, shares)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"Withdrew %s / %s to %s%s\n",
		amountA.Dec(), amountB.Dec(), c.label(provider), Reset)
}

func (c *console) quote(reader *bufio.Reader) {
	fromAsset, ok := c.promptAddress(reader, "From asset")
	if !ok {
		return
	}
	toAsset, ok := c.promptAddress(reader, "To asset")
	if !ok {
		return
	}
	amountIn, ok := promptAmount(reader, "Amount in")
	if !ok {
		return
	}

	out, err := c.eng.Quote(fromAsset, toAsset, amountIn)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"%s %s -> %s %s%s\n",
		amountIn.Dec(), c.label(fromAsset), out.Dec(), c.label(toAsset), Reset)
}

func (c *console) swap(reader *bufio.Reader) {
	trader, ok := c.promptAddress(reader, "Trader")
	if !ok {
		return
	}
	fromAsset, ok := c.promptAddress(reader, "From asset")
	if !ok {
		return
	}
	toAsset, ok := c.promptAddress(reader, "To asset")
	if !ok {
		return
	}
	amountIn, ok := promptAmount(reader, "Amount in")
	if !ok {
		return
	}
	minOut, ok := promptAmount(reader, "Minimum out (0 for any)")
	if !ok {
		return
	}

	out, err := c.eng.Swap(trader, fromAsset, toAsset, amountIn, minOut)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"Swapped %s %s for %s %s%s\n",
		amountIn.Dec(), c.label(fromAsset), out.Dec(), c.label(toAsset), Reset)
}

func (c *console) balances(reader *bufio.Reader) {
	holder, ok := c.promptAddress(reader, "Account")
	if !ok {
		return
	}

	header(strings.ToUpper(fmt.Sprintf("BALANCES FOR %s", c.label(holder))))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "KIND\tASSET/POOL\tBALANCE\t")
	fmt.Fprintln(w, "----\t----------\t-------\t")

	rows := 0
	// Gateway balances for every asset seen in any pool, plus named assets.
	seen := make(map[common.Address]bool)
	for _, p := range c.eng.ListPairs() {
		assetA, assetB := p.Assets()
		for _, asset := range []common.Address{assetA, assetB} {
			if seen[asset] {
				continue
			}
			seen[asset] = true
			if bal := c.vault.BalanceOf(asset, holder); !bal.IsZero() {
				fmt.Fprintf(w, "asset\t%s\t%s\t\n", c.label(asset), bal.Dec())
				rows++
			}
		}
		if shares := p.SharesOf(holder); !shares.IsZero() {
			fmt.Fprintf(w, "shares\t%s\t%s\t\n", c.label(p.ID()), shares.Dec())
			rows++
		}
	}
	for addr := range c.names {
		if seen[addr] {
			continue
		}
		if bal := c.vault.BalanceOf(addr, holder); !bal.IsZero() {
			fmt.Fprintf(w, "asset\t%s\t%s\t\n", c.label(addr), bal.Dec())
			rows++
		}
	}
	w.Flush()

	if rows == 0 {
		fmt.Println(Yellow + "[INFO] No balances found." + Reset)
	}
}

func (c *console) eventLog() {
	header("EVENT LOG")

	evts := c.eng.Events().Snapshot()
	if len(evts) == 0 {
		fmt.Println(Yellow + "[INFO] No events yet." + Reset)
		return
	}
	// Show only the most recent entries to keep the screen readable.
	const maxRows = 20
	if len(evts) > maxRows {
		fmt.Printf(Gray+"(showing last %d of %d)%s\n", maxRows, len(evts), Reset)
		evts = evts[len(evts)-maxRows:]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIME\tTYPE\tDETAIL\t")
	fmt.Fprintln(w, "---\t----\t----\t------\t")
	for _, evt := range evts {
		ts := time.Unix(0, evt.EmittedAt).Format("15:04:05")
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t\n", evt.Sequence, ts, evt.Type, c.describe(evt))
	}
	w.Flush()
}

// describe renders an event payload as a one-line summary.
func (c *console) describe(evt events.Event) string {
	switch data := evt.Data.(type) {
	case events.PairCreated:
		return fmt.Sprintf("%s/%s pool=%s", c.label(data.AssetA), c.label(data.AssetB), c.label(data.Pool))
	case events.LiquidityAdded:
		return fmt.Sprintf("%s +%s/%s shares=%s", c.label(data.Provider),
			data.AmountA.Dec(), data.AmountB.Dec(), data.MintedShares.Dec())
	case events.LiquidityRemoved:
		return fmt.Sprintf("%s -%s/%s shares=%s", c.label(data.Provider),
			data.AmountA.Dec(), data.AmountB.Dec(), data.BurnedShares.Dec())
	case events.Swap:
		return fmt.Sprintf("%s %s %s -> %s %s", c.label(data.Trader),
			data.AmountIn.Dec(), c.label(data.FromAsset), data.AmountOut.Dec(), c.label(data.ToAsset))
	default:
		return fmt.Sprintf("%v", evt.Data)
	}
}

// --- INPUT HELPERS ---

func (c *console) promptAddress(reader *bufio.Reader, label string) (common.Address, bool) {
	fmt.Print("\n" + Bold + "[" + label + "] name or hex address: " + Reset)
	input, err := reader.ReadString('\n')
	if err != nil {
		return common.Address{}, false
	}
	input = strings.TrimSpace(input)
	if input == "" {
		fmt.Println(Red + "[ERROR] Empty input." + Reset)
		return common.Address{}, false
	}
	return c.resolve(input), true
}

func promptAmount(reader *bufio.Reader, label string) (*uint256.Int, bool) {
	fmt.Print(Bold + "[" + label + "] amount: " + Reset)
	input, err := reader.ReadString('\n')
	if err != nil {
		return nil, false
	}
	input = strings.TrimSpace(input)
	amount, err := uint256.FromDecimal(input)
	if err != nil {
		fmt.Printf(Red+"[ERROR] Invalid amount: %v%s\n", err, Reset)
		return nil, false
	}
	return amount, true
}
