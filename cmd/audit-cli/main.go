// audit-cli is a command-line client for interacting with an auditd node.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/notemesh/notemesh-audit/config"
	"github.com/notemesh/notemesh-audit/internal/api"
	"github.com/notemesh/notemesh-audit/internal/apiclient"
	"github.com/notemesh/notemesh-audit/internal/wallet"
	"github.com/notemesh/notemesh-audit/pkg/crypto"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// keystoreDir returns the keystore path matching auditd's layout:
// <datadir>/<network>/keystore
func keystoreDir(dataDir, network string) string {
	return filepath.Join(dataDir, network, "keystore")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	apiURL := "http://127.0.0.1:8650"
	dataDir := config.DefaultDataDir()
	network := "mainnet"

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--api" && len(args) > 1:
			apiURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--api="):
			apiURL = args[0][len("--api="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	ksDir := keystoreDir(dataDir, network)
	client := apiclient.New(apiURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(client)
	case "utxos":
		cmdUtxos(client)
	case "faults":
		cmdFaults(client, cmdArgs)
	case "spend":
		cmdSpend(client, cmdArgs)
	case "dot":
		cmdDot(client, cmdArgs)
	case "wallet":
		cmdWallet(cmdArgs, ksDir, client)
	case "help", "--help", "-h":
		usage()
	default:
		fatal("Unknown command: %s (run audit-cli help)", cmd)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: audit-cli [global flags] <command> [flags]

Global flags:
  --api <url>         Auditor API endpoint (default: http://127.0.0.1:8650)
  --datadir <path>    Data directory (default: ~/.notemesh-audit)
  --network <net>     mainnet (default) or testnet

Commands:
  status                          Show auditor status
  utxos                           List the UTXO frontier
  faults [addr]                   Show recorded faults (all, or at one address)
  spend <addr>                    Show the spend recorded at an address
  dot [--out <file>]              Export the spend DAG in DOT format

  wallet create --name <n>        Create a new wallet
  wallet import --name <n> --mnemonic "..."
                                  Import wallet from mnemonic
  wallet list                     List wallets
  wallet address --wallet <w>     Show the wallet's main public key
  wallet balance --wallet <w>     Show wallet balance
  wallet notes --wallet <w>       List unspent notes
  wallet send --wallet <w> --to <pubkey> --amount <n> [--note-out <file>]
                                  Send value; writes the recipient note file
  wallet receive --wallet <w> --note <file>
                                  Record a received note
`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

func parseAddr(s string) types.SpendAddress {
	addr, err := types.ParseSpendAddress(s)
	if err != nil {
		fatal("invalid spend address %q: %v", s, err)
	}
	return addr
}

// ── Auditor queries ─────────────────────────────────────────────────

func cmdStatus(client *apiclient.Client) {
	status, err := client.Status()
	if err != nil {
		fatal("status: %v", err)
	}

	if status.NodeID != "" {
		fmt.Printf("Node:    %s\n", status.NodeID)
		fmt.Printf("Peers:   %d\n", status.Peers)
	}
	fmt.Printf("Source:  %s\n", status.Source)
	fmt.Printf("Entries: %d\n", status.Entries)
	fmt.Printf("UTXOs:   %d\n", status.Utxos)
	fmt.Printf("Faults:  %d\n", status.Faults)
}

func cmdUtxos(client *apiclient.Client) {
	res, err := client.Utxos()
	if err != nil {
		fatal("utxos: %v", err)
	}
	if res.Count == 0 {
		fmt.Println("No unspent outputs known.")
		return
	}
	for _, addr := range res.Utxos {
		fmt.Println(addr)
	}
}

func cmdFaults(client *apiclient.Client, args []string) {
	if len(args) > 0 {
		r, err := client.FaultsAt(parseAddr(args[0]))
		if err != nil {
			fatal("faults: %v", err)
		}
		printFaults(r.Count, r.Faults)
		return
	}
	r, err := client.Faults()
	if err != nil {
		fatal("faults: %v", err)
	}
	printFaults(r.Count, r.Faults)
}

func printFaults(count int, faults []api.FaultEntry) {
	if count == 0 {
		fmt.Println("No faults recorded.")
		return
	}
	for _, f := range faults {
		fmt.Printf("%-22s %s\n", f.Kind, f.Addr)
		if f.Ancestor != "" {
			fmt.Printf("  ancestor: %s\n", f.Ancestor)
		}
		if f.Reason != "" {
			fmt.Printf("  reason:   %s\n", f.Reason)
		}
	}
	fmt.Printf("%d fault(s)\n", count)
}

func cmdSpend(client *apiclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: audit-cli spend <addr>")
	}
	res, err := client.SpendAt(parseAddr(args[0]))
	if err != nil {
		fatal("spend: %v", err)
	}

	fmt.Printf("Address: %s\n", res.Addr)
	fmt.Printf("Status:  %s\n", res.Status)
	for i, ss := range res.Spends {
		fmt.Printf("Spend %d:\n", i+1)
		fmt.Printf("  amount:    %d\n", ss.Spend.Amount)
		fmt.Printf("  parent tx: %s\n", ss.Spend.ParentTx.Hash())
		fmt.Printf("  spent tx:  %s\n", ss.Spend.SpentTx.Hash())
	}
	for _, f := range res.Faults {
		fmt.Printf("Fault: %s\n", f.Kind)
	}
}

func cmdDot(client *apiclient.Client, args []string) {
	fs := flag.NewFlagSet("dot", flag.ExitOnError)
	out := fs.String("out", "", "Output file (default: stdout)")
	fs.Parse(args)

	data, err := client.Dot()
	if err != nil {
		fatal("dot: %v", err)
	}
	if *out == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		fatal("write %s: %v", *out, err)
	}
	fmt.Printf("DAG written to %s\n", *out)
}

// ── Wallet commands ─────────────────────────────────────────────────

func cmdWallet(args []string, ksDir string, client *apiclient.Client) {
	if len(args) < 1 {
		fatal("Usage: audit-cli wallet <create|import|list|address|balance|notes|send|receive> [flags]")
	}

	switch args[0] {
	case "create":
		cmdWalletCreate(args[1:], ksDir)
	case "import":
		cmdWalletImport(args[1:], ksDir)
	case "list":
		cmdWalletList(ksDir)
	case "address":
		cmdWalletAddress(args[1:], ksDir)
	case "balance":
		cmdWalletBalance(args[1:], ksDir)
	case "notes":
		cmdWalletNotes(args[1:], ksDir)
	case "send":
		cmdWalletSend(args[1:], ksDir, client)
	case "receive":
		cmdWalletReceive(args[1:], ksDir)
	default:
		fatal("Unknown wallet command: %s", args[0])
	}
}

func promptNewPassword() []byte {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}
	return password
}

func openWallet(ksDir, name string) *wallet.Wallet {
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	w, err := wallet.Open(ks, name, password)
	if err != nil {
		fatal("open wallet: %v", err)
	}
	return w
}

func cmdWalletCreate(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet create", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: audit-cli wallet create --name <name>")
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}

	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	password := promptNewPassword()

	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("create keystore: %v", err)
	}
	if err := ks.Create(*name, seed, password, wallet.DefaultKDFParams()); err != nil {
		fatal("create wallet: %v", err)
	}
	for i := range seed {
		seed[i] = 0
	}

	w, err := wallet.Open(ks, *name, password)
	if err != nil {
		fatal("open wallet: %v", err)
	}
	defer w.Close()

	fmt.Printf("\nWallet created: %s\n", *name)
	fmt.Printf("Main pubkey: %s\n", hex.EncodeToString(w.MainPubkey()))
}

func cmdWalletImport(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet import", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic (24 words)")
	fs.Parse(args)

	if *name == "" || *mnemonic == "" {
		fatal("Usage: audit-cli wallet import --name <name> --mnemonic \"word1 word2 ...\"")
	}
	if !wallet.ValidateMnemonic(*mnemonic) {
		fatal("invalid mnemonic")
	}

	password := promptNewPassword()

	seed, err := wallet.SeedFromMnemonic(*mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("create keystore: %v", err)
	}
	if err := ks.Create(*name, seed, password, wallet.DefaultKDFParams()); err != nil {
		fatal("import wallet: %v", err)
	}
	for i := range seed {
		seed[i] = 0
	}

	fmt.Printf("Wallet imported: %s\n", *name)
}

func cmdWalletList(ksDir string) {
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	names, err := ks.List()
	if err != nil {
		fatal("list wallets: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No wallets found.")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func cmdWalletAddress(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet address", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)
	if *name == "" {
		fatal("Usage: audit-cli wallet address --wallet <name>")
	}

	w := openWallet(ksDir, *name)
	defer w.Close()
	fmt.Println(hex.EncodeToString(w.MainPubkey()))
}

func cmdWalletBalance(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet balance", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)
	if *name == "" {
		fatal("Usage: audit-cli wallet balance --wallet <name>")
	}

	w := openWallet(ksDir, *name)
	defer w.Close()
	balance, err := w.Balance()
	if err != nil {
		fatal("balance: %v", err)
	}
	fmt.Printf("Balance: %d\n", balance)
}

func cmdWalletNotes(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet notes", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)
	if *name == "" {
		fatal("Usage: audit-cli wallet notes --wallet <name>")
	}

	w := openWallet(ksDir, *name)
	defer w.Close()
	notes, err := w.Notes()
	if err != nil {
		fatal("notes: %v", err)
	}
	if len(notes) == 0 {
		fmt.Println("No unspent notes.")
		return
	}
	for _, n := range notes {
		fmt.Printf("%s  %d\n", hex.EncodeToString(n.Index[:]), n.Amount)
	}
}

// noteFile is the portable form of a note handed to a recipient.
type noteFile struct {
	Index    string             `json:"index"`
	Amount   uint64             `json:"amount"`
	ParentTx ledger.Transaction `json:"parent_tx"`
}

func cmdWalletSend(args []string, ksDir string, client *apiclient.Client) {
	fs := flag.NewFlagSet("wallet send", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	to := fs.String("to", "", "Recipient main public key (hex)")
	amountStr := fs.String("amount", "", "Amount to send")
	noteOut := fs.String("note-out", "", "File to write the recipient note to (default: <wallet>-note.json)")
	fs.Parse(args)

	if *name == "" || *to == "" || *amountStr == "" {
		fatal("Usage: audit-cli wallet send --wallet <name> --to <pubkey> --amount <n> [--note-out <file>]")
	}
	amount, err := strconv.ParseUint(*amountStr, 10, 64)
	if err != nil || amount == 0 {
		fatal("invalid amount %q", *amountStr)
	}
	recipientPub, err := hex.DecodeString(*to)
	if err != nil {
		fatal("invalid recipient pubkey: %v", err)
	}

	w := openWallet(ksDir, *name)
	defer w.Close()

	transfer, err := w.CreateTransfer(amount, recipientPub, crypto.Hash([]byte("transfer")))
	if err != nil {
		fatal("create transfer: %v", err)
	}

	// Record every input spend on the network before handing out the note.
	for _, ss := range transfer.Spends {
		res, err := client.SubmitSpend(ss)
		if err != nil {
			fatal("submit spend: %v", err)
		}
		fmt.Printf("Spend recorded at %s (announced: %v)\n", res.Addr, res.Announced)
	}

	out := *noteOut
	if out == "" {
		out = *name + "-note.json"
	}
	nf := noteFile{
		Index:    hex.EncodeToString(transfer.RecipientNote.Index[:]),
		Amount:   transfer.RecipientNote.Amount,
		ParentTx: transfer.RecipientNote.ParentTx,
	}
	data, err := json.MarshalIndent(&nf, "", "  ")
	if err != nil {
		fatal("marshal note: %v", err)
	}
	if err := os.WriteFile(out, data, 0600); err != nil {
		fatal("write note file: %v", err)
	}

	fmt.Printf("Sent %d to %s\n", amount, *to)
	fmt.Printf("Recipient note written to %s (hand this to the recipient)\n", out)
}

func cmdWalletReceive(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet receive", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	noteIn := fs.String("note", "", "Note file from the sender")
	fs.Parse(args)

	if *name == "" || *noteIn == "" {
		fatal("Usage: audit-cli wallet receive --wallet <name> --note <file>")
	}

	data, err := os.ReadFile(*noteIn)
	if err != nil {
		fatal("read note file: %v", err)
	}
	var nf noteFile
	if err := json.Unmarshal(data, &nf); err != nil {
		fatal("parse note file: %v", err)
	}
	raw, err := hex.DecodeString(nf.Index)
	if err != nil || len(raw) != crypto.DerivationIndexSize {
		fatal("invalid derivation index in note file")
	}
	var idx crypto.DerivationIndex
	copy(idx[:], raw)

	w := openWallet(ksDir, *name)
	defer w.Close()

	note := wallet.Note{Index: idx, Amount: nf.Amount, ParentTx: nf.ParentTx}
	if err := w.Receive(note); err != nil {
		fatal("receive note: %v", err)
	}

	balance, err := w.Balance()
	if err != nil {
		fatal("balance: %v", err)
	}
	fmt.Printf("Note received: %d\n", nf.Amount)
	fmt.Printf("Balance: %d\n", balance)
}
