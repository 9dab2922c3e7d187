package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
)

// errUsage marks a command line that could not be parsed; usage has
// already been printed.
var errUsage = errors.New("usage")

type command struct {
	help string
	run  func(ctx context.Context, a *App, args []string) error
}

var commands = map[string]command{
	"token":         {"mint a control API access token", runToken},
	"genkey":        {"print a fresh session vault key", runGenKey},
	"seal":          {"seal a file or export directory into a .tgbak backup", runSeal},
	"open":          {"open a .tgbak backup", runOpen},
	"verify":        {"check a backup password", runVerify},
	"vault-encrypt": {"encrypt a file with the session vault key", runVaultEncrypt},
	"vault-decrypt": {"decrypt a vault encrypted file", runVaultDecrypt},
	"call":          {"call a control API method", runCall},
}

type App struct {
	out  io.Writer
	errw io.Writer
	dial dialFunc
}

func NewApp(out, errw io.Writer) *App {
	return &App{out: out, errw: errw, dial: dialGRPC}
}

// Run executes one command and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		a.usage()
		if len(args) == 0 {
			return 2
		}
		return 0
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintln(a.errw, "Unknown command:", args[0])
		a.usage()
		return 2
	}

	if err := cmd.run(ctx, a, args[1:]); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintln(a.errw, "error:", err)
		return 1
	}
	return 0
}

func (a *App) usage() {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintln(a.errw, "Usage: tgcli <command> [flags]")
	fmt.Fprintln(a.errw, "Commands:")
	for _, n := range names {
		fmt.Fprintf(a.errw, "  %-14s %s\n", n, commands[n].help)
	}
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errw)
	return fs
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func required(fs *flag.FlagSet, name, value string) error {
	if strings.TrimSpace(value) == "" {
		fmt.Fprintf(fs.Output(), "-%s is required\n", name)
		fs.Usage()
		return errUsage
	}
	return nil
}
