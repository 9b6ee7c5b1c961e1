package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"nikand.dev/go/cli"
	"tlog.app/go/tlog"

	"github.com/fray-lang/fray/compiler"
)

const (
	historyFile = ".fray_history"
	prompt      = "fray> "
)

// replAct reads a line at a time. def lines accumulate into the session
// source once they compile; anything else evaluates as an expression by
// wrapping it, together with the accumulated definitions, into a
// synthetic main.
func replAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	fmt.Println("fray repl. Ctrl+D or :quit to exit.")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	var defs []string

	for {
		line, err := ln.Prompt(prompt)
		if err != nil { // io.EOF or liner.ErrPromptAborted
			fmt.Println()
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if line == ":quit" {
			return nil
		}

		ln.AppendHistory(line)

		if strings.HasPrefix(line, "def") {
			src := strings.Join(append(defs[:len(defs):len(defs)], line), "\n")

			if _, err := compiler.Compile(ctx, "repl", []byte(src)); err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}

			defs = append(defs, line)

			continue
		}

		src := fmt.Sprintf("%s\ndef main() { return %s; }",
			strings.Join(defs, "\n"), strings.TrimSuffix(line, ";"))

		r, err := compiler.Run(ctx, "repl", []byte(src))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}

		fmt.Printf("%v\n", r)
	}
}
