package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/secureai/privacy-shield/internal/config"
	"github.com/secureai/privacy-shield/internal/logger"
	"github.com/secureai/privacy-shield/internal/redaction"
)

// redactctl redacts text from stdin or files without running the server.
// All input shares one scope, so an entity recurring across files keeps the
// same mask token for the whole invocation.
func main() {
	var (
		scopeID    = flag.String("scope", "cli", "Scope identifier for entity persistence")
		jsonOutput = flag.Bool("json", false, "Emit the full redaction report as JSON")
		detectors  = flag.String("detectors", "all", "Comma-separated entity types to detect, or \"all\"")
	)
	flag.Parse()

	cfg := config.GetDefaults().Redaction
	cfg.Detectors = splitList(*detectors)

	engine, err := redaction.New(cfg, logger.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "redactctl: %v\n", err)
		os.Exit(1)
	}

	inputs := flag.Args()
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}

	exitCode := 0
	for _, name := range inputs {
		text, err := readInput(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redactctl: %s: %v\n", name, err)
			exitCode = 1
			continue
		}

		report, err := engine.Redact(text, *scopeID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redactctl: %s: %v\n", name, err)
			exitCode = 1
			continue
		}

		if *jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				fmt.Fprintf(os.Stderr, "redactctl: %v\n", err)
				exitCode = 1
			}
		} else {
			fmt.Print(report.Redacted)
			if len(report.Redacted) > 0 && report.Redacted[len(report.Redacted)-1] != '\n' {
				fmt.Println()
			}
		}
	}

	os.Exit(exitCode)
}

func readInput(name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(name)
	return string(data), err
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
