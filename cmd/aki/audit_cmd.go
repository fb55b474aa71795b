package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/macterra/Axio-sub003/pkg/rsa"
)

type auditResult struct {
	rsa.AuditReport
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

// runAuditCmd implements `aki audit`: the startup totality and
// differentiation audit for one or every adversary model.
func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		model      string
		jsonOutput bool
	)
	cmd.StringVar(&model, "model", "", "Model to audit (all models when empty)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	names := rsa.ModelNames()
	if model != "" {
		names = []string{model}
	}
	results := make([]auditResult, 0, len(names))
	failed := false
	for _, name := range names {
		m, err := rsa.ParseModel(name)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		rep, err := rsa.Audit(m)
		res := auditResult{AuditReport: rep, Passed: err == nil}
		if err != nil {
			res.Error = err.Error()
			failed = true
		}
		results = append(results, res)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(results, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		for _, r := range results {
			status := "PASS"
			if !r.Passed {
				status = "FAIL"
			}
			_, _ = fmt.Fprintf(stdout, "%s %-26s states=%d combinations=%d differentiated=%t\n",
				status, r.Model, r.States, r.Combinations, r.Differentiated)
			if r.Error != "" {
				_, _ = fmt.Fprintf(stdout, "     %s\n", r.Error)
			}
		}
	}
	if failed {
		return 1
	}
	return 0
}
