package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/macterra/Axio-sub003/pkg/artifacts"
	"github.com/macterra/Axio-sub003/pkg/store"
)

type verifyReport struct {
	Source   string `json:"source"`
	RunID    string `json:"run_id"`
	Verified bool   `json:"verified"`
	Hash     string `json:"event_log_hash,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// runVerifyCmd implements `aki verify`: recompute the event hash chain of a
// stored run or an archived bundle.
//
// Exit codes:
//
//	0 = chain verified
//	1 = verification failed
//	2 = usage or runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		db         string
		runID      string
		location   string
		digest     string
		jsonOutput bool
	)
	cmd.StringVar(&db, "db", "", "Run store (SQLite file or postgres:// DSN)")
	cmd.StringVar(&runID, "run", "", "Run id to verify from --db")
	cmd.StringVar(&location, "artifacts", "", "Artifact location holding the bundle")
	cmd.StringVar(&digest, "digest", "", "Bundle digest to verify from --artifacts")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	dbMode := db != "" && runID != ""
	bundleMode := location != "" && digest != ""
	if dbMode == bundleMode {
		_, _ = fmt.Fprintln(stderr, "Error: use either --db with --run or --artifacts with --digest")
		return 2
	}

	ctx := context.Background()
	var rep verifyReport
	if dbMode {
		s, err := store.Open(ctx, db)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		defer func() { _ = s.Close() }()
		rep = verifyReport{Source: db, RunID: runID}
		rep.Hash, err = s.VerifyRun(ctx, runID)
		rep.Verified = err == nil
		if err != nil {
			rep.Reason = err.Error()
		}
	} else {
		blobs, err := artifacts.Open(ctx, location)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		rep = verifyReport{Source: digest}
		b, err := artifacts.Fetch(ctx, blobs, digest)
		if err != nil {
			rep.Reason = err.Error()
		} else {
			rep.RunID = b.RunID
			rep.Hash = b.Summary.EventLogHash
			rep.Verified = true
		}
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(rep, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else if rep.Verified {
		_, _ = fmt.Fprintf(stdout, "PASS %s: chain %s\n", rep.RunID, rep.Hash)
	} else {
		_, _ = fmt.Fprintf(stdout, "FAIL %s: %s\n", rep.Source, rep.Reason)
	}
	if !rep.Verified {
		return 1
	}
	return 0
}
