package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/jmcleod/remotehand/agent"
)

// ---------------------------------------------------------------------------
// Summary types
// ---------------------------------------------------------------------------

type auditRecord struct {
	Event     agent.AuditEvent
	Identity  string
	Timestamp time.Time
}

type auditSummary struct {
	File          string                   `json:"file"`
	Lines         int                      `json:"lines"`
	AuditEntries  int                      `json:"audit_entries"`
	Events        map[agent.AuditEvent]int `json:"events"`
	FailedLogins  map[string]int           `json:"failed_logins,omitempty"`
	GrantedAccess []string                 `json:"granted_access,omitempty"`
	Valid         bool                     `json:"valid"`
	Checks        []checkResult            `json:"checks"`
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "pass", "fail", "warn"
	Detail string `json:"detail,omitempty"`
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// readAuditLog extracts the audit entries from a JSON log stream. Lines that
// are not JSON or not audit entries are counted and skipped.
func readAuditLog(r io.Reader) (records []auditRecord, lines int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		lines++
		line := scanner.Bytes()
		if !gjson.ValidBytes(line) {
			continue
		}
		entry := gjson.ParseBytes(line)
		if entry.Get("component").String() != "audit" {
			continue
		}
		rec := auditRecord{
			Event:    agent.AuditEvent(entry.Get("event").String()),
			Identity: entry.Get("identity").String(),
		}
		if ts := entry.Get("timestamp").String(); ts != "" {
			rec.Timestamp, _ = time.Parse(time.RFC3339, ts)
		}
		records = append(records, rec)
	}
	return records, lines, scanner.Err()
}

// ---------------------------------------------------------------------------
// Core summary logic
// ---------------------------------------------------------------------------

func summarizeAudit(records []auditRecord, maxFailures int) auditSummary {
	s := auditSummary{
		AuditEntries: len(records),
		Events:       make(map[agent.AuditEvent]int),
		FailedLogins: make(map[string]int),
		Valid:        true,
	}
	granted := make(map[string]bool)
	for _, r := range records {
		s.Events[r.Event]++
		switch r.Event {
		case agent.AuditLoginFailure:
			s.FailedLogins[r.Identity]++
		case agent.AuditLoginSuccess:
			granted[r.Identity] = true
		}
	}
	s.GrantedAccess = slices.Sorted(maps.Keys(granted))

	// Check 1: the secret is bootstrapped at most once per store.
	if n := s.Events[agent.AuditSecretSet]; n > 1 {
		s.Checks = append(s.Checks, checkResult{
			Name:   "secret bootstrap",
			Status: "warn",
			Detail: fmt.Sprintf("secret was set %d times; the store may have been reset", n),
		})
	} else {
		s.Checks = append(s.Checks, checkResult{Name: "secret bootstrap", Status: "pass"})
	}

	// Check 2: repeated wrong passwords from one identity.
	var guessers []string
	for identity, n := range s.FailedLogins {
		if n >= maxFailures {
			guessers = append(guessers, identity)
		}
	}
	slices.Sort(guessers)
	if len(guessers) > 0 {
		s.Checks = append(s.Checks, checkResult{
			Name:   "failed logins",
			Status: "warn",
			Detail: fmt.Sprintf("%d identities reached %d failures: %v", len(guessers), maxFailures, guessers),
		})
	} else {
		s.Checks = append(s.Checks, checkResult{Name: "failed logins", Status: "pass"})
	}

	// Check 3: wipe requests with a wrong master key.
	if n := s.Events[agent.AuditWipeRejected]; n > 0 {
		s.Checks = append(s.Checks, checkResult{
			Name:   "master key",
			Status: "warn",
			Detail: fmt.Sprintf("%d wipe requests carried a wrong master key", n),
		})
	} else {
		s.Checks = append(s.Checks, checkResult{Name: "master key", Status: "pass"})
	}

	// Check 4: a wipe was performed.
	if n := s.Events[agent.AuditWipePerformed]; n > 0 {
		s.Valid = false
		s.Checks = append(s.Checks, checkResult{
			Name:   "wipe",
			Status: "fail",
			Detail: fmt.Sprintf("device wipe performed %d times", n),
		})
	} else {
		s.Checks = append(s.Checks, checkResult{Name: "wipe", Status: "pass"})
	}

	// Check 5: timestamps never go backwards.
	var prev time.Time
	ordered := true
	for i, r := range records {
		if r.Timestamp.IsZero() {
			continue
		}
		if r.Timestamp.Before(prev) {
			s.Valid = false
			ordered = false
			s.Checks = append(s.Checks, checkResult{
				Name:   "timestamp ordering",
				Status: "fail",
				Detail: fmt.Sprintf("entry %d (%s) is earlier than the entry before it (%s)", i, r.Timestamp.Format(time.RFC3339), prev.Format(time.RFC3339)),
			})
			break
		}
		prev = r.Timestamp
	}
	if ordered {
		s.Checks = append(s.Checks, checkResult{Name: "timestamp ordering", Status: "pass"})
	}

	return s
}

// ---------------------------------------------------------------------------
// Output formatting
// ---------------------------------------------------------------------------

func printHumanSummary(w io.Writer, s auditSummary) {
	fmt.Fprintf(w, "Audit log summary: %s\n", s.File)
	fmt.Fprintf(w, "Lines:   %d\n", s.Lines)
	fmt.Fprintf(w, "Entries: %d\n\n", s.AuditEntries)

	for _, event := range slices.Sorted(maps.Keys(s.Events)) {
		fmt.Fprintf(w, "  %-26s %d\n", event, s.Events[event])
	}
	if len(s.GrantedAccess) > 0 {
		fmt.Fprintf(w, "\nGranted: %v\n", s.GrantedAccess)
	}
	fmt.Fprintln(w)

	for _, c := range s.Checks {
		tag := "[PASS]"
		switch c.Status {
		case "fail":
			tag = "[FAIL]"
		case "warn":
			tag = "[WARN]"
		}
		if c.Detail != "" {
			fmt.Fprintf(w, "%s %s: %s\n", tag, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "%s %s\n", tag, c.Name)
		}
	}

	fmt.Fprintln(w)
	if s.Valid {
		fmt.Fprintln(w, "Result: OK")
	} else {
		fmt.Fprintln(w, "Result: ATTENTION REQUIRED")
	}
}

func printJSONSummary(w io.Writer, s auditSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// ---------------------------------------------------------------------------
// Cobra command
// ---------------------------------------------------------------------------

var (
	summaryJSONOutput  bool
	summaryMaxFailures int
)

var summaryCmd = &cobra.Command{
	Use:   "summary [file]",
	Short: "Summarize the audit events in an agent log",
	Long: `Reads a JSON log written by "remotehand serve" and summarizes its audit
entries: event counts, identities that were granted access, repeated failed
logins, master key failures and performed wipes.

Exits with status 1 when a wipe was performed or the log is out of order.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummary,
}

func init() {
	auditCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().BoolVar(&summaryJSONOutput, "json", false, "Output results as JSON")
	summaryCmd.Flags().IntVar(&summaryMaxFailures, "max-failures", 5, "Failed logins per identity that raise a warning")
}

func runSummary(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	f, err := os.Open(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot read file: %v\n", err)
		os.Exit(2)
	}
	defer f.Close()

	records, lines, err := readAuditLog(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading log: %v\n", err)
		os.Exit(2)
	}

	summary := summarizeAudit(records, summaryMaxFailures)
	summary.File = filePath
	summary.Lines = lines

	out := cmd.OutOrStdout()
	if summaryJSONOutput {
		if err := printJSONSummary(out, summary); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	} else {
		printHumanSummary(out, summary)
	}

	if !summary.Valid {
		os.Exit(1)
	}
	return nil
}
