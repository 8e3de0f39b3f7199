package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/nsafonov/proofdesk/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-t string   chat transport bot token
//	-a string   chat transport API endpoint
//	-k string   record store token
//	-e string   record store API endpoint
//	-r string   reviewer ids, comma-separated
//	-m string   admin ids, comma-separated
//	-d string   audit database DSN (empty disables the audit trail)
//	-w int      background worker count
//	-q int      background queue size
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-t", "-a", "-k", "-e", "-r", "-m", "-d", "-w", "-q"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.TransportToken, "t", config.TransportToken, "chat transport token")
	fs.StringVar(&config.TransportEndpoint, "a", config.TransportEndpoint, "chat transport endpoint")
	fs.StringVar(&config.StoreToken, "k", config.StoreToken, "record store token")
	fs.StringVar(&config.StoreEndpoint, "e", config.StoreEndpoint, "record store endpoint")
	fs.StringVar(&config.AuditDSN, "d", config.AuditDSN, "audit database DSN")

	reviewers := fs.String("r", "", "reviewer ids, comma-separated")
	admins := fs.String("m", "", "admin ids, comma-separated")
	fs.IntVar(&config.WorkerCount, "w", config.WorkerCount, "background worker count")
	fs.IntVar(&config.WorkerQueueSize, "q", config.WorkerQueueSize, "background queue size")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *reviewers != "" {
		config.ReviewerIDs = parseIDList(*reviewers)
	}
	if *admins != "" {
		config.AdminIDs = parseIDList(*admins)
	}
}

// parseIDList parses "1,2,3" into ids, skipping malformed elements.
func parseIDList(s string) []int64 {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
