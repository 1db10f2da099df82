// Command chaincheck verifies the hash-chained publish change logs on the
// object store. It recomputes every entry hash and the previousHash linkage
// and exits non-zero when any chain is broken, so it can run from cron or CI
// against a deployment's store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"usdmcore/internal/blob"
	"usdmcore/internal/semantic"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chaincheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	driver := fs.String("object-driver", "", "object store driver: fs|memory|s3|sqlite|postgres (defaults to USDMCORE_OBJECT_DRIVER, then fs)")
	root := fs.String("object-root", "", "fs driver root directory")
	protocol := fs.String("protocol", "", "verify a single protocol id (default: every protocol with a change log)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ctx := context.Background()
	store, err := openStore(ctx, *driver, *root)
	if err != nil {
		fmt.Fprintf(stderr, "chaincheck: open object store: %v\n", err)
		return 1
	}
	broken, err := run(ctx, store, *protocol, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "chaincheck: %v\n", err)
		return 1
	}
	if broken > 0 {
		fmt.Fprintf(stderr, "chaincheck: %d broken chain(s)\n", broken)
		return 1
	}
	return 0
}

func openStore(ctx context.Context, driver, root string) (blob.Store, error) {
	if driver == "" {
		if root != "" {
			return blob.NewFilesystem(root)
		}
		return blob.Open(ctx)
	}
	if driver == string(blob.DriverFilesystem) && root != "" {
		return blob.NewFilesystem(root)
	}
	return blob.OpenDriver(ctx, blob.Driver(driver))
}

// run verifies the selected chains, reporting one line per protocol, and
// returns how many chains failed.
func run(ctx context.Context, store blob.Store, protocol string, stdout io.Writer) (int, error) {
	chain := semantic.NewChangeLog(store)
	protocols := []string{protocol}
	if protocol == "" {
		var err error
		protocols, err = chain.Protocols(ctx)
		if err != nil {
			return 0, fmt.Errorf("list change logs: %w", err)
		}
		if len(protocols) == 0 {
			fmt.Fprintln(stdout, "no change logs found")
			return 0, nil
		}
	}
	broken := 0
	for _, id := range protocols {
		entries, err := chain.Load(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("load change log %s: %w", id, err)
		}
		report := semantic.VerifyIntegrity(entries)
		if report.Valid {
			fmt.Fprintf(stdout, "%s: ok (%d entries)\n", id, len(entries))
			continue
		}
		broken++
		fmt.Fprintf(stdout, "%s: BROKEN at entry %d: %s\n", id, *report.BrokenAt, report.Message)
	}
	return broken, nil
}
