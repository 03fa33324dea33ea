// Package main provides operator commands for platform API keys and webhook
// signing keys.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	apikeyservice "likeness/internal/apikey/service"
	apikeystore "likeness/internal/apikey/store"
	"likeness/internal/platform/postgres"
	webhookservice "likeness/internal/webhook/service"
	id "likeness/pkg/domain"
	strs "likeness/pkg/platform/strings"
)

const usage = `usage: keyctl <command> [flags]

commands:
  issue        create a platform API key and print its secret once
  list         list platform API keys
  scopes       replace the scopes of a key
  deactivate   deactivate a key
  webhook-key  print the signing key a subscriber of an event family verifies with
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "issue":
		return runIssue(ctx, rest, out)
	case "list":
		return runList(ctx, rest, out)
	case "scopes":
		return runScopes(ctx, rest, out)
	case "deactivate":
		return runDeactivate(ctx, rest, out)
	case "webhook-key":
		return runWebhookKey(rest, out)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

// keyFlags registers the database flag shared by the key commands.
func keyFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	dsn := fs.String("database-url", os.Getenv("LIKENESS_DATABASE_URL"), "postgres URL (default: LIKENESS_DATABASE_URL)")
	return fs, dsn
}

func openService(ctx context.Context, dsn string) (*apikeyservice.Service, func(), error) {
	if dsn == "" {
		return nil, nil, errors.New("-database-url or LIKENESS_DATABASE_URL is required")
	}
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	svc := apikeyservice.New(apikeystore.NewPostgres(db))
	return svc, func() { _ = db.Close() }, nil
}

func runIssue(ctx context.Context, args []string, out io.Writer) error {
	fs, dsn := keyFlags("issue")
	name := fs.String("name", "", "display name of the key")
	scopes := fs.String("scopes", "", "comma-separated scopes")
	ttl := fs.Duration("ttl", 0, "lifetime of the key (0 = no expiry)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ttl < 0 {
		return errors.New("-ttl must be >= 0")
	}

	svc, closeDB, err := openService(ctx, *dsn)
	if err != nil {
		return err
	}
	defer closeDB()

	var expiresAt *time.Time
	if *ttl > 0 {
		at := time.Now().UTC().Add(*ttl)
		expiresAt = &at
	}
	issued, err := svc.Issue(ctx, *name, strs.SplitList(*scopes), expiresAt)
	if err != nil {
		return err
	}
	return writeJSON(out, issued)
}

func runList(ctx context.Context, args []string, out io.Writer) error {
	fs, dsn := keyFlags("list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	svc, closeDB, err := openService(ctx, *dsn)
	if err != nil {
		return err
	}
	defer closeDB()

	keys, err := svc.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPREFIX\tNAME\tSCOPES\tACTIVE\tEXPIRES\tLAST USED")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
			k.ID, k.KeyPrefix, k.Name, strings.Join(k.Scopes, ","), k.IsActive,
			formatTime(k.ExpiresAt), formatTime(k.LastUsedAt))
	}
	return tw.Flush()
}

func runScopes(ctx context.Context, args []string, out io.Writer) error {
	fs, dsn := keyFlags("scopes")
	rawID := fs.String("id", "", "key id")
	scopes := fs.String("scopes", "", "comma-separated scopes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	keyID, err := id.ParseAPIKeyID(*rawID)
	if err != nil {
		return fmt.Errorf("-id: %w", err)
	}
	svc, closeDB, err := openService(ctx, *dsn)
	if err != nil {
		return err
	}
	defer closeDB()

	key, err := svc.UpdateScopes(ctx, keyID, strs.SplitList(*scopes))
	if err != nil {
		return err
	}
	return writeJSON(out, key)
}

func runDeactivate(ctx context.Context, args []string, out io.Writer) error {
	fs, dsn := keyFlags("deactivate")
	rawID := fs.String("id", "", "key id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	keyID, err := id.ParseAPIKeyID(*rawID)
	if err != nil {
		return fmt.Errorf("-id: %w", err)
	}
	svc, closeDB, err := openService(ctx, *dsn)
	if err != nil {
		return err
	}
	defer closeDB()

	key, err := svc.Deactivate(ctx, keyID)
	if err != nil {
		return err
	}
	return writeJSON(out, key)
}

// runWebhookKey derives the per-family key offline from the shared secret; no
// database is involved.
func runWebhookKey(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("webhook-key", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("LIKENESS_WEBHOOK_SECRET"), "webhook secret (default: LIKENESS_WEBHOOK_SECRET)")
	family := fs.String("family", "", "event family, e.g. registry or usage")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return errors.New("-secret or LIKENESS_WEBHOOK_SECRET is required")
	}
	if *family == "" {
		return errors.New("-family is required")
	}
	key, err := webhookservice.NewKeyRing(*secret).KeyFor(*family)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hex.EncodeToString(key))
	return err
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
