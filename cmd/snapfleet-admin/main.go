// snapfleet-admin operates directly on the server's SQLite database for
// bootstrap and break-glass workflows where the JSON-RPC server is not
// running.
package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/snapfleet/snapfleet/pkg/auth"
	"github.com/snapfleet/snapfleet/pkg/database"
	"github.com/snapfleet/snapfleet/pkg/masterpass"
	"github.com/snapfleet/snapfleet/pkg/server"
)

const version = "1.0.0"

func usage() {
	fmt.Fprintf(os.Stderr, `snapfleet-admin v%s - emergency access administration

Usage: snapfleet-admin <command> [flags]

Commands:
  configure-secret   Set or rotate the base secret
  secret-status      Show base secret configuration state
  generate-local     Generate an offline local master password for a device
  local-events       List the local-generation audit trail
  issue-cloud        Issue a time-limited cloud emergency password
  list-cloud         List cloud emergency passwords
  revoke-cloud       Revoke an active cloud emergency password

Run 'snapfleet-admin <command> -h' for command flags.
`, version)
}

func openDatabase(path string) *database.Database {
	db, err := database.NewDatabase(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return db
}

func operatorName(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envOperator := os.Getenv("SNAPFLEET_OPERATOR"); envOperator != "" {
		return envOperator
	}
	return "admin-cli"
}

func cmdConfigureSecret(args []string) {
	fs := flag.NewFlagSet("configure-secret", flag.ExitOnError)
	dbPath := fs.String("db", "snapfleet.db", "Path to SQLite database file")
	secret := fs.String("secret", "", "Base secret value (prompted if not provided)")
	operator := fs.String("operator", "", "Operator identity for the audit record")
	fs.Parse(args)

	secretStr := *secret
	if secretStr == "" {
		fmt.Fprint(os.Stderr, "Base secret: ")
		secretBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nError reading secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr)
		secretStr = string(secretBytes)
	}

	db := openDatabase(*dbPath)
	defer db.Close()

	if err := server.ConfigureBaseSecret(db, secretStr, operatorName(*operator)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Base secret configured.")
}

func cmdSecretStatus(args []string) {
	fs := flag.NewFlagSet("secret-status", flag.ExitOnError)
	dbPath := fs.String("db", "snapfleet.db", "Path to SQLite database file")
	showValue := fs.Bool("show-value", false, "Print the stored secret value")
	fs.Parse(args)

	db := openDatabase(*dbPath)
	defer db.Close()

	status, err := server.GetBaseSecretStatus(db, *showValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !status.IsConfigured {
		fmt.Println("Base secret: not configured")
		return
	}

	fmt.Println("Base secret: configured")
	fmt.Printf("  Updated at: %s\n", time.Unix(status.UpdatedAt, 0).UTC().Format(time.RFC3339))
	fmt.Printf("  Updated by: %s\n", status.UpdatedBy)
	if *showValue {
		fmt.Printf("  Value:      %s\n", status.BaseSecret)
	}
}

func cmdGenerateLocal(args []string) {
	fs := flag.NewFlagSet("generate-local", flag.ExitOnError)
	dbPath := fs.String("db", "snapfleet.db", "Path to SQLite database file")
	deviceID := fs.String("device", "", "Device MAC address (required)")
	reason := fs.String("reason", "", "Reason for the audit record")
	operator := fs.String("operator", "", "Operator identity for the audit record")
	fs.Parse(args)

	if *deviceID == "" {
		fmt.Fprintln(os.Stderr, "Error: -device is required")
		os.Exit(1)
	}

	db := openDatabase(*dbPath)
	defer db.Close()

	response, err := server.GenerateLocalPassword(db, masterpass.NewEngine(), *deviceID, *reason, operatorName(*operator))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Device:   %s\n", response.MACAddress)
	fmt.Printf("Password: %s\n", response.Password)
}

func cmdLocalEvents(args []string) {
	fs := flag.NewFlagSet("local-events", flag.ExitOnError)
	dbPath := fs.String("db", "snapfleet.db", "Path to SQLite database file")
	deviceID := fs.String("device", "", "Filter by device MAC address")
	limit := fs.Int("limit", 50, "Maximum number of entries")
	offset := fs.Int("offset", 0, "Number of entries to skip")
	fs.Parse(args)

	device := *deviceID
	if device != "" {
		canonical, err := masterpass.CanonicalizeMAC(device)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		device = canonical
	}

	db := openDatabase(*dbPath)
	defer db.Close()

	events, err := db.ListLocalPasswordEvents(device, *limit, *offset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(events) == 0 {
		fmt.Println("No local password generations recorded.")
		return
	}

	for _, event := range events {
		fmt.Printf("%s  device=%s  at=%s  by=%s  reason=%q\n",
			event.ID,
			event.DeviceID,
			time.Unix(event.GeneratedAt, 0).UTC().Format(time.RFC3339),
			event.GeneratedBy,
			event.Reason,
		)
	}
}

func cmdIssueCloud(args []string) {
	fs := flag.NewFlagSet("issue-cloud", flag.ExitOnError)
	dbPath := fs.String("db", "snapfleet.db", "Path to SQLite database file")
	deviceID := fs.String("device", "", "Device MAC address (required)")
	validity := fs.Int("validity", 15, "Validity window in minutes (5, 10, 15 or 30)")
	reason := fs.String("reason", "", "Reason for issuance (required)")
	operator := fs.String("operator", "", "Operator identity for the audit record")
	fs.Parse(args)

	if *deviceID == "" {
		fmt.Fprintln(os.Stderr, "Error: -device is required")
		os.Exit(1)
	}

	db := openDatabase(*dbPath)
	defer db.Close()

	response, err := server.IssueCloudPassword(db, *deviceID, *validity, *reason, operatorName(*operator))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("ID:       %s\n", response.ID)
	fmt.Printf("Password: %s\n", auth.NewPasswordManager().FormatPassword(response.Password, true))
	fmt.Printf("Expires:  %s\n", time.Unix(response.ExpiresAt, 0).UTC().Format(time.RFC3339))
	fmt.Println()
	fmt.Println("The password is shown once and cannot be retrieved again.")
	fmt.Println("Spaces are for readability only; enter the password without them.")
}

func cmdListCloud(args []string) {
	fs := flag.NewFlagSet("list-cloud", flag.ExitOnError)
	dbPath := fs.String("db", "snapfleet.db", "Path to SQLite database file")
	deviceID := fs.String("device", "", "Filter by device MAC address")
	limit := fs.Int("limit", 0, "Maximum number of entries")
	offset := fs.Int("offset", 0, "Number of entries to skip")
	fs.Parse(args)

	db := openDatabase(*dbPath)
	defer db.Close()

	entries, err := server.ListCloudPasswords(db, server.ListCloudPasswordsRequest{
		DeviceID: *deviceID,
		Limit:    *limit,
		Offset:   *offset,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(entries) == 0 {
		fmt.Println("No cloud emergency passwords found.")
		return
	}

	for _, entry := range entries {
		fmt.Printf("%s  %-7s  device=%s  issued=%s  by=%s\n",
			entry.ID,
			entry.Status,
			entry.DeviceID,
			time.Unix(entry.IssuedAt, 0).UTC().Format(time.RFC3339),
			entry.IssuedBy,
		)
	}
}

func cmdRevokeCloud(args []string) {
	fs := flag.NewFlagSet("revoke-cloud", flag.ExitOnError)
	dbPath := fs.String("db", "snapfleet.db", "Path to SQLite database file")
	id := fs.String("id", "", "Cloud emergency password ID (required)")
	operator := fs.String("operator", "", "Operator identity for the audit record")
	fs.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "Error: -id is required")
		os.Exit(1)
	}

	db := openDatabase(*dbPath)
	defer db.Close()

	if err := server.RevokeCloudPassword(db, *id, operatorName(*operator)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Revoked %s\n", *id)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "configure-secret":
		cmdConfigureSecret(os.Args[2:])
	case "secret-status":
		cmdSecretStatus(os.Args[2:])
	case "generate-local":
		cmdGenerateLocal(os.Args[2:])
	case "local-events":
		cmdLocalEvents(os.Args[2:])
	case "issue-cloud":
		cmdIssueCloud(os.Args[2:])
	case "list-cloud":
		cmdListCloud(os.Args[2:])
	case "revoke-cloud":
		cmdRevokeCloud(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	case "-version", "--version", "version":
		fmt.Printf("snapfleet-admin v%s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}
