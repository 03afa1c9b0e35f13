package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/amos"
)

// amos-login probes the Amos cloud with a username/password and prints the
// account's diffusers. Useful for finding a device's nid before writing the
// bridge configuration.
func main() {
	username := flag.String("username", "", "Amos account username (required)")
	password := flag.String("password", "", "Amos account password (required)")
	region := flag.String("region", "CN", "Account region: CN or US")
	flag.Parse()

	if *username == "" || *password == "" {
		log.Fatal("❌ Error: -username and -password are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Logging in to Amos cloud...\n")
	fmt.Printf("Region: %s (%s)\n\n", *region, amos.HostForRegion(*region))

	auth := amos.NewAuthService(*region, nil)
	account, err := auth.GetCredentials(ctx, *username, *password)
	if err != nil {
		switch {
		case errors.Is(err, amos.ErrInvalidCredentials):
			log.Fatal("❌ Login rejected: check username and password")
		case errors.Is(err, amos.ErrNoDevices):
			log.Fatal("❌ Login succeeded but the account has no diffusers")
		default:
			log.Fatalf("❌ Error: %v", err)
		}
	}

	fmt.Printf("✅ Login successful\n")
	fmt.Printf("UID: %s\n\n", account.Credentials.UID)

	fmt.Printf("Devices (%d):\n", len(account.Devices))
	for _, device := range account.Devices {
		marker := " "
		if device.NID == account.PrimaryNID {
			marker = "*"
		}
		fmt.Printf("  %s nid=%s  name=%q  model=%s\n", marker, device.NID, device.Name, device.Model)
	}
}
