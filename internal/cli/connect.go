package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/cliniq/clawd/internal/config"
)

var (
	connectUser     string
	connectProvider string
	connectQR       bool
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Print the OAuth link that connects Google or Slack for a user",
	RunE:  runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&connectUser, "user", "", "User id to bind the connection to")
	connectCmd.Flags().StringVar(&connectProvider, "provider", "google", "Provider to connect: google or slack")
	connectCmd.Flags().BoolVar(&connectQR, "qr", true, "Also write a QR code PNG for scanning from a phone")
	_ = connectCmd.MarkFlagRequired("user")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var link string
	switch connectProvider {
	case "google":
		link = fmt.Sprintf("%s/auth/google/start?userId=%s&perms=%s",
			cfg.Server.PublicBaseURL,
			url.QueryEscape(connectUser),
			url.QueryEscape("google_gmail,google_calendar"))
	case "slack":
		link = fmt.Sprintf("%s/slack/oauth/start?userId=%s",
			cfg.Server.PublicBaseURL, url.QueryEscape(connectUser))
	default:
		return fmt.Errorf("unknown provider %q (want google or slack)", connectProvider)
	}

	fmt.Printf("Open this link to connect %s:\n\n  %s\n\n", color.GreenString(connectProvider), link)

	if connectQR {
		dir, err := config.DataDir()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		qrPath := filepath.Join(dir, "connect-"+connectProvider+".png")
		if err := qrcode.WriteFile(link, qrcode.Medium, 512, qrPath); err != nil {
			return fmt.Errorf("write QR code: %w", err)
		}
		fmt.Printf("QR code saved to %s\n", qrPath)
	}
	return nil
}
