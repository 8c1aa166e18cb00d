package main

import (
	"fmt"
	"os"

	"captcha_relay/internal/app"
	"captcha_relay/internal/client"
	"captcha_relay/internal/notifications"
	"captcha_relay/internal/poller"
	"captcha_relay/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	app.SetupTUIEnvironment()

	c, err := client.New(os.Getenv("RELAY_API_URL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot start operator screen: %v\n", err)
		os.Exit(1)
	}

	p := poller.New(c.FetchState)
	defer p.Stop()

	notifier := notifications.NewClient(
		app.GetEnvWithDefault("NTFY_URL", "https://ntfy.sh"),
		app.GetEnvWithDefault("NTFY_TOPIC", "captcha-relay"),
		app.GetEnvWithDefault("NTFY_ENABLED", "false") == "true",
		app.GetEnvWithDefault("NTFY_PRIORITY", "high"),
	)

	model := tui.NewModel(c, p, notifier)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui exited with error: %v\n", err)
		os.Exit(1)
	}
}
