package main

import (
	"context"
	"net/http"
	"os"

	"captcha_relay/internal/app"
	"captcha_relay/internal/server"
	"captcha_relay/internal/sheets"

	"github.com/rs/zerolog/log"
)

func main() {
	app.SetupEnvironment()

	ctx := context.Background()
	cfg := server.Config{
		SpreadsheetID: app.GetRequiredEnv("SPREADSHEET_ID"),
		SheetName:     app.GetEnvWithDefault("SHEET_NAME", "Sheet1"),
	}

	gw := initializeGateway(ctx)
	srv := server.New(gw, cfg)

	addr := app.GetEnvWithDefault("LISTEN_ADDR", ":8080")
	log.Info().
		Str("addr", addr).
		Str("sheet", cfg.SheetName).
		Msg("Starting captcha relay server")

	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		log.Fatal().Err(err).Msg("Server exited")
	}
}

// initializeGateway builds the sheets client from either inline credentials
// JSON or a credentials file, preferring the inline form.
func initializeGateway(ctx context.Context) *sheets.Client {
	log.Debug().Msg("Initializing sheets gateway")

	if credsJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON"); credsJSON != "" {
		gw, err := sheets.NewClientFromJSON(ctx, []byte(credsJSON))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create sheets client from inline credentials")
		}
		return gw
	}

	credsFile := app.GetEnvWithDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json")
	gw, err := sheets.NewClient(ctx, credsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create sheets client")
	}

	log.Debug().Msg("Sheets gateway initialized")
	return gw
}
