// Command lambda serves the survey API behind API Gateway. It runs the same
// router as cmd/server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	log "github.com/sirupsen/logrus"

	"github.com/danielkorkin/tiktok-depression-survey/internal/app"
	"github.com/danielkorkin/tiktok-depression-survey/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("SURVEY_CONFIG"))
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := app.ConfigureLogging(cfg.Log); err != nil {
		fmt.Printf("Error configuring logging: %v\n", err)
		os.Exit(1)
	}
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.WithError(err).Fatal("initialize application")
	}
	defer a.Close()

	lambda.Start(newGatewayHandler(a.Handler()).Handle)
}
