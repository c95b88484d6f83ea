package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/TheMichaelB/jobhunt/internal/client"
	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/lambda/handler"
)

// Global handler instance for reuse across warm starts
var h *handler.Handler

func init() {
	c, lambdaCfg, err := client.NewLambdaClient(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize handler: %v", err)
	}

	logger, err := events.NewLogger(&c.Config().Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	h = handler.New(c, lambdaCfg, logger)
}

func main() {
	lambda.Start(h.ProcessEvent)
}
