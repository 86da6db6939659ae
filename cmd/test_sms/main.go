package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/clientcomm/core/internal/config"
	"github.com/clientcomm/core/internal/logger"
	"github.com/clientcomm/core/internal/transport"
)

func main() {
	to := flag.String("to", "", "destination number")
	from := flag.String("from", "", "department number to send from")
	body := flag.String("body", "ClientComm test message", "message text")
	wait := flag.Duration("wait", 10*time.Second, "how long to wait before checking delivery status")
	flag.Parse()

	if *to == "" || *from == "" {
		log.Fatal("-to and -from are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zlog, err := logger.NewLogger("debug", "console", "test_sms")
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	client := transport.NewClient(transport.Config{
		AccountSID:    cfg.TwilioAccountSID,
		AuthToken:     cfg.TwilioAuthToken,
		APIBaseURL:    cfg.TwilioAPIBaseURL,
		LookupBaseURL: cfg.TwilioLookupBaseURL,
		RateLimit:     cfg.TwilioRateLimit,
		Timeout:       time.Duration(cfg.TwilioTimeout) * time.Second,
	}, zlog)

	ctx, cancel := context.WithTimeout(context.Background(), *wait+30*time.Second)
	defer cancel()

	normalized, err := client.NormalizeNumber(ctx, *to)
	if err != nil {
		log.Fatalf("lookup %s: %v", *to, err)
	}
	log.Printf("Sending to %s", normalized)

	info, err := client.Send(ctx, transport.SendRequest{To: normalized, From: *from, Body: *body})
	if err != nil {
		log.Fatalf("send: %v", err)
	}
	log.Printf("Accepted: sid=%s status=%s", info.SID, info.Status)

	time.Sleep(*wait)
	status, err := client.LookupStatus(ctx, info.SID)
	if err != nil {
		log.Fatalf("lookup status: %v", err)
	}
	log.Printf("Status after %s: %s", *wait, status)
}
