package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Posts a deposit.paid event to a running API, for local testing of the
// deposit webhook path without a payment provider.
func main() {
	var (
		baseURL     = flag.String("base-url", getenv("BASE_URL", "http://localhost:8080"), "api base url")
		appointment = flag.String("appointment-id", getenv("APPOINTMENT_ID", ""), "appointment to mark paid")
		eventID     = flag.String("event-id", "", "event id (defaults to a fresh one; reuse to test dedupe)")
	)
	flag.Parse()

	if strings.TrimSpace(*appointment) == "" {
		fatal("APPOINTMENT_ID is required")
	}

	now := time.Now().UTC()
	id := strings.TrimSpace(*eventID)
	if id == "" {
		id = fmt.Sprintf("evt_local_%d", now.UnixNano())
	}

	payload, err := json.Marshal(map[string]any{
		"event_id":       id,
		"type":           "deposit.paid",
		"appointment_id": strings.TrimSpace(*appointment),
		"occurred_at":    now.Format(time.RFC3339),
	})
	if err != nil {
		fatal(err.Error())
	}

	req, err := http.NewRequest(http.MethodPost,
		strings.TrimRight(*baseURL, "/")+"/api/v1/public/deposit/webhook", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	fmt.Printf("event_id=%s status=%d\n", id, resp.StatusCode)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
