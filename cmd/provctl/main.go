// provctl drives a running provenance gateway from the command line:
//
//	provctl batch create -id B1 -name Widget -location Factory
//	provctl batch scan -id B1 -location Port -status Shipped
//	provctl history -id B1
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const usage = `usage:
  provctl batch create -id <id> -name <name> -location <location> [-gateway <url>] [-idempotency-key <key>]
  provctl batch scan   -id <id> -location <location> -status <status> [-gateway <url>] [-idempotency-key <key>]
  provctl history      -id <id> [-gateway <url>]`

func main() {
	if len(os.Args) < 2 {
		fail(usage)
	}
	switch os.Args[1] {
	case "batch":
		runBatch(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	default:
		fail(usage)
	}
}

func runBatch(args []string) {
	if len(args) < 1 {
		fail(usage)
	}
	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("batch create", flag.ExitOnError)
		gateway := fs.String("gateway", envOr("GATEWAY_URL", "http://localhost:3000"), "gateway base URL")
		id := fs.String("id", "", "batch identifier")
		name := fs.String("name", "", "batch name")
		location := fs.String("location", "", "initial location")
		idemKey := fs.String("idempotency-key", "", "idempotency key for safe retries")
		_ = fs.Parse(args[1:])
		if *id == "" || *name == "" || *location == "" {
			fail("batch create requires -id, -name and -location")
		}
		post(*gateway+"/api/batch/create", map[string]string{
			"id": *id, "name": *name, "initialLocation": *location,
		}, *idemKey)
	case "scan":
		fs := flag.NewFlagSet("batch scan", flag.ExitOnError)
		gateway := fs.String("gateway", envOr("GATEWAY_URL", "http://localhost:3000"), "gateway base URL")
		id := fs.String("id", "", "batch identifier")
		location := fs.String("location", "", "scan location")
		status := fs.String("status", "", "new status")
		idemKey := fs.String("idempotency-key", "", "idempotency key for safe retries")
		_ = fs.Parse(args[1:])
		if *id == "" || *location == "" || *status == "" {
			fail("batch scan requires -id, -location and -status")
		}
		post(*gateway+"/api/batch/scan", map[string]string{
			"id": *id, "location": *location, "status": *status,
		}, *idemKey)
	default:
		fail(usage)
	}
}

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	gateway := fs.String("gateway", envOr("GATEWAY_URL", "http://localhost:3000"), "gateway base URL")
	id := fs.String("id", "", "batch identifier")
	_ = fs.Parse(args)
	if *id == "" {
		fail("history requires -id")
	}
	resp, err := httpClient().Get(*gateway + "/api/history/" + *id)
	if err != nil {
		fail(err.Error())
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func post(url string, body map[string]string, idemKey string) {
	b, _ := json.Marshal(body)
	req, err := http.NewRequest("POST", url, bytes.NewReader(b))
	if err != nil {
		fail(err.Error())
	}
	req.Header.Set("content-type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		fail(err.Error())
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func printResponse(resp *http.Response) {
	raw, _ := io.ReadAll(resp.Body)
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
