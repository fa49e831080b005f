package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type target struct {
	Method         string `json:"method"`
	Path           string `json:"path"`
	ExpectedStatus int    `json:"expected_status"`
	Critical       bool   `json:"critical"`
	Authenticated  bool   `json:"authenticated"`
}

type config struct {
	Targets []target `json:"targets"`
}

type result struct {
	Target   target
	Status   int
	Code     string
	Error    error
	Duration time.Duration
}

func (r result) ok() bool {
	return r.Error == nil && r.Status == r.Target.expected()
}

func (t target) expected() int {
	if t.ExpectedStatus == 0 {
		return http.StatusOK
	}
	return t.ExpectedStatus
}

func main() {
	var (
		base        string
		token       string
		unitID      string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "Call panel API base URL")
	flag.StringVar(&token, "token", os.Getenv("PANEL_SMOKE_TOKEN"), "Bearer token for authenticated targets")
	flag.StringVar(&unitID, "unit", "demo", "Unit id substituted for {unitId} in target paths")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "panel_smoke", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		results  []result
		breaking int
		optional int
	)
	for _, t := range targets {
		res := runTarget(client, base, token, unitID, t)
		if !res.ok() {
			if t.Critical {
				breaking++
			} else {
				optional++
			}
		}
		results = append(results, res)
	}

	printReport(os.Stdout, results)
	fmt.Printf("Critical failures: %d, Optional failures: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func runTarget(client *http.Client, base, token, unitID string, tgt target) result {
	res := result{Target: tgt}
	if client == nil {
		res.Error = errors.New("nil client")
		return res
	}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := strings.ReplaceAll(tgt.Path, "{unitId}", unitID)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		res.Error = err
		return res
	}
	if tgt.Authenticated {
		if token == "" {
			res.Error = errors.New("target needs a token")
			return res
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Error = fmt.Errorf("read body: %w", err)
		return res
	}
	res.Code = errorCode(body)
	return res
}

// errorCode extracts error.code from the API envelope, if any.
func errorCode(body []byte) string {
	var envelope struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return ""
	}
	return envelope.Error.Code
}

func printReport(w io.Writer, results []result) {
	fmt.Fprintln(w, "Call Panel Smoke Report")
	fmt.Fprintln(w, "=======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.ok() {
			status = "FAIL"
		}
		fmt.Fprintf(w, "[%s] %s %s\n", status, res.Target.Method, res.Target.Path)
		if res.Error != nil {
			fmt.Fprintf(w, "  Error: %v\n", res.Error)
			continue
		}
		fmt.Fprintf(w, "  Status: %d (expected %d, %s) | Critical: %t\n", res.Status, res.Target.expected(), res.Duration, res.Target.Critical)
		if res.Code != "" {
			fmt.Fprintf(w, "  Error code: %s\n", res.Code)
		}
	}
}
