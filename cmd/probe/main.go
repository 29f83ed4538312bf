// Command probe runs end-to-end checks against a running bridge: it drives
// the method channel, subscribes to the event channel, and verifies every
// on_data_changed payload carries the full field set.
//
// Usage:
//
//	go run ./cmd/probe -url http://localhost:8080 -count 3 -config sensor.yaml
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/openweather-bridge/internal/config"
	"github.com/couchcryptid/openweather-bridge/internal/domain"
	"github.com/couchcryptid/openweather-bridge/internal/plugin"
)

// phase tracks pass/fail for a probe phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "bridge base URL")
	count := flag.Int("count", 1, "number of on_data_changed events to check")
	timeout := flag.Duration("timeout", time.Minute, "overall deadline")
	configFile := flag.String("config", "", "optional YAML sensor config sent with initialize")
	flag.Parse()

	if *count <= 0 {
		flag.Usage()
		os.Exit(1)
	}

	sensorCfg, err := config.LoadSensorConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	code := run(ctx, strings.TrimRight(*baseURL, "/"), *count, sensorCfg)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, baseURL string, count int, sensorCfg map[string]any) int {
	pr := &prober{base: baseURL, client: &http.Client{}}

	phases := []*phase{
		pr.checkMethodChannel(ctx, sensorCfg),
		pr.checkEventChannel(ctx, count),
		pr.checkHealth(ctx),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll probes passed.")
		return 0
	}
	fmt.Println("\nProbe FAILED.")
	return 1
}

type prober struct {
	base   string
	client *http.Client
}

type methodReply struct {
	status int
	Result any    `json:"result"`
	Code   string `json:"code"`
	Msg    string `json:"message"`
}

func (pr *prober) call(ctx context.Context, method string, args any) (methodReply, error) {
	body, err := json.Marshal(plugin.MethodCall{Method: method, Arguments: args})
	if err != nil {
		return methodReply{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		pr.base+"/channels/"+plugin.MethodChannelName, bytes.NewReader(body))
	if err != nil {
		return methodReply{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := pr.client.Do(req)
	if err != nil {
		return methodReply{}, err
	}
	defer resp.Body.Close()

	var reply methodReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return methodReply{}, fmt.Errorf("decode %s reply: %w", method, err)
	}
	reply.status = resp.StatusCode
	return reply, nil
}

func (pr *prober) checkMethodChannel(ctx context.Context, sensorCfg map[string]any) *phase {
	p := &phase{name: "Phase 1: Method channel"}

	first, err := pr.call(ctx, plugin.MethodInitialize, sensorCfg)
	if err != nil {
		p.errorf("initialize: %v", err)
		return p
	}
	if first.status != http.StatusOK {
		p.errorf("initialize: status %d: %s %s", first.status, first.Code, first.Msg)
		return p
	}
	if first.Result != nil {
		if _, ok := first.Result.(map[string]any); !ok {
			p.errorf("initialize: result is %T, want object or null", first.Result)
		}
	}

	second, err := pr.call(ctx, plugin.MethodInitialize, map[string]any{"label": "probe-overwrite"})
	switch {
	case err != nil:
		p.errorf("repeat initialize: %v", err)
	case second.status != http.StatusOK || second.Result != nil:
		p.errorf("repeat initialize: status %d result %v, want 200 null", second.status, second.Result)
	}

	unknown, err := pr.call(ctx, "set_label", nil)
	switch {
	case err != nil:
		p.errorf("unknown method: %v", err)
	case unknown.status != http.StatusNotFound:
		p.errorf("unknown method: status %d, want 404", unknown.status)
	}
	return p
}

func (pr *prober) checkEventChannel(ctx context.Context, count int) *phase {
	p := &phase{name: "Phase 2: Event channel (on_data_changed)"}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet,
		pr.base+"/channels/"+plugin.EventChannelName+"?event="+plugin.EventDataChanged, nil)
	if err != nil {
		p.errorf("build stream request: %v", err)
		return p
	}
	resp, err := pr.client.Do(req)
	if err != nil {
		p.errorf("open stream: %v", err)
		return p
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		p.errorf("open stream: status %d", resp.StatusCode)
		return p
	}

	// Each sync produces one event; the stream is already attached.
	go func() {
		for range count {
			if _, err := pr.call(streamCtx, plugin.MethodSync, nil); err != nil {
				return
			}
		}
	}()

	frames := readFrames(resp.Body)
	for i := range count {
		select {
		case f, ok := <-frames:
			if !ok {
				p.errorf("stream closed after %d of %d events", i, count)
				return p
			}
			if f.event != plugin.EventDataChanged {
				p.errorf("event %d: name %q", i, f.event)
			}
			for _, e := range validatePayload(f.data) {
				p.errorf("event %d: %s", i, e)
			}
		case <-ctx.Done():
			p.errorf("timed out after %d of %d events", i, count)
			return p
		}
	}
	return p
}

func (pr *prober) checkHealth(ctx context.Context) *phase {
	p := &phase{name: "Phase 3: Health and readiness"}
	for _, path := range []string{"/healthz", "/readyz"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pr.base+path, nil)
		if err != nil {
			p.errorf("%s: %v", path, err)
			continue
		}
		resp, err := pr.client.Do(req)
		if err != nil {
			p.errorf("%s: %v", path, err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			p.errorf("%s: status %d", path, resp.StatusCode)
		}
	}
	return p
}

type frame struct {
	event string
	data  []byte
}

// readFrames parses a Server-Sent Events body. Comment lines are skipped.
func readFrames(r io.Reader) <-chan frame {
	out := make(chan frame)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		var cur frame
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				if cur.data != nil {
					out <- cur
				}
				cur = frame{}
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "event: "):
				cur.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				cur.data = []byte(strings.TrimPrefix(line, "data: "))
			}
		}
	}()
	return out
}

// validatePayload reports every problem with one on_data_changed payload.
func validatePayload(data []byte) []string {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return []string{fmt.Sprintf("decode payload: %v", err)}
	}

	var errs []string
	for _, k := range domain.DataFields {
		if _, ok := payload[k]; !ok {
			errs = append(errs, fmt.Sprintf("missing field %q", k))
		}
	}
	if ts, _ := payload["timestamp"].(float64); ts <= 0 {
		errs = append(errs, "timestamp must be positive unix millis")
	}
	switch payload["unit"] {
	case domain.UnitsStandard, domain.UnitsMetric, domain.UnitsImperial:
	default:
		errs = append(errs, fmt.Sprintf("unit %v not one of standard, metric, imperial", payload["unit"]))
	}
	if id, _ := payload["deviceId"].(string); id == "" {
		errs = append(errs, "deviceId is empty")
	}
	return errs
}
