// Loadtest opens many concurrent WebSocket clients against the load balancer
// and reports throughput, latency percentiles and backend distribution.
//
// Usage:
//
//	go run ./scripts/loadtest -url ws://localhost:8080/ -concurrency 10 -clients 1000
//	go run ./scripts/loadtest -clients 5000 -messages 20 -csv results.csv -out summary.json
//
// Each client gets a fake source IP through X-Forwarded-For (50 distinct
// addresses) so ip-hash stickiness can be observed; the balancer must list
// the loadtest host under server.trusted_proxies for them to count. A client reads the
// backend greeting, sends -messages text messages, waits for every echo and
// closes normally.
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type greeting struct {
	Backend string `json:"backend"`
}

type result struct {
	idx      int
	clientIP string
	backend  string
	status   string
	duration time.Duration
}

type backendStats struct {
	Count     int             `json:"count"`
	Success   int             `json:"success"`
	Failure   int             `json:"failure"`
	Latencies []time.Duration `json:"-"`
}

func main() {
	var (
		url         = flag.String("url", "ws://localhost:8080/", "Load balancer URL")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
		clients     = flag.Int("clients", 100, "Total number of client connections")
		messages    = flag.Int("messages", 5, "Messages each client sends")
		timeoutSec  = flag.Int("timeout", 10, "Per-client timeout in seconds")
		outJSON     = flag.String("out", "", "Write JSON summary to this file (optional)")
		outCSV      = flag.String("csv", "", "Write per-client CSV to this file (optional)")
		verbose     = flag.Bool("v", false, "Verbose per-client logging to stdout")
	)
	flag.Parse()

	dialer := &websocket.Dialer{HandshakeTimeout: time.Duration(*timeoutSec) * time.Second}

	jobs := make(chan int)
	results := make(chan result)
	var failures atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				r := runClient(dialer, *url, idx, *messages, time.Duration(*timeoutSec)*time.Second)
				if r.status != "ok" {
					failures.Add(1)
				}
				if *verbose {
					fmt.Printf("idx=%d backend=%s status=%s dur=%v\n", r.idx, r.backend, r.status, r.duration)
				}
				results <- r
			}
		}()
	}

	go func() {
		for i := 0; i < *clients; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var csvWriter *csv.Writer
	if *outCSV != "" {
		f, err := os.Create(*outCSV)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create csv file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		csvWriter = csv.NewWriter(f)
		_ = csvWriter.Write([]string{"idx", "timestamp", "client_ip", "backend", "status", "duration_ms"})
	}

	testStart := time.Now()
	stats := make(map[string]*backendStats)
	statuses := make(map[string]int)
	var all []time.Duration

	for r := range results {
		statuses[r.status]++
		all = append(all, r.duration)

		bs, ok := stats[r.backend]
		if !ok {
			bs = &backendStats{}
			stats[r.backend] = bs
		}
		bs.Count++
		if r.status == "ok" {
			bs.Success++
		} else {
			bs.Failure++
		}
		bs.Latencies = append(bs.Latencies, r.duration)

		if csvWriter != nil {
			_ = csvWriter.Write([]string{
				strconv.Itoa(r.idx),
				time.Now().Format(time.RFC3339Nano),
				r.clientIP,
				r.backend,
				r.status,
				fmt.Sprintf("%.3f", float64(r.duration.Microseconds())/1000.0),
			})
		}
	}

	if csvWriter != nil {
		csvWriter.Flush()
	}

	totalDuration := time.Since(testStart)
	throughput := float64(*clients) / totalDuration.Seconds()

	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Target: %s\n", *url)
	fmt.Printf("Clients: %d  Messages/client: %d  Concurrency: %d\n", *clients, *messages, *concurrency)
	fmt.Printf("Failures: %d\n", failures.Load())
	fmt.Printf("Duration: %v  Throughput: %.2f clients/s\n", totalDuration, throughput)

	fmt.Println("\nStatuses:")
	for _, k := range sortedKeys(statuses) {
		fmt.Printf("  %s -> %d\n", k, statuses[k])
	}

	fmt.Println("\nBackend distribution:")
	for _, k := range sortedKeys(stats) {
		bs := stats[k]
		fmt.Printf("  %s -> total=%d success=%d failure=%d p50=%v p99=%v\n",
			k, bs.Count, bs.Success, bs.Failure, percentile(bs.Latencies, 0.50), percentile(bs.Latencies, 0.99))
	}

	if len(all) > 0 {
		fmt.Printf("\nOverall latencies: samples=%d p50=%v p90=%v p95=%v p99=%v\n",
			len(all), percentile(all, 0.50), percentile(all, 0.90), percentile(all, 0.95), percentile(all, 0.99))
	}

	if *outJSON != "" {
		report := map[string]any{
			"target":         *url,
			"clients":        *clients,
			"messages":       *messages,
			"concurrency":    *concurrency,
			"failures":       failures.Load(),
			"duration_ms":    totalDuration.Milliseconds(),
			"throughput_cps": throughput,
			"statuses":       statuses,
			"backends":       stats,
		}

		f, err := os.Create(*outJSON)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create json file: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		f.Close()
		fmt.Printf("\nWrote JSON summary to %s\n", *outJSON)
	}

	if failures.Load() > 0 {
		os.Exit(2)
	}
}

func runClient(dialer *websocket.Dialer, url string, idx, messages int, timeout time.Duration) result {
	start := time.Now()
	r := result{
		idx:      idx,
		clientIP: fmt.Sprintf("192.168.1.%d", (idx%50)+1),
		backend:  "(none)",
	}

	header := http.Header{}
	header.Set("X-Forwarded-For", r.clientIP)

	conn, resp, err := dialer.Dial(url, header)
	if err != nil {
		r.status = "dial_error"
		if resp != nil {
			r.status = "http_" + strconv.Itoa(resp.StatusCode)
		}
		r.duration = time.Since(start)
		return r
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	_, data, err := conn.ReadMessage()
	if err != nil {
		r.status = closeStatus(err)
		r.duration = time.Since(start)
		return r
	}

	var g greeting
	if json.Unmarshal(data, &g) == nil && g.Backend != "" {
		r.backend = g.Backend
	}

	for i := 0; i < messages; i++ {
		payload := fmt.Sprintf("client-%d-message-%d", idx, i)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			r.status = "write_error"
			r.duration = time.Since(start)
			return r
		}
		_, echo, err := conn.ReadMessage()
		if err != nil {
			r.status = closeStatus(err)
			r.duration = time.Since(start)
			return r
		}
		if string(echo) != payload {
			r.status = "bad_echo"
			r.duration = time.Since(start)
			return r
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	r.status = "ok"
	r.duration = time.Since(start)
	return r
}

func closeStatus(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return "close_" + strconv.Itoa(closeErr.Code)
	}
	return "read_error"
}

func percentile(durations []time.Duration, p float64) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	tmp := make([]time.Duration, len(durations))
	copy(tmp, durations)
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })
	return tmp[int(float64(len(tmp)-1)*p)]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
