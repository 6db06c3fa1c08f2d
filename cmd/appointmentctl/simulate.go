package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"
)

// trafficStats tallies the responses of one kind of request.
type trafficStats struct {
	mu        sync.Mutex
	ok        int
	rejected  int // 4xx
	failed    int // 5xx or transport error
	latencies []time.Duration
}

type trafficSummary struct {
	Total, OK, Rejected, Failed int
	P50, P95                    time.Duration
}

func (s *trafficStats) observe(status int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case status >= 200 && status < 300:
		s.ok++
	case status >= 400 && status < 500:
		s.rejected++
	default:
		s.failed++
	}
	s.latencies = append(s.latencies, latency)
}

func (s *trafficStats) summary() trafficSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := trafficSummary{Total: len(s.latencies), OK: s.ok, Rejected: s.rejected, Failed: s.failed}
	if sum.Total == 0 {
		return sum
	}
	sorted := append([]time.Duration(nil), s.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	sum.P50 = sorted[(sum.Total-1)*50/100]
	sum.P95 = sorted[(sum.Total-1)*95/100]
	return sum
}

type simulation struct {
	baseURL      string
	bookingRatio float64
	insured      []string
	client       *http.Client

	booking, listPath, listQuery trafficStats
}

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive booking and query traffic against a running api-server",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL, _ := cmd.Flags().GetString("base-url")
			duration, _ := cmd.Flags().GetDuration("duration")
			workers, _ := cmd.Flags().GetInt("workers")
			ratio, _ := cmd.Flags().GetFloat64("booking-ratio")
			insured, _ := cmd.Flags().GetInt("insured")
			if workers <= 0 || duration <= 0 || insured <= 0 {
				return fmt.Errorf("--workers, --duration and --insured must be > 0")
			}
			if ratio < 0 || ratio > 1 {
				return fmt.Errorf("--booking-ratio must be between 0 and 1")
			}

			faker := gofakeit.New(0)
			sim := &simulation{
				baseURL:      baseURL,
				bookingRatio: ratio,
				insured:      make([]string, insured),
				client:       &http.Client{Timeout: 10 * time.Second},
			}
			for i := range sim.insured {
				sim.insured[i] = faker.Numerify("#####")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()

			fmt.Printf("simulating %d workers for %s against %s\n", workers, duration, baseURL)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(seed int64) {
					defer wg.Done()
					sim.run(ctx, rand.New(rand.NewSource(seed)))
				}(time.Now().UnixNano() + int64(i))
			}
			wg.Wait()

			for _, op := range []struct {
				name  string
				stats *trafficStats
			}{
				{"POST /appointments", &sim.booking},
				{"GET /appointments/{insuredId}", &sim.listPath},
				{"GET /appointments?insuredId=", &sim.listQuery},
			} {
				s := op.stats.summary()
				fmt.Printf("%-32s total=%d ok=%d rejected=%d failed=%d p50=%s p95=%s\n",
					op.name, s.Total, s.OK, s.Rejected, s.Failed,
					s.P50.Round(time.Millisecond), s.P95.Round(time.Millisecond))
			}
			return nil
		},
	}
	cmd.Flags().String("base-url", "http://localhost:8080", "api-server base URL")
	cmd.Flags().Duration("duration", 30*time.Second, "How long to run")
	cmd.Flags().Int("workers", 10, "Concurrent workers")
	cmd.Flags().Float64("booking-ratio", 0.5, "Share of requests that book, the rest query")
	cmd.Flags().Int("insured", 200, "Distinct insured ids to use")
	return cmd
}

func (s *simulation) run(ctx context.Context, rng *rand.Rand) {
	for ctx.Err() == nil {
		insuredID := s.insured[rng.Intn(len(s.insured))]
		switch {
		case rng.Float64() < s.bookingRatio:
			country := "PE"
			if rng.Intn(2) == 1 {
				country = "CL"
			}
			body, _ := json.Marshal(map[string]any{
				"insuredId":  insuredID,
				"scheduleId": rng.Intn(5000) + 1,
				"countryISO": country,
			})
			s.send(ctx, &s.booking, http.MethodPost, s.baseURL+"/appointments", body)
		case rng.Intn(2) == 0:
			s.send(ctx, &s.listPath, http.MethodGet, s.baseURL+"/appointments/"+insuredID, nil)
		default:
			s.send(ctx, &s.listQuery, http.MethodGet, s.baseURL+"/appointments?insuredId="+insuredID, nil)
		}
	}
}

func (s *simulation) send(ctx context.Context, stats *trafficStats, method, url string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		stats.observe(0, 0)
		return
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			stats.observe(0, time.Since(start))
		}
		return
	}
	resp.Body.Close()
	stats.observe(resp.StatusCode, time.Since(start))
}
