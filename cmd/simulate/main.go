package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthconnect/scheduling/internal/config"
	"github.com/healthconnect/scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	AcceptRatio  float64
	ReadRatio    float64
	PatientLimit int
	SlotLimit    int
	PostgresDSN  string
}

type principal struct {
	UserID    uuid.UUID
	ProfileID uuid.UUID
	Name      string
	Role      string
}

type slotRef struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
}

type apptRef struct {
	ID       uuid.UUID
	Patient  principal
	DoctorID uuid.UUID
}

type DataPool struct {
	Patients []principal
	Doctors  map[uuid.UUID]principal // keyed by doctor profile id
	Slots    []slotRef

	mu           sync.RWMutex
	appointments []apptRef
}

func (dp *DataPool) AddAppointment(a apptRef) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (apptRef, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return apptRef{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	mu        sync.Mutex
	total     int64
	success   int64
	conflict  int64
	errors    int64
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	om.mu.Lock()
	defer om.mu.Unlock()

	om.total++
	switch {
	case success:
		om.success++
	case conflict:
		om.conflict++
	default:
		om.errors++
	}
	om.latencies = append(om.latencies, latency)
}

type latencySummary struct {
	avg, min, max, p50, p95 time.Duration
}

func (om *OperationMetrics) counts() (total, success, conflict, errors int64) {
	om.mu.Lock()
	defer om.mu.Unlock()
	return om.total, om.success, om.conflict, om.errors
}

func (om *OperationMetrics) summarize() latencySummary {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return latencySummary{}
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	return latencySummary{
		avg: sum / time.Duration(len(latencies)),
		min: latencies[0],
		max: latencies[len(latencies)-1],
		p50: percentile(latencies, 50),
		p95: percentile(latencies, 95),
	}
}

// percentile expects a sorted slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type Metrics struct {
	Booking OperationMetrics
	Accept  OperationMetrics
	List    OperationMetrics
	Video   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f accept=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.AcceptRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The pool only feeds the sequential data-pool load.
	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 4)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d doctors, %d slots",
		len(dataPool.Patients), len(dataPool.Doctors), len(dataPool.Slots))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:      getIntEnv("SIM_WORKERS", 10),
		BookingRatio: getFloatEnv("SIM_BOOKING_RATIO", 0.5),
		AcceptRatio:  getFloatEnv("SIM_ACCEPT_RATIO", 0.2),
		ReadRatio:    getFloatEnv("SIM_READ_RATIO", 0.3),
		PatientLimit: getIntEnv("SIM_PATIENT_LIMIT", 1000),
		SlotLimit:    getIntEnv("SIM_SLOT_LIMIT", 2000),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.AcceptRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.AcceptRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{Doctors: make(map[uuid.UUID]principal)}

	rows, err := pool.Query(ctx, `
		SELECT id, user_id, name FROM patients LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := principal{Role: "patient"}
		if err := rows.Scan(&p.ProfileID, &p.UserID, &p.Name); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, p)
	}

	rows, err = pool.Query(ctx, `
		SELECT id, user_id, name FROM doctors WHERE status = 'approved'
	`)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d := principal{Role: "doctor"}
		if err := rows.Scan(&d.ProfileID, &d.UserID, &d.Name); err != nil {
			return nil, err
		}
		dataPool.Doctors[d.ProfileID] = d
	}

	rows, err = pool.Query(ctx, `
		SELECT id, doctor_id FROM slots
		WHERE status = 'available' AND start_time > now()
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s slotRef
		if err := rows.Scan(&s.ID, &s.DoctorID); err != nil {
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, s)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no slots loaded")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.AcceptRatio:
				s.doAccept(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doList(ctx, rng)
				} else {
					s.doVideoAccess(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) newRequest(ctx context.Context, method, url string, body []byte, who principal) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", who.UserID.String())
	req.Header.Set("X-User-Role", who.Role)
	req.Header.Set("X-User-Name", who.Name)
	req.Header.Set("X-Profile-Id", who.ProfileID.String())
	return req, nil
}

// do executes the request and records the outcome. A 409 counts as a
// conflict, not an error: contention is the point of the exercise.
// onSuccess, if set, receives the response body on the expected status.
func (s *Simulator) do(req *http.Request, om *OperationMetrics, okStatus int, onSuccess func(body []byte)) {
	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		om.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case okStatus:
		if onSuccess != nil {
			body, _ := io.ReadAll(resp.Body)
			onSuccess(body)
		}
		om.Record(latency, true, false)
	case http.StatusConflict:
		om.Record(latency, false, true)
	default:
		om.Record(latency, false, false)
	}
}

// doBooking fires patients at a deliberately small slot pool, so a healthy
// share of requests should come back 409 rather than double-booked.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body, _ := json.Marshal(map[string]string{"slot_id": slot.ID.String()})
	req, err := s.newRequest(ctx, "POST", s.config.APIBaseURL+"/appointments", body, patient)
	if err != nil {
		return
	}

	s.do(req, &s.metrics.Booking, http.StatusCreated, func(body []byte) {
		var apptResp struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(body, &apptResp) == nil && apptResp.ID != uuid.Nil {
			s.pool.AddAppointment(apptRef{ID: apptResp.ID, Patient: patient, DoctorID: slot.DoctorID})
		}
	})
}

func (s *Simulator) doAccept(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	doctor, ok := s.pool.Doctors[appt.DoctorID]
	if !ok {
		return
	}

	req, err := s.newRequest(ctx, "POST",
		fmt.Sprintf("%s/appointments/%s/accept", s.config.APIBaseURL, appt.ID), nil, doctor)
	if err != nil {
		return
	}
	s.do(req, &s.metrics.Accept, http.StatusOK, nil)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	req, err := s.newRequest(ctx, "GET", s.config.APIBaseURL+"/appointments", nil, patient)
	if err != nil {
		return
	}
	s.do(req, &s.metrics.List, http.StatusOK, nil)
}

func (s *Simulator) doVideoAccess(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	req, err := s.newRequest(ctx, "GET",
		fmt.Sprintf("%s/appointments/%s/video-access", s.config.APIBaseURL, appt.ID), nil, appt.Patient)
	if err != nil {
		return
	}
	s.do(req, &s.metrics.Video, http.StatusOK, nil)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Accept", &s.metrics.Accept)
	printOperationReport("List", &s.metrics.List)
	printOperationReport("Video access", &s.metrics.Video)
}

func printOperationReport(name string, om *OperationMetrics) {
	total, success, conflict, errCount := om.counts()
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	s := om.summarize()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, pct(errCount))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		s.avg.Round(time.Millisecond), s.min.Round(time.Millisecond), s.max.Round(time.Millisecond),
		s.p50.Round(time.Millisecond), s.p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
