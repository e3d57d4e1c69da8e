package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/care-scheduling/internal/config"
	"github.com/hackgods/care-scheduling/internal/db"
	"github.com/hackgods/care-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL     string
	Duration       time.Duration
	Workers        int
	BookingRatio   float64
	LifecycleRatio float64
	ReadRatio      float64
	PatientLimit   int
	ProviderLimit  int
	Days           int
	PostgresDSN    string
}

var reasons = []string{
	"annual physical", "persistent cough", "blood pressure review", "knee pain",
	"medication refill", "skin rash", "lab results", "vaccination",
}

var types = []string{"consultation", "follow_up", "routine_checkup", "telehealth", "lab_work"}

type DataPool struct {
	Patients     []uuid.UUID
	Providers    []uuid.UUID
	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(f *gofakeit.Faker) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[f.Number(0, len(dp.appointments)-1)], true
}

type OperationMetrics struct {
	total    atomic.Int64
	success  atomic.Int64
	conflict atomic.Int64
	failed   atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

// Record classifies a call: 2xx counts as success, 409 as an expected
// conflict, anything else (including transport errors) as a failure.
func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	om.total.Add(1)
	switch {
	case err == nil && status < 300:
		om.success.Add(1)
	case err == nil && status == http.StatusConflict:
		om.conflict.Add(1)
	default:
		om.failed.Add(1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

type LatencySummary struct {
	Avg, Min, Max, P50, P95, P99 time.Duration
}

func (om *OperationMetrics) Latency() LatencySummary {
	om.mu.Lock()
	sorted := slices.Clone(om.latencies)
	om.mu.Unlock()

	if len(sorted) == 0 {
		return LatencySummary{}
	}
	slices.Sort(sorted)

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	at := func(pct int) time.Duration { return sorted[len(sorted)*pct/100] }

	return LatencySummary{
		Avg: sum / time.Duration(len(sorted)),
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		P50: at(50),
		P95: at(95),
		P99: at(99),
	}
}

type Metrics struct {
	Booking        OperationMetrics
	Lifecycle      OperationMetrics
	Reschedule     OperationMetrics
	ReadByID       OperationMetrics
	ListByProvider OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	cfg := loadConfig()
	logger := logging.New(getEnv("LOG_LEVEL", "info"), "dev").With().Str("service", "simulate").Logger()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("lifecycle", cfg.LifecycleRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().Int("patients", len(dataPool.Patients)).Int("providers", len(dataPool.Providers)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: logger,
	}

	sim.Run()
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("verify bookings")
	}
	if overlaps > 0 {
		logger.Error().Int("overlapping_pairs", overlaps).Msg("double booking detected")
		os.Exit(1)
	}
	logger.Info().Msg("verified: no provider is double-booked")
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base config: %v\n", err)
		os.Exit(1)
	}

	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		BookingRatio:   getFloat("SIM_BOOKING_RATIO", 0.5),
		LifecycleRatio: getFloat("SIM_LIFECYCLE_RATIO", 0.2),
		ReadRatio:      getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:   getInt("SIM_PATIENT_LIMIT", 4000),
		ProviderLimit:  getInt("SIM_PROVIDER_LIMIT", 10),
		Days:           getInt("SIM_DAYS", 3),
		PostgresDSN:    baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.LifecycleRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.LifecycleRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	var err error
	if dataPool.Patients, err = loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	if dataPool.Providers, err = loadIDs(ctx, pool, `SELECT id FROM providers ORDER BY id LIMIT $1`, cfg.ProviderLimit); err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Providers) == 0 {
		return nil, fmt.Errorf("no providers loaded")
	}

	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// countOverlaps counts pairs of active appointments of one provider whose
// slots intersect.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.provider_id = b.provider_id
		 AND a.slot_date = b.slot_date
		 AND a.id < b.id
		 AND a.start_minute < b.end_minute
		 AND b.start_minute < a.end_minute
		WHERE a.status IN ('scheduled', 'confirmed', 'checked_in', 'in_progress')
		  AND b.status IN ('scheduled', 'confirmed', 'checked_in', 'in_progress')
	`).Scan(&n)
	return n, err
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	f := gofakeit.New(uint64(time.Now().UnixNano()) + uint64(workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := f.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, f)
			case r < s.config.BookingRatio+s.config.LifecycleRatio:
				s.doLifecycle(ctx, f)
			default:
				if f.Bool() {
					s.doReadByID(ctx, f)
				} else {
					s.doListByProvider(ctx, f)
				}
			}
		}
	}
}

// randomSlot picks a quarter-hour start between 08:00 and 17:45 on one of the
// next few days, so concurrent workers collide often.
func (s *Simulator) randomSlot(f *gofakeit.Faker) (date, start string) {
	day := time.Now().UTC().AddDate(0, 0, f.Number(1, s.config.Days))
	quarter := f.Number(32, 71)
	return day.Format("2006-01-02"), fmt.Sprintf("%02d:%02d", quarter/4, quarter%4*15)
}

func (s *Simulator) doBooking(ctx context.Context, f *gofakeit.Faker) {
	date, start := s.randomSlot(f)
	body := map[string]any{
		"patient_id":       s.pool.Patients[f.Number(0, len(s.pool.Patients)-1)].String(),
		"provider_id":      s.pool.Providers[f.Number(0, len(s.pool.Providers)-1)].String(),
		"date":             date,
		"start_time":       start,
		"appointment_type": f.RandomString(types),
		"reason_for_visit": f.RandomString(reasons),
	}

	began := time.Now()
	status, respBody, err := s.call(ctx, http.MethodPost, "/appointments", body)
	s.metrics.Booking.Record(time.Since(began), status, err)

	if err == nil && status == http.StatusCreated {
		var appt struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(respBody, &appt) == nil && appt.ID != uuid.Nil {
			s.pool.AddAppointment(appt.ID)
		}
	}
}

// doLifecycle drives a known appointment through a random command. Conflicts
// here are mostly invalid transitions and are expected.
func (s *Simulator) doLifecycle(ctx context.Context, f *gofakeit.Faker) {
	id, ok := s.pool.RandomAppointment(f)
	if !ok {
		return
	}
	path := "/appointments/" + id.String()

	if f.Number(0, 4) == 0 {
		date, start := s.randomSlot(f)
		began := time.Now()
		status, _, err := s.call(ctx, http.MethodPost, path+"/reschedule", map[string]any{"date": date, "start_time": start})
		s.metrics.Reschedule.Record(time.Since(began), status, err)
		return
	}

	var body any
	cmd := f.RandomString([]string{"confirm", "check-in", "start", "complete", "cancel"})
	if cmd == "cancel" {
		body = map[string]any{"reason": "simulated", "by_patient": f.Bool()}
	}

	began := time.Now()
	status, _, err := s.call(ctx, http.MethodPost, path+"/"+cmd, body)
	s.metrics.Lifecycle.Record(time.Since(began), status, err)
}

func (s *Simulator) doReadByID(ctx context.Context, f *gofakeit.Faker) {
	id, ok := s.pool.RandomAppointment(f)
	if !ok {
		return
	}

	began := time.Now()
	status, _, err := s.call(ctx, http.MethodGet, "/appointments/"+id.String(), nil)
	s.metrics.ReadByID.Record(time.Since(began), status, err)
}

func (s *Simulator) doListByProvider(ctx context.Context, f *gofakeit.Faker) {
	providerID := s.pool.Providers[f.Number(0, len(s.pool.Providers)-1)]

	began := time.Now()
	status, _, err := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/appointments?provider_id=%s&limit=20&offset=0", providerID), nil)
	s.metrics.ListByProvider.Record(time.Since(began), status, err)
}

func (s *Simulator) call(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Lifecycle", &s.metrics.Lifecycle)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Provider", &s.metrics.ListByProvider)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := om.total.Load()
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	ms := func(d time.Duration) time.Duration { return d.Round(time.Millisecond) }

	fmt.Printf("%s: %d calls\n", name, total)
	fmt.Printf("  ok=%d (%.1f%%) conflict=%d (%.1f%%) failed=%d (%.1f%%)\n",
		om.success.Load(), pct(om.success.Load()),
		om.conflict.Load(), pct(om.conflict.Load()),
		om.failed.Load(), pct(om.failed.Load()))

	l := om.Latency()
	fmt.Printf("  latency avg=%s min=%s p50=%s p95=%s p99=%s max=%s\n\n",
		ms(l.Avg), ms(l.Min), ms(l.P50), ms(l.P95), ms(l.P99), ms(l.Max))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
