// Command simulate storms one slot key with concurrent booking requests and
// verifies that the number of admitted appointments never exceeds the slot's
// capacity.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniqly/clinic-scheduling/internal/config"
	"github.com/cliniqly/clinic-scheduling/internal/db"
	"github.com/cliniqly/clinic-scheduling/internal/schedule"
)

type target struct {
	DoctorID       uuid.UUID
	AvailabilityID uuid.UUID
	Capacity       int
	Date           schedule.Date
	Slot           schedule.Slot
}

type metrics struct {
	admitted  int64
	slotFull  int64
	conflict  int64
	errors    int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (m *metrics) record(latency time.Duration, status int) {
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.admitted, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.conflict, 1)
	default:
		atomic.AddInt64(&m.errors, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *metrics) percentile(p int) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	baseURL := getEnv("API_BASE_URL", "http://127.0.0.1:"+cfg.HTTPPort)
	workers := getEnvInt("SIM_WORKERS", 25)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	tgt, err := pickTarget(ctx, pool)
	if err != nil {
		log.Fatalf("pick target slot: %v", err)
	}
	log.Printf("target slot: availability=%s date=%s window=%s-%s capacity=%d",
		tgt.AvailabilityID, tgt.Date, tgt.Slot.Start, tgt.Slot.End, tgt.Capacity)

	accounts, err := patientAccounts(ctx, pool, workers)
	if err != nil {
		log.Fatalf("load patient accounts: %v", err)
	}
	if len(accounts) < workers {
		log.Fatalf("need %d patients in the database, found %d (run cmd/seed first)", workers, len(accounts))
	}

	m := &metrics{}
	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(accountID uuid.UUID) {
			defer wg.Done()
			bookOnce(client, baseURL, cfg.JWTSecret, accountID, tgt, m)
		}(accounts[i])
	}
	wg.Wait()
	elapsed := time.Since(start)

	waiting, err := countWaiting(ctx, pool, tgt)
	if err != nil {
		log.Fatalf("count waiting rows: %v", err)
	}

	fmt.Printf("\n--- booking storm results (%d workers, %s) ---\n", workers, elapsed)
	fmt.Printf("admitted:      %d\n", m.admitted)
	fmt.Printf("slot_full:     %d\n", m.slotFull)
	fmt.Printf("lock_conflict: %d\n", m.conflict)
	fmt.Printf("errors:        %d\n", m.errors)
	fmt.Printf("p50 latency:   %s\n", m.percentile(50))
	fmt.Printf("p95 latency:   %s\n", m.percentile(95))
	fmt.Printf("waiting rows for slot key: %d (capacity %d)\n", waiting, tgt.Capacity)

	if waiting > tgt.Capacity {
		log.Fatalf("CAPACITY VIOLATION: %d waiting rows exceed capacity %d", waiting, tgt.Capacity)
	}
	fmt.Println("capacity bound held")
}

func bookOnce(client *http.Client, baseURL, secret string, accountID uuid.UUID, tgt target, m *metrics) {
	body, _ := json.Marshal(map[string]any{
		"doctor_id":        tgt.DoctorID.String(),
		"availability_id":  tgt.AvailabilityID.String(),
		"appointment_date": tgt.Date.String(),
		"slot_start_time":  tgt.Slot.Start.String(),
		"slot_end_time":    tgt.Slot.End.String(),
		"patient_name":     gofakeit.Name(),
		"patient_relation": "self",
		"visit_type":       "first_time",
	})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&m.errors, 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(secret, accountID))

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		atomic.AddInt64(&m.errors, 1)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		var errResp struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(data, &errResp)
		if errResp.Error == "slot_full" {
			atomic.AddInt64(&m.slotFull, 1)
			m.mu.Lock()
			m.latencies = append(m.latencies, time.Since(start))
			m.mu.Unlock()
			return
		}
	}

	m.record(time.Since(start), resp.StatusCode)
}

func signToken(secret string, accountID uuid.UUID) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id": accountID.String(),
		"role":       "patient",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	return signed
}

// pickTarget finds a verified doctor with an active recurring rule and
// expands it on the next matching date.
func pickTarget(ctx context.Context, pool *pgxpool.Pool) (target, error) {
	var (
		tgt      target
		weekdays []string
		start    string
		end      string
		slotMins int
		disc     string
	)

	err := pool.QueryRow(ctx, `
		SELECT r.id, r.doctor_id, r.weekdays, r.start_time, r.end_time, r.slot_minutes, r.discipline, r.capacity
		FROM availability_rules r
		JOIN doctors d ON d.id = r.doctor_id
		WHERE r.kind = 'recurring' AND r.is_active AND d.verified
		LIMIT 1
	`).Scan(&tgt.AvailabilityID, &tgt.DoctorID, &weekdays, &start, &end, &slotMins, &disc, &tgt.Capacity)
	if err != nil {
		return target{}, err
	}

	rule := schedule.AvailabilityRule{
		ID:          tgt.AvailabilityID,
		DoctorID:    tgt.DoctorID,
		Kind:        schedule.KindRecurring,
		Discipline:  schedule.Discipline(disc),
		SlotMinutes: slotMins,
		Capacity:    tgt.Capacity,
		IsActive:    true,
	}
	for _, w := range weekdays {
		rule.Weekdays = append(rule.Weekdays, schedule.Weekday(w))
	}
	if rule.Start, err = schedule.ParseTimeOfDay(start); err != nil {
		return target{}, err
	}
	if rule.End, err = schedule.ParseTimeOfDay(end); err != nil {
		return target{}, err
	}

	day := time.Now().AddDate(0, 0, 1)
	for i := 0; i < 7; i++ {
		if rule.AppliesTo(schedule.DateOf(day)) {
			break
		}
		day = day.AddDate(0, 0, 1)
	}
	tgt.Date = schedule.DateOf(day)

	slots := schedule.Expand(&rule, tgt.Date)
	if len(slots) == 0 {
		return target{}, fmt.Errorf("rule %s expands to no slots on %s", rule.ID, tgt.Date)
	}
	tgt.Slot = slots[0]

	return tgt, nil
}

func patientAccounts(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT account_id FROM patients LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		accounts = append(accounts, id)
	}
	return accounts, rows.Err()
}

func countWaiting(ctx context.Context, pool *pgxpool.Pool, tgt target) (int, error) {
	var count int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE availability_id = $1
		  AND appointment_date = $2
		  AND slot_start = $3
		  AND slot_end = $4
		  AND status = 'waiting'
	`, tgt.AvailabilityID, tgt.Date.Time(), tgt.Slot.Start.String(), tgt.Slot.End.String()).Scan(&count)
	return count, err
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
