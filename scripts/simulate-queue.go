// Load simulation for the registration gatekeeper. Creates N sessions against
// a local Redis, polls their admission status, and randomly completes or
// abandons admitted ones so the queue drains realistically.
//
// Usage:
//
//	go run scripts/simulate-queue.go --event summer-camp-2026 --users 200
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vogiaan1904/regflow-gatekeeper/internal/models"
	repo "github.com/vogiaan1904/regflow-gatekeeper/internal/repository/redis"
	"github.com/vogiaan1904/regflow-gatekeeper/internal/service"
	pkgLog "github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

var (
	redisAddr    = flag.String("redis", "localhost:6379", "Redis address (host:port)")
	redisPass    = flag.String("password", "", "Redis password")
	eventID      = flag.String("event", "", "Event ID (required)")
	numUsers     = flag.Int("users", 200, "Number of sessions to simulate")
	lane         = flag.String("lane", models.LaneIndividual, "Registration type lane")
	maxActive    = flag.Int("cap", 20, "Lane concurrency cap")
	timeout      = flag.Duration("timeout", 30*time.Second, "Lane session timeout")
	completeRate = flag.Float64("complete-rate", 0.5, "Probability an admitted session completes per tick")
	tick         = flag.Duration("tick", 2*time.Second, "Polling interval")
	duration     = flag.Duration("duration", 2*time.Minute, "Total simulation duration")
)

func main() {
	flag.Parse()

	if *eventID == "" {
		fmt.Println("Error: --event flag is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx := context.Background()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     *redisAddr,
		Password: *redisPass,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Printf("Failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Connected to Redis at %s\n", *redisAddr)

	l := pkgLog.InitializeTestZapLogger()
	entryRepo := repo.NewRedisEntryRepository(rdb, 24*time.Hour, l)
	settingsRepo := repo.NewRedisSettingsRepository(rdb, l)
	settingsSvc := service.NewSettingsService(settingsRepo, l)
	admissionSvc := service.NewAdmissionService(entryRepo, settingsSvc, nil, l)
	sweeperSvc := service.NewSweeperService(entryRepo, settingsRepo, nil, l)

	enabled := true
	if _, err := settingsSvc.Update(ctx, *eventID, service.UpdateSettingsInput{
		Enabled: &enabled,
		Lanes: map[string]models.LaneSettings{
			*lane: {MaxConcurrent: *maxActive, SessionTimeout: *timeout},
		},
	}); err != nil {
		fmt.Printf("Failed to configure queue: %v\n", err)
		os.Exit(1)
	}

	sessionIDs := make([]string, 0, *numUsers)
	for i := 0; i < *numUsers; i++ {
		ssID := uuid.New().String()
		sessionIDs = append(sessionIDs, ssID)

		res, err := admissionSvc.CheckAdmission(ctx, *eventID, ssID, *lane, service.RequestContext{
			UserID: fmt.Sprintf("sim-user-%d", i),
		})
		if err != nil {
			fmt.Printf("CheckAdmission failed for %s: %v\n", ssID, err)
			continue
		}
		if res.Allowed {
			fmt.Printf("[%3d] admitted immediately\n", i)
		} else {
			fmt.Printf("[%3d] waiting at position %d (~%d min)\n", i, res.QueuePosition, res.EstimatedWaitMinutes)
		}
	}

	deadline := time.Now().Add(*duration)
	done := make(map[string]bool, len(sessionIDs))

	for time.Now().Before(deadline) && len(done) < len(sessionIDs) {
		time.Sleep(*tick)

		if res, err := sweeperSvc.Sweep(ctx); err == nil && (res.Expired > 0 || res.Admitted > 0) {
			fmt.Printf("sweep: expired=%d admitted=%d\n", res.Expired, res.Admitted)
		}

		active, waiting := 0, 0
		for _, ssID := range sessionIDs {
			if done[ssID] {
				continue
			}

			res, err := admissionSvc.GetStatus(ctx, *eventID, ssID, *lane)
			if err != nil || res == nil {
				continue
			}

			switch res.Status {
			case models.EntryStatusActive:
				active++
				if rand.Float64() < *completeRate {
					if err := admissionSvc.MarkCompleted(ctx, ssID); err == nil {
						done[ssID] = true
					}
				}
			case models.EntryStatusWaiting:
				waiting++
			case models.EntryStatusCompleted:
				done[ssID] = true
			}
		}

		fmt.Printf("tick: active=%d waiting=%d completed=%d/%d\n",
			active, waiting, len(done), len(sessionIDs))
	}

	fmt.Printf("Simulation finished: %d/%d sessions completed\n", len(done), len(sessionIDs))
}
