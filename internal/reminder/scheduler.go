package reminder

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

const sendTimeout = 30 * time.Second

// Scheduler は予約IDごとに1回限りのリマインダー配信を管理します
// 同じ予約IDで再登録すると以前のジョブを置き換えます
type Scheduler struct {
	sched  gocron.Scheduler
	sender Sender
	now    func() time.Time

	mu   sync.Mutex
	jobs map[string]uuid.UUID
}

// NewScheduler は新しいSchedulerを作成します。Start を呼ぶまで配信は行われません
func NewScheduler(sender Sender, opts ...gocron.SchedulerOption) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{
		sched:  sched,
		sender: sender,
		now:    time.Now,
		jobs:   make(map[string]uuid.UUID),
	}, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	log.Println("Reminder scheduler started")
}

// Shutdown は実行中の配信を待ってからスケジューラを停止します
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// Schedule は at に text を target へ送るジョブを登録します
func (s *Scheduler) Schedule(reservationID, target, text string, at time.Time) error {
	if !at.After(s.now()) {
		return fmt.Errorf("reminder for %s is not in the future: %s", reservationID, at.Format(time.RFC3339))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[reservationID]; ok {
		if err := s.sched.RemoveJob(old); err != nil {
			log.Printf("Failed to remove previous reminder for %s: %v", reservationID, err)
		}
		delete(s.jobs, reservationID)
	}

	var jobID uuid.UUID
	j, err := s.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(func() {
			s.fire(reservationID, &jobID, target, text)
		}),
		gocron.WithName("reminder-"+reservationID),
		gocron.WithLimitedRuns(1),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule reminder for %s: %w", reservationID, err)
	}
	jobID = j.ID()
	s.jobs[reservationID] = jobID

	log.Printf("Scheduled reminder for %s at %s", reservationID, at.Format(time.RFC3339))
	return nil
}

// jobID は Schedule がロックを保持したまま設定するため、ロック取得後に読みます
func (s *Scheduler) fire(reservationID string, jobID *uuid.UUID, target, text string) {
	s.mu.Lock()
	if current, ok := s.jobs[reservationID]; ok && current == *jobID {
		delete(s.jobs, reservationID)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	// 配信失敗は再試行しない
	if err := s.sender.Send(ctx, target, text); err != nil {
		log.Printf("Failed to deliver reminder for reservation %s: %v", reservationID, err)
		return
	}
	log.Printf("Delivered reminder for reservation %s", reservationID)
}

// Cancel は未配信のリマインダーを取り消し、取り消したかどうかを返します
func (s *Scheduler) Cancel(reservationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobID, ok := s.jobs[reservationID]
	if !ok {
		return false
	}
	delete(s.jobs, reservationID)
	if err := s.sched.RemoveJob(jobID); err != nil {
		log.Printf("Failed to remove reminder job for %s: %v", reservationID, err)
	}
	log.Printf("Cancelled reminder for reservation %s", reservationID)
	return true
}

// Pending は未配信のリマインダーの予約IDを昇順で返します
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
