package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/config"
)

const (
	upcomingLead     = 5 * time.Minute // upcomingLead is how early OnUpcoming fires before a run.
	preCheckMaxTimes = 30
	preCheckInterval = 10 * time.Second
)

// CronScheduler runs one job on a cron schedule. Before each run it
// announces the run, and it retries a failing pre-check for a while before
// giving up on that run.
type CronScheduler struct {
	OnUpcoming func(at time.Time)
	OnError    func(err error)
	Job        func() error
	PreCheck   func() error

	mu       sync.Mutex
	running  bool
	schedule cron.Schedule
	nextRun  time.Time

	control chan cronControl
	stop    chan struct{}
}

type cronControlKind int

const (
	cronReschedule cronControlKind = iota
	cronPostpone
	cronSkip
)

type cronControl struct {
	kind     cronControlKind
	schedule cron.Schedule
	at       time.Time
}

func NewCronScheduler(job, preCheck func() error, onUpcoming func(time.Time), onError func(error)) *CronScheduler {
	if job == nil {
		panic("job cannot be nil")
	}
	return &CronScheduler{
		OnUpcoming: onUpcoming,
		OnError:    onError,
		Job:        job,
		PreCheck:   preCheck,
		control:    make(chan cronControl, 4),
		stop:       make(chan struct{}),
	}
}

func (s *CronScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.loop()
}

func (s *CronScheduler) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// Schedule replaces the schedule. An empty expression disables it.
func (s *CronScheduler) Schedule(expr string) error {
	var sched cron.Schedule
	if expr != "" {
		var err error
		sched, err = config.CronParser.Parse(expr)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	running := s.running
	if !running {
		s.setScheduleLocked(sched)
	}
	s.mu.Unlock()

	if running {
		s.send(cronControl{kind: cronReschedule, schedule: sched})
	}
	return nil
}

// Postpone delays only the next run by d. The delayed run must still come
// before the one after it.
func (s *CronScheduler) Postpone(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("postpone duration must be positive")
	}

	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() || !s.running {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to postpone")
	}
	at := s.nextRun.Add(d).Truncate(time.Second)
	following := s.schedule.Next(s.nextRun).Truncate(time.Second)
	s.mu.Unlock()

	if !at.Before(following) {
		return fmt.Errorf("postpone duration too long")
	}
	s.send(cronControl{kind: cronPostpone, at: at})
	return nil
}

// Skip drops the next run.
func (s *CronScheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	running := s.running
	s.mu.Unlock()

	if running {
		s.send(cronControl{kind: cronSkip})
	}
	return nil
}

// Status returns the next run (zero when unscheduled) and whether the loop
// is running.
func (s *CronScheduler) Status() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun, s.running
}

func (s *CronScheduler) setScheduleLocked(sched cron.Schedule) {
	s.schedule = sched
	if sched == nil {
		s.nextRun = time.Time{}
		return
	}
	s.nextRun = sched.Next(time.Now())
}

func (s *CronScheduler) loop() {
	logrus.Debug("cron scheduler started")
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("cron scheduler stopped")
	}()

	for {
		if !s.waitForRun() {
			return
		}
	}
}

// waitForRun waits for and performs one run. It returns false once
// stopped.
func (s *CronScheduler) waitForRun() bool {
	s.mu.Lock()
	sched, nextRun := s.schedule, s.nextRun
	s.mu.Unlock()

	announced := false
	attempts := 0
	var lastPreCheckErr error

	wait := time.Duration(1<<63 - 1)
	if sched != nil && !nextRun.IsZero() {
		wait = max(0, time.Until(nextRun)-upcomingLead)
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return false

		case msg := <-s.control:
			switch msg.kind {
			case cronReschedule:
				s.mu.Lock()
				s.setScheduleLocked(msg.schedule)
				s.mu.Unlock()
				return true
			case cronSkip:
				return true
			case cronPostpone:
				nextRun = msg.at
				s.mu.Lock()
				s.nextRun = msg.at
				s.mu.Unlock()
				announced = false
				timer.Reset(max(0, time.Until(nextRun)-upcomingLead))
			}

		case <-timer.C:
			if sched == nil || nextRun.IsZero() {
				return true
			}

			if !announced {
				announced = true
				logrus.WithField("at", nextRun.Format(time.DateTime)).Debug("scheduled run coming up")
				if s.OnUpcoming != nil {
					go s.OnUpcoming(nextRun)
				}
				timer.Reset(max(0, time.Until(nextRun)))
				continue
			}

			if s.PreCheck != nil {
				if err := s.PreCheck(); err != nil {
					if lastPreCheckErr == nil || err.Error() != lastPreCheckErr.Error() {
						lastPreCheckErr = err
						s.reportError(fmt.Errorf("precheck failed: %w", err))
					}
					attempts++
					if attempts <= preCheckMaxTimes {
						logrus.Debugf("precheck failed (%d/%d): %v; retrying in %s", attempts, preCheckMaxTimes, err, preCheckInterval)
						timer.Reset(preCheckInterval)
						continue
					}
					s.advance()
					return true
				}
			}

			logrus.WithField("at", nextRun.Format(time.DateTime)).Info("running scheduled job")
			go func() {
				if err := s.Job(); err != nil {
					s.reportError(fmt.Errorf("job failed: %w", err))
				}
			}()
			s.advance()
			return true
		}
	}
}

func (s *CronScheduler) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return
	}
	s.nextRun = s.schedule.Next(s.nextRun)
}

func (s *CronScheduler) reportError(err error) {
	if s.OnError == nil {
		return
	}
	go s.OnError(err)
}

func (s *CronScheduler) send(msg cronControl) {
	select {
	case s.control <- msg:
	default:
	}
}
