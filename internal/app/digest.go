/**
 * @description
 * Daily ledger digest: per-currency totals for the previous UTC day, logged and
 * published to the events exchange on a cron schedule.
 */
package app

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/transfa/payout-gateway/internal/domain"
	"github.com/transfa/payout-gateway/internal/store"
	"github.com/transfa/payout-gateway/pkg/rabbitmq"
)

const digestRoutingKey = "ledger.digest.daily"

// LedgerDigest computes and publishes the daily ledger summary.
type LedgerDigest struct {
	ledger        store.LedgerRepository
	eventProducer rabbitmq.Publisher
	exchange      string
	timeout       time.Duration
	now           func() time.Time
}

func NewLedgerDigest(ledger store.LedgerRepository, producer rabbitmq.Publisher, exchange string, timeout time.Duration) *LedgerDigest {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LedgerDigest{
		ledger:        ledger,
		eventProducer: producer,
		exchange:      exchange,
		timeout:       timeout,
		now:           time.Now,
	}
}

// PreviousUTCDay returns [start, end) of the UTC day before now.
func PreviousUTCDay(now time.Time) (time.Time, time.Time) {
	utc := now.UTC()
	end := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	return end.AddDate(0, 0, -1), end
}

// Run builds the digest for the previous UTC day.
func (d *LedgerDigest) Run(ctx context.Context) (*domain.LedgerDigestEvent, error) {
	from, to := PreviousUTCDay(d.now())

	summaryCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	totals, err := d.ledger.SummarizeLedger(summaryCtx, from, to)
	if err != nil {
		log.Printf("level=error component=digest msg=\"summarize ledger failed\" from=%s to=%s err=%q", from.Format(time.RFC3339), to.Format(time.RFC3339), err)
		return nil, err
	}

	for _, total := range totals {
		log.Printf("level=info component=digest msg=\"ledger total\" day=%s currency=%s count=%d amount=%s", from.Format("2006-01-02"), total.Currency, total.Count, total.Amount.StringFixed(2))
	}

	event := &domain.LedgerDigestEvent{From: from, To: to, Totals: totals}
	if err := d.eventProducer.Publish(ctx, d.exchange, digestRoutingKey, event); err != nil {
		log.Printf("level=warn component=digest msg=\"publish digest failed\" err=%q", err)
	}
	return event, nil
}

// RunJob is the cron entry point.
func (d *LedgerDigest) RunJob() {
	if _, err := d.Run(context.Background()); err != nil {
		return
	}
	log.Printf("level=info component=digest msg=\"daily digest completed\"")
}

// Scheduler runs the digest job on a UTC cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	digest   *LedgerDigest
	schedule string
}

func NewScheduler(digest *LedgerDigest, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(log.New(os.Stdout, "cron: ", log.LstdFlags))
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cronLogger)))
	return &Scheduler{cron: c, digest: digest, schedule: schedule}
}

// Start registers the digest job and starts the scheduler. An invalid schedule is
// returned and nothing is started.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.digest.RunJob); err != nil {
		log.Printf("level=error component=digest msg=\"failed to schedule ledger digest\" schedule=%q err=%q", s.schedule, err)
		return err
	}
	log.Printf("level=info component=digest msg=\"scheduled ledger digest\" schedule=%q", s.schedule)
	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
