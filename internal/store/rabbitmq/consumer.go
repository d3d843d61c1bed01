package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/suPer8Hu/echo-chat/internal/chat"
)

const (
	retryHeader = "x-retry-count"
	maxRetries  = 3
	retryDelay  = 5 * time.Second
)

type retryFunc func(ctx context.Context, body []byte, attempt int) error

// Consumer runs title jobs from the queue on a bounded pool of workers.
// Failed jobs go through the retry queue up to maxRetries times, then to
// the DLQ.
type Consumer struct {
	pub         *Publisher
	gen         chat.TitleGenerator
	queue       string
	concurrency int
	timeout     time.Duration
	retry       retryFunc
	log         zerolog.Logger
}

func NewConsumer(url, queue string, concurrency int, timeout time.Duration, gen chat.TitleGenerator, log zerolog.Logger) (*Consumer, error) {
	pub, err := NewPublisher(url, queue)
	if err != nil {
		return nil, err
	}
	c := newConsumer(queue, concurrency, timeout, gen, log)
	c.pub = pub
	c.retry = func(ctx context.Context, body []byte, attempt int) error {
		return pub.publish(ctx, queue+retrySuffix, body,
			amqp.Table{retryHeader: int32(attempt)},
			strconv.FormatInt(retryDelay.Milliseconds(), 10))
	}
	return c, nil
}

func newConsumer(queue string, concurrency int, timeout time.Duration, gen chat.TitleGenerator, log zerolog.Logger) *Consumer {
	if concurrency <= 0 {
		concurrency = 2
	}
	if concurrency > 50 {
		concurrency = 50
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Consumer{
		gen:         gen,
		queue:       queue,
		concurrency: concurrency,
		timeout:     timeout,
		log:         log,
	}
}

func (c *Consumer) Close() error { return c.pub.Close() }

// Run consumes until ctx is done, then drains in-flight deliveries.
func (c *Consumer) Run(ctx context.Context) error {
	// strict concurrency control
	if err := c.pub.ch.Qos(c.concurrency, 0, false); err != nil {
		return err
	}
	msgs, err := c.pub.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.log.Info().Str("queue", c.queue).Int("concurrency", c.concurrency).Msg("title worker started")

	jobs := make(chan amqp.Delivery, c.concurrency*2)
	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.handle(ctx, workerID, d)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("title worker shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

func retryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (c *Consumer) handle(ctx context.Context, workerID int, d amqp.Delivery) {
	var job chat.TitleJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.ConversationID == "" {
		c.log.Warn().Err(err).Int("worker", workerID).Msg("bad title message")
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.gen.GenerateTitle(jobCtx, job.ConversationID, job.FirstMessage)
	cancel()
	if err == nil {
		if err := d.Ack(false); err != nil {
			c.log.Warn().Err(err).Int("worker", workerID).Str("conversation_id", job.ConversationID).Msg("ack failed")
		}
		return
	}

	attempt := retryCount(d.Headers) + 1
	logEvt := c.log.Warn().Err(err).
		Int("worker", workerID).
		Str("conversation_id", job.ConversationID).
		Int("attempt", attempt).
		Dur("cost", time.Since(start))
	if attempt > maxRetries || c.retry == nil {
		logEvt.Msg("title job dead-lettered")
		_ = d.Nack(false, false)
		return
	}
	if rerr := c.retry(ctx, d.Body, attempt); rerr != nil {
		logEvt.AnErr("retry_err", rerr).Msg("title job retry publish failed")
		_ = d.Nack(false, false)
		return
	}
	logEvt.Msg("title job scheduled for retry")
	_ = d.Ack(false)
}
