package rdio

import (
	"context"
	"time"

	"github.com/arancormonk/dsd-neo/internal/errtag"
)

// Mode selects which export paths are active, matching the CLI's
// --rdio-mode values.
type Mode int

const (
	ModeOff Mode = iota
	ModeDirwatch
	ModeAPI
	ModeBoth
)

// ParseMode parses the --rdio-mode CLI value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "off":
		return ModeOff, nil
	case "dirwatch":
		return ModeDirwatch, nil
	case "api":
		return ModeAPI, nil
	case "both":
		return ModeBoth, nil
	default:
		return ModeOff, errtag.New(errtag.Config, "invalid --rdio-mode: "+s)
	}
}

// Uploader ships one job to an Rdio-compatible API endpoint.
type Uploader interface {
	Upload(ctx context.Context, job UploadJob) error
}

// Worker drains a Queue on a background goroutine, calling Uploader
// for each job until Stop is requested.
type Worker struct {
	queue    *Queue
	uploader Uploader
	stopCh   chan struct{}
	doneCh   chan struct{}
	idle     time.Duration
}

// NewWorker builds a worker draining queue via uploader. idle is the
// poll interval used when the queue is empty.
func NewWorker(queue *Queue, uploader Uploader, idle time.Duration) *Worker {
	if idle <= 0 {
		idle = 200 * time.Millisecond
	}
	return &Worker{queue: queue, uploader: uploader, stopCh: make(chan struct{}), doneCh: make(chan struct{}), idle: idle}
}

// Run drains the queue until Stop is called. Intended to run in its
// own goroutine.
func (w *Worker) Run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}
		job, ok := w.queue.Dequeue()
		if !ok {
			select {
			case <-w.stopCh:
				return
			case <-time.After(w.idle):
			}
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := w.uploader.Upload(ctx, job)
		cancel()
		if err != nil {
			log.Warn("rdio upload failed", "job_id", job.ID, "wav_path", job.WAVPath, "err", err)
		}
	}
}

// Stop requests the worker to exit and waits for it to do so.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}
