package rdio

import (
	"sync"

	"github.com/google/uuid"

	"github.com/arancormonk/dsd-neo/internal/geoloc"
	"github.com/arancormonk/dsd-neo/internal/logging"
)

var log = logging.For("rdio")

// QueueCapacity is the bounded size of the upload job queue.
const QueueCapacity = 128

// maxPlausibleJumpMeters bounds how far a talkgroup's reported source
// location may move between consecutive calls before it is flagged as
// an implausible GPS jump rather than real travel.
const maxPlausibleJumpMeters = 500_000.0

// UploadJob pairs a Call's metadata with the recording it describes,
// tagged with a correlation ID for log tracing.
type UploadJob struct {
	ID      uuid.UUID
	Call    Call
	WAVPath string
}

// Queue is a bounded FIFO of pending upload jobs. On overflow the
// newest job (the one being enqueued) is dropped, not the oldest --
// in-flight older jobs are closer to a recording an operator may
// already be waiting on.
type Queue struct {
	mu      sync.Mutex
	jobs    []UploadJob
	dropped uint64
	lastLoc map[uint32]geoloc.Location
}

// NewQueue builds an empty queue.
func NewQueue() *Queue {
	return &Queue{lastLoc: make(map[uint32]geoloc.Location)}
}

// Enqueue adds job unless the queue is at capacity, in which case the
// job is dropped and the drop counter incremented. Returns false when
// dropped. A job carrying a decoded source location is compared
// against the talkgroup's last reported fix and logged if the
// great-circle jump between them is implausible for real travel.
func (q *Queue) Enqueue(job UploadJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if loc, ok := job.Call.Location(); ok {
		if prev, had := q.lastLoc[job.Call.Talkgroup]; had {
			if d := geoloc.DistanceMeters(prev, loc); d > maxPlausibleJumpMeters {
				log.Warn("implausible source location jump",
					"talkgroup", job.Call.Talkgroup, "meters", d, "at", job.Call.LocalStamp())
			}
		}
		q.lastLoc[job.Call.Talkgroup] = loc
	}

	if len(q.jobs) >= QueueCapacity {
		q.dropped++
		log.Warn("upload queue full, dropping job",
			"wav_path", job.WAVPath, "dropped_total", q.dropped, "at", job.Call.LocalStamp())
		return false
	}
	q.jobs = append(q.jobs, job)
	return true
}

// Dequeue pops the oldest job, if any.
func (q *Queue) Dequeue() (UploadJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return UploadJob{}, false
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, true
}

// Len reports the number of jobs currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Dropped reports the number of jobs dropped due to overflow.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// NewJob builds an UploadJob with a fresh correlation ID.
func NewJob(call Call, wavPath string) UploadJob {
	return UploadJob{ID: uuid.New(), Call: call, WAVPath: wavPath}
}
