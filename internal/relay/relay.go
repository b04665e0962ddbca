// Package relay holds the ephemeral teacher↔student webcam plumbing:
// consent requests, grants and the per-student frame buffer. Everything
// lives in process memory by contract — a restart clears all consent state
// and students must be asked again.
package relay

import (
	"errors"
	"sync"
	"time"
)

// ErrNoConsent is returned when a frame or stream touches a pair without
// an approved, live consent grant.
var ErrNoConsent = errors.New("no approved consent for this quiz and student")

// Key identifies one proctoring pair. Consent is scoped per quiz per
// student, never blanket.
type Key struct {
	QuizID    string
	StudentID int
}

// ConsentRequest is a teacher's pending ask, waiting for the student.
type ConsentRequest struct {
	TeacherID   int       `json:"teacher_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// Consent is the student's answer. Denials are recorded too so a teacher
// polling for status can tell "denied" from "still waiting".
type Consent struct {
	TeacherID  int       `json:"teacher_id"`
	Approved   bool      `json:"approved"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Frame is one webcam capture in flight from student to teacher.
type Frame struct {
	QuizID     string    `json:"quiz_id"`
	StudentID  int       `json:"student_id"`
	DataURL    string    `json:"data_url"`
	CapturedAt time.Time `json:"captured_at"`
	ReceivedAt time.Time `json:"received_at"`
}

// Observer receives frames for one pair. The channel is owned by the
// relay; Detach closes it.
type Observer struct {
	TeacherID int
	Frames    chan Frame
}

// Relay is the in-memory consent and frame table. All maps share one
// mutex; every operation is a short critical section with no I/O inside.
type Relay struct {
	mu        sync.Mutex
	pending   map[Key]ConsentRequest
	consents  map[Key]Consent
	frames    map[Key][]Frame
	observers map[Key]*Observer

	requestTTL time.Duration
	bufferSize int
	now        func() time.Time
}

// New creates a relay. requestTTL bounds how long an unanswered consent
// request stays visible; bufferSize caps frames retained per pair while no
// observer is attached.
func New(requestTTL time.Duration, bufferSize int) *Relay {
	return &Relay{
		pending:    make(map[Key]ConsentRequest),
		consents:   make(map[Key]Consent),
		frames:     make(map[Key][]Frame),
		observers:  make(map[Key]*Observer),
		requestTTL: requestTTL,
		bufferSize: bufferSize,
		now:        time.Now,
	}
}

// WithClock overrides the relay clock. Test hook.
func (r *Relay) WithClock(now func() time.Time) *Relay {
	r.now = now
	return r
}

// Request records a teacher's ask for a pair. Repeating the request
// refreshes its timestamp; it never duplicates. Any previous grant for the
// pair is revoked: a new request means consent must be re-established.
func (r *Relay) Request(key Key, teacherID int) ConsentRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	req := ConsentRequest{TeacherID: teacherID, RequestedAt: r.now()}
	r.pending[key] = req
	delete(r.consents, key)
	return req
}

// PendingFor returns the live request for a pair, if any. Expired requests
// are purged on read.
func (r *Relay) PendingFor(key Key) (ConsentRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.pending[key]
	if !ok {
		return ConsentRequest{}, false
	}
	if r.now().Sub(req.RequestedAt) > r.requestTTL {
		delete(r.pending, key)
		return ConsentRequest{}, false
	}
	return req, true
}

// Respond records the student's answer to the pending request. It fails
// when no live request exists — a grant can only answer an actual ask.
// A denial tears down any attached observer.
func (r *Relay) Respond(key Key, approved bool) (Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.pending[key]
	if !ok || r.now().Sub(req.RequestedAt) > r.requestTTL {
		delete(r.pending, key)
		return Consent{}, ErrNoConsent
	}
	delete(r.pending, key)

	consent := Consent{TeacherID: req.TeacherID, Approved: approved, AnsweredAt: r.now()}
	r.consents[key] = consent

	if !approved {
		r.dropObserverLocked(key)
		delete(r.frames, key)
	}
	return consent, nil
}

// ConsentFor returns the recorded consent for a pair, if any.
func (r *Relay) ConsentFor(key Key) (Consent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consents[key]
	return c, ok
}

// Revoke withdraws a student's grant mid-stream. The observer channel is
// closed and buffered frames are discarded.
func (r *Relay) Revoke(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.consents, key)
	delete(r.frames, key)
	r.dropObserverLocked(key)
}

// Publish accepts one frame from a student. Without an approved grant the
// frame is rejected. With an observer attached the frame is forwarded
// without blocking; a full observer drops the frame rather than stall the
// student's upload. With no observer the frame is buffered, evicting the
// oldest past capacity.
func (r *Relay) Publish(key Key, frame Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	consent, ok := r.consents[key]
	if !ok || !consent.Approved {
		return ErrNoConsent
	}

	frame.ReceivedAt = r.now()

	if obs, ok := r.observers[key]; ok {
		select {
		case obs.Frames <- frame:
		default:
			// Slow teacher; latest frames matter more than old ones.
		}
		return nil
	}

	buf := append(r.frames[key], frame)
	if len(buf) > r.bufferSize {
		buf = buf[len(buf)-r.bufferSize:]
	}
	r.frames[key] = buf
	return nil
}

// Attach registers the consented teacher as the pair's observer and flushes
// any buffered frames into the channel. A second attach replaces the first,
// closing its channel. Only the teacher named in the grant may attach.
func (r *Relay) Attach(key Key, teacherID int) (*Observer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	consent, ok := r.consents[key]
	if !ok || !consent.Approved || consent.TeacherID != teacherID {
		return nil, ErrNoConsent
	}

	r.dropObserverLocked(key)

	obs := &Observer{
		TeacherID: teacherID,
		Frames:    make(chan Frame, r.bufferSize+4),
	}
	for _, f := range r.frames[key] {
		obs.Frames <- f
	}
	delete(r.frames, key)
	r.observers[key] = obs
	return obs, nil
}

// Detach removes the observer if it is still the registered one and closes
// its channel.
func (r *Relay) Detach(key Key, obs *Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.observers[key]; ok && cur == obs {
		delete(r.observers, key)
		close(cur.Frames)
	}
}

func (r *Relay) dropObserverLocked(key Key) {
	if obs, ok := r.observers[key]; ok {
		delete(r.observers, key)
		close(obs.Frames)
	}
}
