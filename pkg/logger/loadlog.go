package logger

// LoadLog keeps the detail lines of a fixture load in memory while it runs.
//
//   - If the load fails the buffer is replayed and the error is logged last.
//   - If it succeeds the buffer is dropped and a single short line is written.
//
// One goroutine owns the buffers; callers only send commands on a channel.

import (
	"github.com/rs/zerolog"
)

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
)

type cmd struct {
	act     action
	loadID  string
	message string
	what    string
	err     error
}

// LoadLog is the buffered logger. Build it with NewLoadLog and Close it when done.
type LoadLog struct {
	ch   chan cmd
	done chan struct{}
	log  zerolog.Logger
}

// NewLoadLog starts the owning goroutine.
func NewLoadLog(log zerolog.Logger) *LoadLog {
	l := &LoadLog{
		ch:   make(chan cmd, 128),
		done: make(chan struct{}),
		log:  log.With().Str("component", "fixtures").Logger(),
	}
	go l.runloop()
	return l
}

// Begin starts buffering for loadID.
func (l *LoadLog) Begin(loadID string) { l.ch <- cmd{act: actBegin, loadID: loadID} }

// Append adds a detail line. Without a Begin the line is logged at debug right away.
func (l *LoadLog) Append(loadID, msg string) {
	l.ch <- cmd{act: actAppend, loadID: loadID, message: msg}
}

// Success drops the buffer and writes one line naming what was loaded.
func (l *LoadLog) Success(loadID, what string) {
	l.ch <- cmd{act: actSuccess, loadID: loadID, what: what}
}

// FlushError replays the buffer and then logs err.
func (l *LoadLog) FlushError(loadID string, err error) {
	l.ch <- cmd{act: actFlushErr, loadID: loadID, err: err}
}

// Close stops the goroutine after pending commands are written.
func (l *LoadLog) Close() {
	close(l.ch)
	<-l.done
}

func (l *LoadLog) runloop() {
	defer close(l.done)
	buffers := make(map[string][]string)

	for c := range l.ch {
		switch c.act {
		case actBegin:
			buffers[c.loadID] = buffers[c.loadID][:0]

		case actAppend:
			if b, ok := buffers[c.loadID]; ok {
				buffers[c.loadID] = append(b, c.message)
			} else {
				l.log.Debug().Str("load", c.loadID).Msg(c.message)
			}

		case actSuccess:
			l.log.Info().Str("load", c.loadID).Msgf("✔ loaded %s", c.what)
			delete(buffers, c.loadID)

		case actFlushErr:
			for _, ln := range buffers[c.loadID] {
				l.log.Warn().Str("load", c.loadID).Msg(ln)
			}
			delete(buffers, c.loadID)
			l.log.Error().Str("load", c.loadID).Err(c.err).Msg("load failed")
		}
	}
}
