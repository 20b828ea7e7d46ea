package services

import (
	"context"
	"sync"

	"github.com/Dosada05/rps-tournament-bot/models"
)

type envelope struct {
	ctx   context.Context
	cmd   Command
	reply chan reply
}

type reply struct {
	result Result
	err    error
}

// worker is the single writer of one tournament. Commands are handled in
// arrival order; the tournament pointer is only touched from run.
type worker struct {
	id         string
	tournament *models.Tournament
	// indexed is set once the bracket's match ids are in the registry.
	indexed bool
	// unsaved is set while the store holds an older state than tournament.
	unsaved  bool
	inbox    chan envelope
	done     chan struct{}
	stopOnce sync.Once
	handle   func(ctx context.Context, w *worker, cmd Command) (Result, error)
}

func newWorker(t *models.Tournament, inboxSize int, handle func(context.Context, *worker, Command) (Result, error)) *worker {
	return &worker{
		id:         t.ID,
		tournament: t,
		inbox:      make(chan envelope, inboxSize),
		done:       make(chan struct{}),
		handle:     handle,
	}
}

func (w *worker) run() {
	for {
		select {
		case env := <-w.inbox:
			// A caller giving up must not abort a command that is already
			// queued.
			res, err := w.handle(context.WithoutCancel(env.ctx), w, env.cmd)
			env.reply <- reply{result: res, err: err}
		case <-w.done:
			return
		}
	}
}

// submit enqueues cmd and waits for its result. If ctx ends after the command
// was queued, the command still runs.
func (w *worker) submit(ctx context.Context, cmd Command) (Result, error) {
	env := envelope{ctx: ctx, cmd: cmd, reply: make(chan reply, 1)}
	select {
	case w.inbox <- env:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-w.done:
		return Result{}, ErrServiceStopped
	}
	select {
	case r := <-env.reply:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-w.done:
		return Result{}, ErrServiceStopped
	}
}

func (w *worker) stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *worker) tournamentID() string {
	return w.id
}
