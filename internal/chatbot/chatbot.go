// Package chatbot runs the interactive read, dispatch, respond loop.
package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"MiniChat/internal/command"
	"MiniChat/internal/gateway"
	"MiniChat/internal/render"
	"MiniChat/internal/session"
	"MiniChat/internal/store"
)

// State is the controller's position in the input loop
type State int

const (
	Idle State = iota
	AwaitingInput
	Dispatching
	LocalCommandExecuted
	AwaitingCompletion
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingInput:
		return "awaiting-input"
	case Dispatching:
		return "dispatching"
	case LocalCommandExecuted:
		return "local-command-executed"
	case AwaitingCompletion:
		return "awaiting-completion"
	case Closed:
		return "closed"
	}
	return "unknown"
}

var (
	// ErrBudgetExceeded is returned when the newest turn alone does not fit
	// in the context budget. The turn stays recorded but is not sent.
	ErrBudgetExceeded = errors.New("message exceeds the context budget")

	// ErrClosed is returned for input handled after the session closed.
	ErrClosed = errors.New("session is closed")
)

// PersistenceError reports a failed save or load. It never ends the session.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s session: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Completer produces a reply for a trimmed view. *gateway.Gateway is the
// production implementation.
type Completer interface {
	Complete(ctx context.Context, view session.View) (gateway.Reply, error)
}

// Pinger is implemented by completers that can check connectivity before
// the first turn.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Indicator shows progress while a completion is pending. stop must not
// return before the indicator has finished drawing.
type Indicator interface {
	Start(ctx context.Context) (stop func())
}

// InterruptFunc derives the context for one completion or one wait at the
// prompt. Canceling it during a completion abandons that completion only;
// canceling it at the prompt ends the session.
type InterruptFunc func(ctx context.Context) (context.Context, context.CancelFunc)

// Deps are the collaborators of a ChatBot
type Deps struct {
	History   *session.History
	Gateway   Completer
	Store     store.Store
	Renderer  *render.Renderer
	Indicator Indicator
	Logger    *slog.Logger
	// Budget is the context budget passed to History.TrimmedView.
	Budget   int
	AutoSave bool
	// Interrupts defaults to canceling on SIGINT.
	Interrupts InterruptFunc
	// OnStateChange is called on every state transition.
	OnStateChange func(from, to State)
}

// ChatBot is the session controller. It is not safe for concurrent use.
type ChatBot struct {
	history    *session.History
	gateway    Completer
	store      store.Store
	renderer   *render.Renderer
	indicator  Indicator
	logger     *slog.Logger
	budget     int
	autoSave   bool
	interrupts InterruptFunc
	onState    func(from, to State)

	state       State
	completions int
	dirty       bool
}

// New creates a ChatBot in the Idle state
func New(d Deps) *ChatBot {
	cb := &ChatBot{
		history:    d.History,
		gateway:    d.Gateway,
		store:      d.Store,
		renderer:   d.Renderer,
		indicator:  d.Indicator,
		logger:     d.Logger,
		budget:     d.Budget,
		autoSave:   d.AutoSave,
		interrupts: d.Interrupts,
		onState:    d.OnStateChange,
		state:      Idle,
	}
	if cb.logger == nil {
		cb.logger = slog.Default()
	}
	if cb.interrupts == nil {
		cb.interrupts = func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		}
	}
	return cb
}

// State returns the current state
func (cb *ChatBot) State() State {
	return cb.state
}

// Session returns a copy of the current session
func (cb *ChatBot) Session() *session.Session {
	return cb.history.Session()
}

func (cb *ChatBot) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.logger.Debug("state change", "from", from.String(), "to", to.String())
	if cb.onState != nil {
		cb.onState(from, to)
	}
}

// Preflight checks the completer's connection before the first turn. An
// authentication failure closes the session; other failures are reported
// and the session continues.
func (cb *ChatBot) Preflight(ctx context.Context) error {
	pinger, ok := cb.gateway.(Pinger)
	if !ok {
		return nil
	}
	err := pinger.Ping(ctx)
	if err == nil {
		cb.renderer.Success("Successfully connected to the model API")
		return nil
	}

	cb.logger.Error("connectivity check failed", "error", err)
	if gateway.Classify(err) == gateway.Authentication {
		cb.renderer.Error(fmt.Sprintf("Could not authenticate with the model API: %v", err))
		cb.setState(Closed)
		return err
	}
	cb.renderer.Error(fmt.Sprintf("Could not reach the model API, will retry on the first message: %v", err))
	return nil
}

// Run reads lines from in until quit, end of input, an interrupt at the
// prompt or ctx is done. It returns a non-nil error only when the session
// had to close because of a failure.
func (cb *ChatBot) Run(ctx context.Context, in io.Reader) error {
	if cb.state == Closed {
		return ErrClosed
	}
	cb.renderer.Welcome(cb.history.Session())

	done := make(chan struct{})
	defer close(done)
	lines := cb.readLines(in, done)

	for {
		if err := ctx.Err(); err != nil {
			cb.shutdown(ctx)
			return nil
		}

		cb.setState(AwaitingInput)
		cb.renderer.Prompt()

		waitCtx, stopWait := cb.interrupts(ctx)
		var (
			line string
			ok   bool
			read bool
		)
		select {
		case line, ok = <-lines:
			read = true
		case <-waitCtx.Done():
		}
		stopWait()

		if !read {
			if ctx.Err() == nil {
				cb.renderer.Info("\nChat interrupted. Thanks for chatting!")
			}
			cb.shutdown(ctx)
			return nil
		}
		if !ok {
			cb.renderer.Info("\nInput ended. Goodbye!")
			cb.shutdown(ctx)
			return nil
		}

		err := cb.HandleLine(ctx, line)
		if cb.state == Closed {
			return err
		}
	}
}

// readLines scans in on its own goroutine so that waiting for input can be
// interrupted. The channel is closed at end of input; the goroutine exits
// once done is closed.
func (cb *ChatBot) readLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			cb.logger.Error("failed to read input", "error", err)
		}
	}()
	return lines
}

// HandleLine dispatches one input line. The returned error describes a
// failed line; it has already been shown to the user.
func (cb *ChatBot) HandleLine(ctx context.Context, line string) error {
	if cb.state == Closed {
		return ErrClosed
	}
	cb.setState(Dispatching)

	action := command.Parse(line)
	cb.logger.Debug("dispatching input", "kind", action.Kind.String())

	var err error
	switch action.Kind {
	case command.Empty:
	case command.Chat:
		err = cb.chat(ctx, action.Text)
	case command.Quit:
		cb.renderer.Info("Thanks for chatting! Have a great day!")
		cb.shutdown(ctx)
		return nil
	default:
		err = cb.runCommand(ctx, action.Kind)
		cb.setState(LocalCommandExecuted)
	}

	if cb.state != Closed {
		cb.setState(Idle)
	}
	return err
}

func (cb *ChatBot) runCommand(ctx context.Context, kind command.Kind) error {
	switch kind {
	case command.Help:
		cb.renderer.Help(command.HelpText)
	case command.Summary:
		cb.renderer.Summary(cb.history.Summary())
	case command.Clear:
		removed := cb.history.Clear()
		cb.dirty = false
		cb.logger.Info("history cleared", "removed", removed)
		cb.renderer.Success(fmt.Sprintf("Conversation history cleared (%d messages removed).", removed))
	case command.Save:
		location, err := cb.save(ctx)
		if err != nil {
			return err
		}
		cb.renderer.Success(fmt.Sprintf("Conversation saved to %s", location))
	}
	return nil
}

func (cb *ChatBot) chat(ctx context.Context, text string) error {
	cb.history.Append(session.RoleUser, text)
	cb.dirty = true

	view := cb.history.TrimmedView(cb.budget)
	if view.OverBudget {
		err := fmt.Errorf("%w: about %d characters with a budget of %d", ErrBudgetExceeded, view.Size, cb.budget)
		cb.logger.Warn("turn over budget, not sent", "size", view.Size, "budget", cb.budget)
		cb.renderer.Error(fmt.Sprintf("Your message is too long to send (about %d characters, the limit is %d).", view.Size, cb.budget))
		return err
	}
	if view.Evicted > 0 {
		cb.logger.Info("trimmed history for request", "evicted", view.Evicted, "sent", len(view.Turns), "size", view.Size)
	}

	cb.setState(AwaitingCompletion)
	first := cb.completions == 0
	cb.completions++

	callCtx, stopInterrupts := cb.interrupts(ctx)
	stopIndicator := func() {}
	if cb.indicator != nil {
		stopIndicator = cb.indicator.Start(callCtx)
	}
	reply, err := cb.gateway.Complete(callCtx, view)
	stopIndicator()
	stopInterrupts()

	if err != nil {
		return cb.completionFailed(err, first)
	}

	cb.history.Append(session.RoleAssistant, reply.Text)
	cb.logger.Info("received reply", "cached", reply.Cached, "turns", cb.history.Len())
	cb.renderer.Assistant(reply.Text)
	return nil
}

func (cb *ChatBot) completionFailed(err error, first bool) error {
	kind := gateway.Classify(err)
	cb.logger.Error("failed to get reply", "kind", kind.String(), "first", first, "error", err)

	switch kind {
	case gateway.Transient:
		cb.renderer.Error(fmt.Sprintf("I'm getting too many requests or the service is unavailable right now. Please wait a moment and try again. (%v)", err))
	case gateway.Authentication:
		cb.renderer.Error(fmt.Sprintf("Authentication with the model API failed. Please check your API key. (%v)", err))
		if first {
			cb.setState(Closed)
			return err
		}
	case gateway.MalformedResponse:
		cb.renderer.Error("The model returned an empty or unreadable response. Please try again.")
	case gateway.Canceled:
		cb.renderer.Info("\nRequest canceled.")
	default:
		cb.renderer.Error(fmt.Sprintf("Something unexpected happened: %v", err))
	}
	return err
}

func (cb *ChatBot) save(ctx context.Context) (string, error) {
	location, err := cb.store.Save(ctx, cb.history.Session())
	if err != nil {
		err = &PersistenceError{Op: "save", Err: err}
		cb.logger.Error("failed to save session", "error", err)
		cb.renderer.Error(err.Error())
		return "", err
	}
	cb.dirty = false
	return location, nil
}

// shutdown saves unsaved turns when auto-save is on and closes the session
func (cb *ChatBot) shutdown(ctx context.Context) {
	if cb.autoSave && cb.dirty && cb.history.Len() > 0 {
		if location, err := cb.save(context.WithoutCancel(ctx)); err == nil {
			cb.renderer.Success(fmt.Sprintf("Conversation saved to %s", location))
		}
	}
	cb.setState(Closed)
}
