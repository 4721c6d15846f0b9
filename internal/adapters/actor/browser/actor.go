// Package browser drives a headless Chrome session with chromedp: it logs
// in, opens the target page and types messages into its comment box.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/pkg/log"
)

// Selectors locate the page elements the actor interacts with.
type Selectors struct {
	Username   string
	Password   string
	Dismiss    string
	CommentBox string
}

// DefaultSelectors match the login form and live comment box of the
// default login URL.
func DefaultSelectors() Selectors {
	return Selectors{
		Username:   `input[name="username"]`,
		Password:   `input[name="password"]`,
		Dismiss:    `//button[contains(text(), 'Not Now')]`,
		CommentBox: `textarea[aria-label="Add a comment…"], textarea[placeholder="Add a comment…"]`,
	}
}

// Config configures the browser actor.
type Config struct {
	LoginURL  string
	TargetURL string
	Username  string
	Password  string
	Headless  bool
	Selectors Selectors

	// StepTimeout bounds every page load, element wait and keystroke batch.
	// Default: 20 seconds
	StepTimeout time.Duration

	// DismissTimeout bounds the optional popup dismissal after login.
	// Default: 5 seconds
	DismissTimeout time.Duration
}

func (c *Config) applyDefaults() {
	def := DefaultSelectors()
	if c.Selectors.Username == "" {
		c.Selectors.Username = def.Username
	}
	if c.Selectors.Password == "" {
		c.Selectors.Password = def.Password
	}
	if c.Selectors.Dismiss == "" {
		c.Selectors.Dismiss = def.Dismiss
	}
	if c.Selectors.CommentBox == "" {
		c.Selectors.CommentBox = def.CommentBox
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 20 * time.Second
	}
	if c.DismissTimeout <= 0 {
		c.DismissTimeout = 5 * time.Second
	}
}

// Actor is a chromedp-backed ports.Actor.
type Actor struct {
	cfg    Config
	logger log.Logger

	// Seams for tests.
	newBrowser func(headless bool) (context.Context, context.CancelFunc)
	run        func(ctx context.Context, actions ...chromedp.Action) error

	// mu guards the browser handle. Shutdown may run while a step is in
	// flight; the step then fails with domain.ErrSessionLost.
	mu         sync.Mutex
	browserCtx context.Context
	cancel     context.CancelFunc
}

var _ ports.Actor = (*Actor)(nil)

// New creates a browser actor. No browser is started until Initialize.
func New(cfg Config, logger log.Logger) (*Actor, error) {
	if cfg.LoginURL == "" || cfg.TargetURL == "" {
		return nil, fmt.Errorf("%w: browser actor needs login and target urls", domain.ErrInvalidConfig)
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("%w: browser actor needs username and password", domain.ErrInvalidConfig)
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Actor{
		cfg:        cfg,
		logger:     logger,
		newBrowser: launch,
		run:        chromedp.Run,
	}, nil
}

// launch starts Chrome. The browser is rooted at Background so it outlives
// the Initialize call; Shutdown cancels it.
func launch(headless bool) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.WindowSize(1280, 900),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	return browserCtx, func() {
		cancelBrowser()
		cancelAlloc()
	}
}

// Initialize launches the browser, logs in and opens the target page.
// A failure leaves the browser running; the caller shuts it down.
func (a *Actor) Initialize(ctx context.Context) error {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.browserCtx, a.cancel = a.newBrowser(a.cfg.Headless)
	browserCtx := a.browserCtx
	a.mu.Unlock()

	a.logger.Info("opening login page", log.String("url", a.cfg.LoginURL))
	sel := a.cfg.Selectors
	if err := a.step(ctx, browserCtx, "login", a.cfg.StepTimeout,
		chromedp.Navigate(a.cfg.LoginURL),
		chromedp.WaitVisible(sel.Username, chromedp.ByQuery),
		chromedp.SendKeys(sel.Username, a.cfg.Username, chromedp.ByQuery),
		chromedp.SendKeys(sel.Password, a.cfg.Password+kb.Enter, chromedp.ByQuery),
		chromedp.WaitNotPresent(sel.Password, chromedp.ByQuery),
	); err != nil {
		return err
	}

	if err := a.step(ctx, browserCtx, "dismiss popup", a.cfg.DismissTimeout,
		chromedp.Click(sel.Dismiss, chromedp.BySearch),
	); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Debug("no popup to dismiss")
	}

	a.logger.Info("opening target page", log.String("url", a.cfg.TargetURL))
	if err := a.step(ctx, browserCtx, "open target", a.cfg.StepTimeout,
		chromedp.Navigate(a.cfg.TargetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return err
	}
	return nil
}

func (a *Actor) PostMessage(ctx context.Context, text string) error {
	a.mu.Lock()
	browserCtx := a.browserCtx
	a.mu.Unlock()
	if browserCtx == nil {
		return &ports.ActorError{Op: "post", Err: domain.ErrSessionLost}
	}

	box := a.cfg.Selectors.CommentBox
	err := a.step(ctx, browserCtx, "post", a.cfg.StepTimeout,
		chromedp.WaitVisible(box, chromedp.ByQuery),
		chromedp.ScrollIntoView(box, chromedp.ByQuery),
		chromedp.Click(box, chromedp.ByQuery),
		chromedp.SetValue(box, "", chromedp.ByQuery),
		chromedp.SendKeys(box, text, chromedp.ByQuery),
		chromedp.SendKeys(box, kb.Enter, chromedp.ByQuery),
	)
	if err != nil {
		return &ports.ActorError{Op: "post", Retryable: true, Err: err}
	}
	return nil
}

// Shutdown closes the browser. Safe to call repeatedly.
func (a *Actor) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	a.browserCtx, a.cancel = nil, nil
	return nil
}

// step runs actions in browserCtx with a bounded wait. The wait also ends
// when ctx does.
func (a *Actor) step(ctx, browserCtx context.Context, name string, timeout time.Duration, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := a.run(stepCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", name, ctx.Err())
	}
	if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: element not found within %s: %w", name, timeout, err)
	}
	if browserCtx.Err() != nil {
		return fmt.Errorf("%s: %w: %v", name, domain.ErrSessionLost, err)
	}
	return fmt.Errorf("%s: %w", name, err)
}
