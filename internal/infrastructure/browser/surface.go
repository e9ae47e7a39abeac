package browser

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"SpriteForge/internal/config"
	"SpriteForge/internal/domain"
	"SpriteForge/internal/infrastructure/parser"
	"SpriteForge/internal/ports"
)

const actionTimeout = 30 * time.Second

// Surface drives one Chrome tab through chromedp.
type Surface struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	selectors   config.SelectorConfig
	page        *parser.ChatPage
	navTimeout  time.Duration
}

var _ ports.ChatSurface = (*Surface)(nil)

// Launch starts Chrome with a persistent profile and returns the first tab.
func Launch(ctx context.Context, cfg config.BrowserConfig, sel config.SelectorConfig) (ports.ChatSurface, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("restore-last-session", false),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-popup-blocking", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		dir, err := filepath.Abs(cfg.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("resolve profile dir: %w", err)
		}
		opts = append(opts, chromedp.UserDataDir(dir))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// The first Run starts the browser and binds it to tabCtx.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	navTimeout := cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}

	return &Surface{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		selectors:   sel,
		page:        parser.NewChatPage(sel.ResultImages, sel.ResponseBlock),
		navTimeout:  navTimeout,
	}, nil
}

// Open navigates to a chat workflow and waits for the prompt input.
func (s *Surface) Open(ctx context.Context, target string) error {
	err := s.run(ctx, s.navTimeout,
		chromedp.Navigate(target),
		chromedp.WaitVisible(s.selectors.PromptInput, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	return nil
}

// UploadFile attaches path to the page's file input.
func (s *Surface) UploadFile(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve upload path: %w", err)
	}

	var present bool
	probe := fmt.Sprintf("document.querySelector(%q) !== null", s.selectors.FileInput)
	if err := s.run(ctx, actionTimeout, chromedp.Evaluate(probe, &present)); err != nil {
		return fmt.Errorf("probe file input: %w", err)
	}
	if !present {
		return &domain.StageError{Stage: "upload", Err: domain.ErrElementNotFound}
	}

	if err := s.run(ctx, actionTimeout, chromedp.SetUploadFiles(s.selectors.FileInput, []string{abs}, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("upload %s: %w", abs, err)
	}
	return nil
}

// TypePrompt types text into the rich-text prompt input.
func (s *Surface) TypePrompt(ctx context.Context, text string) error {
	if err := s.run(ctx, actionTimeout, chromedp.SendKeys(s.selectors.PromptInput, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("type prompt: %w", err)
	}
	return nil
}

// Submit presses Enter in the prompt input.
func (s *Surface) Submit(ctx context.Context) error {
	if err := s.run(ctx, actionTimeout, chromedp.SendKeys(s.selectors.PromptInput, kb.Enter, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("submit prompt: %w", err)
	}
	return nil
}

// ImageResults lists produced image URLs, resolved against the page location.
func (s *Surface) ImageResults(ctx context.Context) ([]string, error) {
	html, location, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	sources, err := s.page.ImageSources(html)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(location)
	if err != nil {
		return sources, nil
	}
	for i, src := range sources {
		if ref, err := url.Parse(src); err == nil {
			sources[i] = base.ResolveReference(ref).String()
		}
	}
	return sources, nil
}

// LatestResponse returns the text of the newest assistant message.
func (s *Surface) LatestResponse(ctx context.Context) (string, error) {
	html, _, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	return s.page.LatestResponse(html)
}

// Close shuts the tab and the browser process.
func (s *Surface) Close() error {
	err := chromedp.Cancel(s.tabCtx)
	s.cancelTab()
	s.cancelAlloc()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func (s *Surface) snapshot(ctx context.Context) (string, string, error) {
	var html, location string
	err := s.run(ctx, actionTimeout,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", "", fmt.Errorf("snapshot page: %w", err)
	}
	return html, location, nil
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (s *Surface) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}
