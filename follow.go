package globalcss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/yacobolo/globalcss/internal/channel"
	"github.com/yacobolo/globalcss/internal/devserver"
	"github.com/yacobolo/globalcss/internal/liveswap"
)

// FollowConfig configures Follow.
type FollowConfig struct {
	PageURL  string // page served by the dev server
	Filename string // stylesheet file name, default "global.css"
	Logger   *slog.Logger
	OnSwap   func(href string)
	Client   *http.Client
}

// Follow loads a page and keeps a local copy of it in sync with the dev
// server, swapping stylesheet links the way the browser client does. When no
// live reload channel is reachable it warns once and returns nil.
func Follow(ctx context.Context, cfg FollowConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	base, err := url.Parse(cfg.PageURL)
	if err != nil {
		return fmt.Errorf("parse page url: %w", err)
	}
	doc, err := loadPage(ctx, client, base)
	if err != nil {
		return err
	}

	swapper := liveswap.New(doc, liveswap.Options{
		Filename: cfg.Filename,
		Logger:   logger,
		OnSwap:   cfg.OnSwap,
	})

	socket := base.ResolveReference(&url.URL{Path: devserver.SocketPath})
	sub, err := channel.Dial(ctx, socket.String())
	if errors.Is(err, channel.ErrChannelUnavailable) {
		logger.Warn("live reload channel unavailable, auto stylesheet reloading will not work", "error", err)
		return nil
	}
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	defer stop()

	logger.Info("following page", "url", cfg.PageURL)
	return swapper.Listen(ctx, sub)
}

func loadPage(ctx context.Context, client *http.Client, u *url.URL) (*liveswap.HTMLDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch page: %s", resp.Status)
	}
	return liveswap.ParseHTMLDocument(resp.Body, u, liveswap.HTTPLoader{Client: client})
}
