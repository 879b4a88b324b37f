package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"artai-go/internal/api"
	"artai-go/internal/artai"
	"artai-go/internal/config"
	"artai-go/internal/source"
	"artai-go/internal/tokenstore"
)

// ArtaiApp is the application layer between the CLI and the artai core.
// It constructs all dependencies from config, exposes the operations that
// take raw upload references, and logs the operation outcome on Close.
type ArtaiApp struct {
	cfg     *config.Config
	store   artai.TokenStore
	client  *api.Client
	cache   *artai.Cache
	session *artai.SessionManager
	service *artai.Service
	opener  *source.Opener
	op      *Operation
	clock   artai.Clock
	logger  artai.Logger
	logFile *os.File
}

// NewArtaiApp creates a fully wired ArtaiApp from the given config.
// operation identifies the CLI command being run (e.g. "Login", "ListImages").
// The caller must call Close when done.
func NewArtaiApp(cfg *config.Config, operation, parameters string) (*ArtaiApp, error) {
	return newArtaiApp(cfg, operation, parameters, os.Stderr)
}

func newArtaiApp(cfg *config.Config, operation, parameters string, stderr io.Writer) (*ArtaiApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clock := artai.RealClock{}
	op := NewOperation(operation, parameters, clock, artai.UUIDGenerator{})
	l, logFile, err := newLogger(cfg.LogDir, cfg.LogLevel, op.ID, stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}

	store, err := tokenstore.NewTokenStoreFromConfig(cfg.TokenStore)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating token store: %w", err)
	}

	client, err := api.NewClientFromConfig(cfg, logger)
	if err != nil {
		closeStore(store)
		logFile.Close()
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	cache := artai.NewCache(clock, logger)
	session := artai.NewSessionManager(client, store, cache, logger)
	client.SetTokenSource(session)
	service := artai.NewService(client, cache, StaleTimesFromConfig(cfg.Cache), logger)

	logger.Debug("operation started", "operation", op.Name, "parameters", op.Parameters)
	return &ArtaiApp{
		cfg:     cfg,
		store:   store,
		client:  client,
		cache:   cache,
		session: session,
		service: service,
		op:      op,
		clock:   clock,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// StaleTimesFromConfig converts the [cache] section to stale times.
func StaleTimesFromConfig(c config.CacheConfig) artai.StaleTimes {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return artai.StaleTimes{
		Images:          sec(c.ImagesSeconds),
		Image:           sec(c.ImageSeconds),
		Categories:      sec(c.CategoriesSeconds),
		Tags:            sec(c.TagsSeconds),
		ImageCategories: sec(c.ImageCategoriesSeconds),
		ImageHistory:    sec(c.HistorySeconds),
		ImageLikes:      sec(c.LikesSeconds),
		References:      sec(c.ReferencesSeconds),
		Sessions:        sec(c.SessionsSeconds),
	}
}

func (a *ArtaiApp) Config() *config.Config         { return a.cfg }
func (a *ArtaiApp) Session() *artai.SessionManager { return a.session }
func (a *ArtaiApp) Service() *artai.Service        { return a.service }
func (a *ArtaiApp) Client() *api.Client            { return a.client }
func (a *ArtaiApp) Operation() *Operation          { return a.op }

// NewGallery creates a gallery over the images matching q.
func (a *ArtaiApp) NewGallery(q artai.ImageQuery) *artai.Gallery {
	return artai.NewGallery(a.service, q)
}

// Bootstrap validates the persisted token, if any. The session is settled
// (authenticated or anonymous) whether or not it returns an error.
func (a *ArtaiApp) Bootstrap(ctx context.Context) error {
	return a.session.Bootstrap(ctx)
}

// RequireLogin bootstraps the session and fails unless it ends up
// authenticated. A persisted token the server rejects reads as not being
// logged in.
func (a *ArtaiApp) RequireLogin(ctx context.Context) (*artai.User, error) {
	err := a.Bootstrap(ctx)
	if u := a.session.User(); u != nil {
		return u, nil
	}
	if err != nil && !artai.IsAuthRejected(err) {
		return nil, err
	}
	return nil, artai.ErrNotAuthenticated
}

// SetOpener replaces how upload references are opened.
func (a *ArtaiApp) SetOpener(o *source.Opener) { a.opener = o }

func (a *ArtaiApp) open(ctx context.Context, ref string) (*source.File, error) {
	if a.opener == nil {
		if _, _, isS3, _ := source.ParseS3URI(ref); !isS3 {
			return source.NewOpener(nil).Open(ctx, ref)
		}
		o, err := source.NewOpenerFromConfig(ctx, a.cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("configuring upload sources: %w", err)
		}
		a.opener = o
	}
	return a.opener.Open(ctx, ref)
}

// openOptional opens ref, or returns nil when ref is empty.
func (a *ArtaiApp) openOptional(ctx context.Context, ref string) (*source.File, error) {
	if ref == "" {
		return nil, nil
	}
	return a.open(ctx, ref)
}

func uploadOf(f *source.File) *artai.Upload {
	if f == nil {
		return nil
	}
	up := f.Upload
	return &up
}

func closeAll(files ...*source.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}

// UploadImage opens ref and creates an image from it.
func (a *ArtaiApp) UploadImage(ctx context.Context, ref string, in artai.NewImage) (*artai.ImageResult, error) {
	f, err := a.open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	in.File = f.Upload
	return a.service.CreateImage(ctx, in)
}

// UpdateImage applies patch, replacing the image content with ref when ref
// is not empty.
func (a *ArtaiApp) UpdateImage(ctx context.Context, id int64, ref string, patch artai.ImagePatch) (*artai.ImageResult, error) {
	f, err := a.openOptional(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer closeAll(f)
	patch.File = uploadOf(f)
	return a.service.UpdateImage(ctx, id, patch)
}

// EditImage uploads ref as the edited version of an image.
func (a *ArtaiApp) EditImage(ctx context.Context, id int64, ref string) (*artai.ImageResult, error) {
	f, err := a.open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return a.service.EditImage(ctx, id, f.Upload)
}

// AddHistory records an action on an image, with an optional file.
func (a *ArtaiApp) AddHistory(ctx context.Context, id int64, action, ref string) (*artai.ImageHistory, error) {
	f, err := a.openOptional(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer closeAll(f)
	return a.service.AddImageHistory(ctx, id, artai.HistoryEntry{Action: action, File: uploadOf(f)})
}

// AddReference uploads ref as a reference image.
func (a *ArtaiApp) AddReference(ctx context.Context, ref, description string) (*artai.ReferenceImage, error) {
	f, err := a.open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return a.service.CreateReferenceImage(ctx, f.Upload, description)
}

// Generate requests a generated image. referenceRef and imageRef are
// optional.
func (a *ArtaiApp) Generate(ctx context.Context, req artai.GenerateRequest, referenceRef, imageRef string) (*artai.ImageResult, error) {
	ref, err := a.openOptional(ctx, referenceRef)
	if err != nil {
		return nil, err
	}
	img, err := a.openOptional(ctx, imageRef)
	if err != nil {
		closeAll(ref)
		return nil, err
	}
	defer closeAll(ref, img)
	req.Reference = uploadOf(ref)
	req.Image = uploadOf(img)
	return a.service.Generate(ctx, req)
}

// Fail marks the running operation as failed.
func (a *ArtaiApp) Fail(err error) { a.op.Fail(err) }

// Close logs the operation outcome and closes all resources.
func (a *ArtaiApp) Close() error {
	elapsed := a.clock.Now().Sub(a.op.Started)
	if a.op.Failed() {
		a.logger.Error("operation failed", "operation", a.op.Name, "duration", elapsed, "error", a.op.Err)
	} else {
		a.logger.Info("operation finished", "operation", a.op.Name, "duration", elapsed)
	}

	var errs []error
	if err := closeStore(a.store); err != nil {
		errs = append(errs, fmt.Errorf("closing token store: %w", err))
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}

func closeStore(s artai.TokenStore) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
