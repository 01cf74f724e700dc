package app

import (
	"context"

	"channelcast/internal/app/model"
	"channelcast/internal/storage"
	"channelcast/pkg/config"
)

type Lister interface {
	ListChannelUploads(ctx context.Context, channelID string) ([]model.Upload, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, videoID, basename string) error
}

type Encoder interface {
	Encode(ctx context.Context, basename string) error
}

type Store interface {
	Load() []model.Record
	Save(records []model.Record) error
}

var _ Store = (*storage.Cache)(nil)

type Service struct {
	cfg     *config.Config
	store   Store
	lister  Lister
	fetcher Fetcher
	encoder Encoder
	layout  storage.Layout
}

type ServiceOptions struct {
	Config  *config.Config
	Store   Store
	Lister  Lister
	Fetcher Fetcher
	Encoder Encoder
	Layout  storage.Layout
}

func NewService(opts ServiceOptions) *Service {
	return &Service{
		cfg:     opts.Config,
		store:   opts.Store,
		lister:  opts.Lister,
		fetcher: opts.Fetcher,
		encoder: opts.Encoder,
		layout:  opts.Layout,
	}
}

func (s *Service) Config() *config.Config { return s.cfg }
func (s *Service) Store() Store           { return s.store }
func (s *Service) Lister() Lister         { return s.lister }
func (s *Service) Fetcher() Fetcher       { return s.fetcher }
func (s *Service) Encoder() Encoder       { return s.encoder }
func (s *Service) Layout() storage.Layout { return s.layout }
