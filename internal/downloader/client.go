package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"github.com/sirupsen/logrus"

	"spate/internal/domain"
)

type Config struct {
	DataDir      string
	ListenPort   int
	Seed         bool
	NoUpload     bool
	TrackerList  []string
	FetchTimeout time.Duration
	HTTPClient   *http.Client
	Logger       *logrus.Logger
}

// Client is the anacrolix/torrent backed Engine.
type Client struct {
	cfg    Config
	client *torrent.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	handles map[string]*handle
	// fetched holds .torrent files downloaded by Identify for the add that follows.
	fetched map[string]*metainfo.MetaInfo
}

func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if len(cfg.TrackerList) == 0 {
		cfg.TrackerList = defaultTrackers()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.FetchTimeout}
	}
	return &Client{
		cfg:     cfg,
		handles: make(map[string]*handle),
		fetched: make(map[string]*metainfo.MetaInfo),
	}
}

func (c *Client) Start(ctx context.Context) error {
	if err := os.MkdirAll(c.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	clientConfig := torrent.NewDefaultClientConfig()
	clientConfig.DataDir = c.cfg.DataDir
	clientConfig.NoUpload = c.cfg.NoUpload
	clientConfig.Seed = c.cfg.Seed
	if c.cfg.ListenPort > 0 {
		clientConfig.ListenPort = c.cfg.ListenPort
	}

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return fmt.Errorf("create torrent client: %w", err)
	}

	c.client = client
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.cfg.Logger.Infof("torrent engine started, data dir: %s", c.cfg.DataDir)
	return nil
}

func (c *Client) Shutdown() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	for id, h := range c.handles {
		h.close()
		delete(c.handles, id)
	}
	c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
	}
	c.cfg.Logger.Info("torrent engine stopped")
}

func (c *Client) AddBySource(ctx context.Context, source string, opts domain.AddOptions) (Handle, error) {
	if c.client == nil {
		return nil, fmt.Errorf("engine not started: %w", domain.ErrEngineFailure)
	}
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("destination path is required")
	}
	spec, err := c.specFromSource(ctx, source)
	if err != nil {
		return nil, err
	}

	announce := mergeTrackers(spec.Trackers, opts.Announce)
	trackers := announce
	if !opts.Private {
		trackers = mergeTrackers(nil, announce, c.cfg.TrackerList)
	}
	spec.Trackers = [][]string{trackers}

	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}
	store := storage.NewFile(opts.Path)
	spec.Storage = store

	t, isNew, err := c.client.AddTorrentSpec(spec)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("add torrent: %v: %w", err, domain.ErrEngineFailure)
	}
	if !isNew {
		store.Close()
		if h, ok := c.Lookup(t.InfoHash().HexString()); ok {
			return h, nil
		}
	}

	h := newHandle(t, opts.Path, announce, store)
	c.track(h)
	c.cfg.Logger.WithField("info_hash", h.InfoHash()).Infof("added transfer into %s", opts.Path)
	return h, nil
}

func (c *Client) Seed(ctx context.Context, path string, opts domain.SeedOptions) (Handle, error) {
	if c.client == nil {
		return nil, fmt.Errorf("engine not started: %w", domain.ErrEngineFailure)
	}
	path = filepath.Clean(path)
	total, err := contentLength(path)
	if err != nil {
		return nil, err
	}

	info := metainfo.Info{PieceLength: metainfo.ChoosePieceLength(total)}
	if err := info.BuildFromFilePath(path); err != nil {
		return nil, fmt.Errorf("hash content: %w", err)
	}
	if opts.Private {
		private := true
		info.Private = &private
	}
	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode info: %w", err)
	}

	announce := mergeTrackers(nil, opts.CustomTrackers)
	if len(announce) == 0 && !opts.Private {
		announce = append([]string(nil), c.cfg.TrackerList...)
	}
	mi := &metainfo.MetaInfo{
		InfoBytes:    infoBytes,
		CreatedBy:    opts.CreatorLabel,
		CreationDate: time.Now().Unix(),
	}
	if len(announce) > 0 {
		mi.Announce = announce[0]
		mi.AnnounceList = [][]string{announce}
	}

	spec, err := torrent.TorrentSpecFromMetaInfoErr(mi)
	if err != nil {
		return nil, fmt.Errorf("build spec: %w", err)
	}
	if opts.Name != "" {
		spec.DisplayName = opts.Name
	}
	dir := filepath.Dir(path)
	store := storage.NewFile(dir)
	spec.Storage = store

	t, isNew, err := c.client.AddTorrentSpec(spec)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("seed torrent: %v: %w", err, domain.ErrEngineFailure)
	}
	if !isNew {
		store.Close()
		if h, ok := c.Lookup(t.InfoHash().HexString()); ok {
			return h, nil
		}
	}

	h := newHandle(t, dir, announce, store)
	h.seedMeta = mi
	h.displayName = opts.Name
	c.track(h)
	c.cfg.Logger.WithField("info_hash", h.InfoHash()).Infof("seeding %s (%s)", path, formatBytes(total))
	return h, nil
}

func (c *Client) Remove(ctx context.Context, infoHash string) error {
	c.mu.Lock()
	h, ok := c.handles[infoHash]
	if ok {
		delete(c.handles, infoHash)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("remove %s: %w", infoHash, domain.ErrNotFound)
	}

	h.t.Drop()
	h.close()
	c.cfg.Logger.WithField("info_hash", infoHash).Info("transfer dropped")
	return nil
}

func (c *Client) Lookup(infoHash string) (Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[infoHash]
	if !ok {
		return nil, false
	}
	return h, true
}

func (c *Client) track(h *handle) {
	c.mu.Lock()
	c.handles[h.InfoHash()] = h
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-c.ctx.Done():
		case <-h.dropped:
		case <-h.t.GotInfo():
			h.t.DownloadAll()
		}
	}()
}

func (c *Client) specFromSource(ctx context.Context, source string) (*torrent.TorrentSpec, error) {
	source = strings.TrimSpace(source)
	switch classifySource(source) {
	case sourceMagnet:
		spec, err := torrent.TorrentSpecFromMagnetUri(source)
		if err != nil {
			return nil, fmt.Errorf("parse magnet: %w", err)
		}
		return spec, nil
	case sourceInfoHash:
		var ih metainfo.Hash
		if err := ih.FromHexString(source); err != nil {
			return nil, fmt.Errorf("parse info hash: %w", err)
		}
		spec := &torrent.TorrentSpec{}
		spec.InfoHash = ih
		return spec, nil
	case sourceURL:
		c.mu.Lock()
		mi, ok := c.fetched[source]
		delete(c.fetched, source)
		c.mu.Unlock()
		if !ok {
			var err error
			if mi, err = c.fetchMetainfo(ctx, source); err != nil {
				return nil, err
			}
		}
		return torrent.TorrentSpecFromMetaInfoErr(mi)
	case sourceFile:
		mi, err := loadMetainfoFile(source)
		if err != nil {
			return nil, err
		}
		return torrent.TorrentSpecFromMetaInfoErr(mi)
	}
	return nil, fmt.Errorf("unsupported source %q", source)
}

// Identify resolves the identity of a source without adding it. A fetched
// .torrent is kept for the AddBySource call that follows.
func (c *Client) Identify(ctx context.Context, source string) (string, error) {
	source = strings.TrimSpace(source)
	if id, ok := ParseIdentity(source); ok {
		return id, nil
	}
	switch classifySource(source) {
	case sourceURL:
		mi, err := c.fetchMetainfo(ctx, source)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.fetched[source] = mi
		c.mu.Unlock()
		return mi.HashInfoBytes().HexString(), nil
	case sourceFile:
		mi, err := loadMetainfoFile(source)
		if err != nil {
			return "", err
		}
		return mi.HashInfoBytes().HexString(), nil
	}
	spec, err := c.specFromSource(ctx, source)
	if err != nil {
		return "", err
	}
	return spec.InfoHash.HexString(), nil
}

func loadMetainfoFile(path string) (*metainfo.MetaInfo, error) {
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load torrent file %s: %w", path, domain.ErrResourceMissing)
		}
		return nil, fmt.Errorf("load torrent file: %w", err)
	}
	return mi, nil
}

func (c *Client) fetchMetainfo(ctx context.Context, rawURL string) (*metainfo.MetaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch torrent: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch torrent: unexpected status %s", resp.Status)
	}
	mi, err := metainfo.Load(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode torrent: %w", err)
	}
	return mi, nil
}

func contentLength(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("seed %s: %w", path, domain.ErrResourceMissing)
		}
		return 0, fmt.Errorf("walk content: %w", err)
	}
	if total == 0 {
		return 0, fmt.Errorf("seed %s: no content", path)
	}
	return total, nil
}

// handle wraps a torrent added through this client.
type handle struct {
	t        *torrent.Torrent
	path     string
	announce []string
	store    storage.ClientImplCloser
	rates    *rateSampler

	seedMeta    *metainfo.MetaInfo
	displayName string

	dropped   chan struct{}
	closeOnce sync.Once
}

func newHandle(t *torrent.Torrent, path string, announce []string, store storage.ClientImplCloser) *handle {
	return &handle{
		t:        t,
		path:     path,
		announce: append([]string{}, announce...),
		store:    store,
		rates:    &rateSampler{},
		dropped:  make(chan struct{}),
	}
}

func (h *handle) close() {
	h.closeOnce.Do(func() {
		close(h.dropped)
		if h.store != nil {
			_ = h.store.Close()
		}
	})
}

func (h *handle) InfoHash() string {
	return h.t.InfoHash().HexString()
}

func (h *handle) name() string {
	if h.displayName != "" {
		return h.displayName
	}
	if h.t.Info() == nil {
		return ""
	}
	return h.t.Name()
}

func (h *handle) MagnetURI() string {
	return buildMagnet(h.t.InfoHash(), h.name(), h.announce)
}

func (h *handle) Announce() []string {
	return append([]string{}, h.announce...)
}

func (h *handle) Path() string {
	return h.path
}

func (h *handle) GotMetadata() <-chan struct{} {
	return (<-chan struct{})(h.t.GotInfo())
}

func (h *handle) Metadata() (domain.Metadata, bool) {
	info := h.t.Info()
	if info == nil {
		return domain.Metadata{}, false
	}

	mi := h.t.Metainfo()
	if h.seedMeta != nil {
		mi = *h.seedMeta
	}
	var blob bytes.Buffer
	if err := mi.Write(&blob); err != nil {
		blob.Reset()
	}

	total := info.TotalLength()
	md := domain.Metadata{
		Name:            h.name(),
		Length:          total,
		PieceLength:     info.PieceLength,
		LastPieceLength: lastPieceLength(total, info.PieceLength),
		Private:         info.Private != nil && *info.Private,
		CreatedBy:       mi.CreatedBy,
		TorrentFile:     blob.Bytes(),
	}
	return md, true
}

func (h *handle) Stats() domain.Stats {
	st := h.t.Stats()
	completed := h.t.BytesCompleted()
	uploaded := st.BytesWrittenData.Int64()
	downRate, upRate := h.rates.sample(time.Now(), st.BytesReadUsefulData.Int64(), uploaded)

	remaining := int64(-1)
	if h.t.Info() != nil {
		remaining = estimateRemaining(h.t.BytesMissing(), downRate)
	}
	return domain.Stats{
		Downloaded:    completed,
		Uploaded:      uploaded,
		DownloadSpeed: downRate,
		UploadSpeed:   upRate,
		NumPeers:      st.ActivePeers,
		TimeRemaining: remaining,
	}
}

var _ Engine = (*Client)(nil)
