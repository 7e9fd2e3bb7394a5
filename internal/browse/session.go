// Package browse holds the per-visitor navigation state: home, country list,
// channel list and player. Entering a country starts a background probe
// session whose progress is folded into the channel listing.
package browse

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voyagen/primecast/internal/catalog"
	"github.com/voyagen/primecast/internal/log"
	"github.com/voyagen/primecast/internal/metrics"
	"github.com/voyagen/primecast/internal/models"
	"github.com/voyagen/primecast/internal/playback"
	"github.com/voyagen/primecast/internal/probe"
)

// View is the screen a session is on.
type View string

const (
	ViewHome      View = "home"
	ViewCountries View = "countries"
	ViewChannels  View = "channels"
	ViewPlayer    View = "player"
)

// Page errors shown to the visitor. Both are retryable.
const (
	MsgLoadCountries = "Failed to load countries. Please try again."
	MsgLoadChannels  = "Failed to load channels. Please try again."
)

var (
	ErrUnknownCountry = errors.New("unknown country")
	ErrUnknownChannel = errors.New("channel not listed")
	ErrNoStreams      = errors.New("channel has no streams")
	ErrNotPlaying     = errors.New("no channel is playing")
	ErrSessionClosed  = errors.New("browse session closed")
)

// CatalogProvider returns the current catalog datasets.
type CatalogProvider interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
}

// ProbeRunner reports channel reachability batch by batch.
type ProbeRunner interface {
	ProbeOnline(ctx context.Context, channels []models.Channel, streams []models.Stream) iter.Seq[probe.Update]
}

// Progress of the current probe session.
type Progress struct {
	Total     int  `json:"total"`
	Checked   int  `json:"checked"`
	Online    int  `json:"online"`
	Cancelled bool `json:"cancelled"`
}

// Session is one visitor's browse state. All methods are safe for concurrent
// use.
type Session struct {
	id      string
	catalog CatalogProvider
	prober  ProbeRunner
	logger  zerolog.Logger

	nav    sync.Mutex // serialises operations that start or stop probing
	closed bool       // guarded by nav

	mu        sync.Mutex
	view      View
	search    string
	err       string
	countries []models.Country
	snap      *catalog.Snapshot
	country   *models.Country
	channels  []models.Channel
	online    map[string]bool
	progress  Progress
	checking  bool
	channel   *models.Channel
	player    *playback.Controller
	lastSeen  time.Time

	probeGen    uint64
	probeCancel context.CancelFunc
	probeDone   chan struct{}
}

// NewSession returns a session on the home view.
func NewSession(id string, cat CatalogProvider, prober ProbeRunner) *Session {
	return &Session{
		id:       id,
		catalog:  cat,
		prober:   prober,
		logger:   log.WithComponent("browse").With().Str("session", id).Logger(),
		view:     ViewHome,
		online:   map[string]bool{},
		lastSeen: time.Now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// ShowCountries loads the country list and switches to it. On failure the view
// is left unchanged and the page error is set.
func (s *Session) ShowCountries(ctx context.Context) ([]models.Country, error) {
	snap, err := s.catalog.Snapshot(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.err = MsgLoadCountries
		s.logger.Warn().Err(err).Msg("load countries")
		return nil, err
	}
	s.snap = snap
	s.countries = snap.Countries
	s.view = ViewCountries
	s.search = ""
	s.err = ""
	return s.countries, nil
}

// Countries filters the loaded country list by name or code.
func (s *Session) Countries(search string) []models.Country {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = search
	return catalog.FilterCountries(s.countries, search)
}

// SelectCountry lists the watchable channels of a country and starts probing
// them in the background. Any running probe session is cancelled and has
// exited before the new one starts.
func (s *Session) SelectCountry(ctx context.Context, code string) error {
	s.nav.Lock()
	defer s.nav.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.stopProbe()

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		s.mu.Lock()
		s.err = MsgLoadChannels
		s.mu.Unlock()
		s.logger.Warn().Err(err).Str("country", code).Msg("load channels")
		return err
	}
	country, ok := snap.CountryByCode(code)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCountry, code)
	}
	channels := snap.ChannelsForCountry(country.Code)
	var streams []models.Stream
	for _, ch := range channels {
		streams = append(streams, snap.StreamsFor(ch.ID)...)
	}

	s.mu.Lock()
	s.snap = snap
	s.country = &country
	s.channels = channels
	s.online = map[string]bool{}
	s.progress = Progress{Total: len(channels)}
	s.checking = true
	s.channel = nil
	s.player = nil
	s.search = ""
	s.err = ""
	s.view = ViewChannels
	s.probeGen++
	gen := s.probeGen
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.probeCancel = cancel
	s.probeDone = done
	s.mu.Unlock()

	s.logger.Info().Str("country", country.Code).Int("channels", len(channels)).Msg("probe session started")
	go s.runProbe(pctx, gen, done, channels, streams)
	return nil
}

func (s *Session) runProbe(ctx context.Context, gen uint64, done chan struct{}, channels []models.Channel, streams []models.Stream) {
	defer close(done)
	metrics.ProbeSessionStarted()

	for u := range s.prober.ProbeOnline(ctx, channels, streams) {
		s.mu.Lock()
		if s.probeGen == gen {
			s.progress.Checked = u.Checked
			s.progress.Total = u.Total
			s.progress.Online = u.Online
			online := make(map[string]bool, len(u.OnlineIDs))
			for _, id := range u.OnlineIDs {
				online[id] = true
			}
			s.online = online
		}
		s.mu.Unlock()
	}

	cancelled := ctx.Err() != nil
	s.mu.Lock()
	if s.probeGen == gen {
		s.checking = false
		s.progress.Cancelled = cancelled
	}
	progress := s.progress
	s.mu.Unlock()

	metrics.ProbeSessionEnded(cancelled)
	s.logger.Info().
		Bool("cancelled", cancelled).
		Int("checked", progress.Checked).
		Int("online", progress.Online).
		Msg("probe session ended")
}

// stopProbe cancels the running probe session, if any, and waits for its
// goroutine to exit. Caller must hold nav but not mu.
func (s *Session) stopProbe() {
	s.mu.Lock()
	cancel, done := s.probeCancel, s.probeDone
	s.probeCancel, s.probeDone = nil, nil
	if cancel != nil {
		s.probeGen++
		s.checking = false
		s.progress.Cancelled = s.progress.Checked < s.progress.Total
	}
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SkipChecking stops probing and shows the current results.
func (s *Session) SkipChecking() {
	s.nav.Lock()
	defer s.nav.Unlock()
	s.stopProbe()
}

// ChannelEntry is one row of the channel listing.
type ChannelEntry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Network     *string  `json:"network,omitempty"`
	Categories  []string `json:"categories"`
	Logo        string   `json:"logo,omitempty"`
	StreamCount int      `json:"stream_count"`
	Online      bool     `json:"online"`
}

// ChannelList is the channel view of a session.
type ChannelList struct {
	Country  *models.Country `json:"country"`
	Checking bool            `json:"checking"`
	Progress Progress        `json:"progress"`
	Channels []ChannelEntry  `json:"channels"`
	Hidden   int             `json:"hidden"` // offline channels left out
	Error    string          `json:"error,omitempty"`
}

// Channels returns the channel listing filtered by search. While probing,
// every channel is listed. Afterwards only channels confirmed online are
// shown, unless none were confirmed, in which case all are shown.
func (s *Session) Channels(search string) ChannelList {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = search

	list := ChannelList{
		Country:  s.country,
		Checking: s.checking,
		Progress: s.progress,
		Channels: []ChannelEntry{},
		Error:    s.err,
	}
	onlyOnline := !s.checking && len(s.online) > 0
	for _, ch := range s.channels {
		if !catalog.MatchesChannel(ch, search) {
			continue
		}
		online := s.online[ch.ID]
		if onlyOnline && !online {
			list.Hidden++
			continue
		}
		e := ChannelEntry{
			ID:         ch.ID,
			Name:       ch.Name,
			Network:    ch.Network,
			Categories: ch.Categories,
			Online:     online,
		}
		if s.snap != nil {
			e.Logo = s.snap.LogoFor(ch.ID)
			e.StreamCount = len(s.snap.StreamsFor(ch.ID))
		}
		list.Channels = append(list.Channels, e)
	}
	return list
}

// SelectChannel opens the player on the channel's first stream.
func (s *Session) SelectChannel(id string) (playback.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *models.Channel
	for i := range s.channels {
		if s.channels[i].ID == id {
			found = &s.channels[i]
			break
		}
	}
	if found == nil || s.snap == nil {
		return playback.State{}, fmt.Errorf("%w: %s", ErrUnknownChannel, id)
	}
	streams := s.snap.StreamsFor(id)
	if len(streams) == 0 {
		return playback.State{}, fmt.Errorf("%w: %s", ErrNoStreams, id)
	}
	ch := *found
	s.channel = &ch
	s.player = playback.NewController(streams)
	s.view = ViewPlayer
	s.err = ""
	return s.player.State(), nil
}

// SelectStream switches the player to an alternative stream.
func (s *Session) SelectStream(index int) (playback.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return playback.State{}, ErrNotPlaying
	}
	if err := s.player.Select(index); err != nil {
		return playback.State{}, err
	}
	s.err = ""
	return s.player.State(), nil
}

// ReportPlayback applies a client player event to the fallback policy.
func (s *Session) ReportPlayback(ev playback.Event) (playback.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return playback.Decision{}, ErrNotPlaying
	}
	d := s.player.Handle(ev)
	s.err = s.player.State().Error
	return d, nil
}

// GoBack moves one screen up. It always clears the search term and page error
// and stops probing.
func (s *Session) GoBack() View {
	s.nav.Lock()
	defer s.nav.Unlock()
	s.stopProbe()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = ""
	s.err = ""
	switch s.view {
	case ViewCountries:
		s.view = ViewHome
	case ViewChannels:
		s.view = ViewCountries
		s.country = nil
		s.channels = nil
		s.online = map[string]bool{}
		s.progress = Progress{}
	case ViewPlayer:
		s.view = ViewChannels
		s.channel = nil
		s.player = nil
	}
	return s.view
}

// Close stops any background work. Later SelectCountry calls fail with
// ErrSessionClosed.
func (s *Session) Close() {
	s.nav.Lock()
	defer s.nav.Unlock()
	s.closed = true
	s.stopProbe()
}

// State is a serialisable snapshot of a session.
type State struct {
	ID       string          `json:"id"`
	View     View            `json:"view"`
	Search   string          `json:"search"`
	Error    string          `json:"error,omitempty"`
	Country  *models.Country `json:"country,omitempty"`
	Checking bool            `json:"checking"`
	Progress Progress        `json:"progress"`
	Channel  *models.Channel `json:"channel,omitempty"`
	Stream   *models.Stream  `json:"stream,omitempty"`
	Playback *playback.State `json:"playback,omitempty"`
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		ID:       s.id,
		View:     s.view,
		Search:   s.search,
		Error:    s.err,
		Country:  s.country,
		Checking: s.checking,
		Progress: s.progress,
		Channel:  s.channel,
	}
	if s.player != nil {
		if cur, _, ok := s.player.Current(); ok {
			st.Stream = &cur
		}
		ps := s.player.State()
		st.Playback = &ps
	}
	return st
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
