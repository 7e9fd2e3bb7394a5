package catalog

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/voyagen/primecast/internal/models"
)

// Snapshot is one consistent, read-only copy of the upstream datasets plus
// lookup indices. Callers must not mutate it.
type Snapshot struct {
	Countries []models.Country
	Channels  []models.Channel
	Streams   []models.Stream
	Logos     []models.Logo
	FetchedAt time.Time

	streamsByChannel map[string][]models.Stream
	logoByChannel    map[string]string
}

// NewSnapshot builds indices over the given datasets. Countries are sorted by
// name. Streams without a channel are dropped from the per-channel index.
func NewSnapshot(countries []models.Country, channels []models.Channel, streams []models.Stream, logos []models.Logo, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		Countries:        slices.Clone(countries),
		Channels:         channels,
		Streams:          streams,
		Logos:            logos,
		FetchedAt:        fetchedAt,
		streamsByChannel: make(map[string][]models.Stream),
		logoByChannel:    make(map[string]string),
	}
	col := collate.New(language.Und, collate.IgnoreCase)
	slices.SortStableFunc(s.Countries, func(a, b models.Country) int {
		return col.CompareString(a.Name, b.Name)
	})
	for _, st := range streams {
		if id := st.ChannelID(); id != "" {
			s.streamsByChannel[id] = append(s.streamsByChannel[id], st)
		}
	}
	for _, l := range logos {
		if _, ok := s.logoByChannel[l.Channel]; !ok && l.URL != "" {
			s.logoByChannel[l.Channel] = l.URL
		}
	}
	return s
}

// decodeSnapshot parses raw dataset JSON keyed by dataset name.
func decodeSnapshot(raw map[string][]byte, fetchedAt time.Time) (*Snapshot, error) {
	var (
		countries []models.Country
		channels  []models.Channel
		streams   []models.Stream
		logos     []models.Logo
	)
	targets := map[string]any{
		DatasetCountries: &countries,
		DatasetChannels:  &channels,
		DatasetStreams:   &streams,
		DatasetLogos:     &logos,
	}
	for name, dst := range targets {
		data, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("%s: missing dataset", name)
		}
		if err := json.Unmarshal(data, dst); err != nil {
			return nil, fmt.Errorf("%s: parse: %w", name, err)
		}
	}
	return NewSnapshot(countries, channels, streams, logos, fetchedAt), nil
}

// StreamsFor returns the streams of a channel in catalog order.
func (s *Snapshot) StreamsFor(channelID string) []models.Stream {
	return s.streamsByChannel[channelID]
}

// LogoFor returns the first logo URL of a channel, or "".
func (s *Snapshot) LogoFor(channelID string) string {
	return s.logoByChannel[channelID]
}

// ChannelByID looks a channel up by its iptv-org id.
func (s *Snapshot) ChannelByID(id string) (models.Channel, bool) {
	for _, ch := range s.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return models.Channel{}, false
}

// CountryByCode looks a country up by its ISO code, ignoring case.
func (s *Snapshot) CountryByCode(code string) (models.Country, bool) {
	for _, c := range s.Countries {
		if strings.EqualFold(c.Code, code) {
			return c, true
		}
	}
	return models.Country{}, false
}

// ChannelsForCountry returns the watchable channels of a country sorted by
// name: closed, NSFW and streamless channels are excluded.
func (s *Snapshot) ChannelsForCountry(code string) []models.Channel {
	var out []models.Channel
	for _, ch := range s.Channels {
		if !strings.EqualFold(ch.Country, code) || ch.IsClosed() || ch.IsNSFW {
			continue
		}
		if len(s.streamsByChannel[ch.ID]) == 0 {
			continue
		}
		out = append(out, ch)
	}
	col := collate.New(language.Und, collate.IgnoreCase)
	slices.SortStableFunc(out, func(a, b models.Channel) int {
		return col.CompareString(a.Name, b.Name)
	})
	return out
}

// FilterCountries keeps countries whose name or code contains term.
func FilterCountries(countries []models.Country, term string) []models.Country {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return countries
	}
	var out []models.Country
	for _, c := range countries {
		if strings.Contains(strings.ToLower(c.Name), term) || strings.Contains(strings.ToLower(c.Code), term) {
			out = append(out, c)
		}
	}
	return out
}

// MatchesChannel reports whether the channel name or one of its alternative
// names contains term, ignoring case. An empty term matches everything.
func MatchesChannel(ch models.Channel, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(ch.Name), term) {
		return true
	}
	for _, n := range ch.AltNames {
		if strings.Contains(strings.ToLower(n), term) {
			return true
		}
	}
	return false
}
