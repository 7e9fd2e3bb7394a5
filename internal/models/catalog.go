package models

// Country is one record from the iptv-org countries.json dataset.
type Country struct {
	Name      string   `json:"name"`
	Code      string   `json:"code"`
	Languages []string `json:"languages"`
	Flag      string   `json:"flag"`
}

// Channel is one record from the iptv-org channels.json dataset.
type Channel struct {
	ID         string   `json:"id"` // e.g. "cnn.us"
	Name       string   `json:"name"`
	AltNames   []string `json:"alt_names"`
	Network    *string  `json:"network"`
	Owners     []string `json:"owners"`
	Country    string   `json:"country"` // ISO 3166-1 alpha-2, upper-case
	Categories []string `json:"categories"`
	IsNSFW     bool     `json:"is_nsfw"`
	Launched   *string  `json:"launched"`
	Closed     *string  `json:"closed"` // closing date, nil while on air
	ReplacedBy *string  `json:"replaced_by"`
	Website    *string  `json:"website"`
}

// IsClosed reports whether the channel has a closing date.
func (c Channel) IsClosed() bool {
	return c.Closed != nil && *c.Closed != ""
}

// Stream is one playable URL from streams.json. Channel is nil for streams
// that are not linked to any channel.
type Stream struct {
	Channel   *string `json:"channel"`
	Feed      *string `json:"feed"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Referrer  *string `json:"referrer"`
	UserAgent *string `json:"user_agent"`
	Quality   *string `json:"quality"`
}

// ChannelID returns the linked channel id or "" for channel-less streams.
func (s Stream) ChannelID() string {
	if s.Channel == nil {
		return ""
	}
	return *s.Channel
}

// Logo is one record from logos.json.
type Logo struct {
	Channel string   `json:"channel"`
	Feed    *string  `json:"feed"`
	Tags    []string `json:"tags"`
	Width   float64  `json:"width"`
	Height  float64  `json:"height"`
	Format  *string  `json:"format"`
	URL     string   `json:"url"`
}
