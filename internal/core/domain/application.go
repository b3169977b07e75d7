package domain

// Channel is a named redirect target registered under an application.
type Channel struct {
	ChannelID string `json:"channel_id"`
	ReturnURL string `json:"return_url"`
}

// Application is a downstream client application. Provisioned out-of-band and
// read-only from the broker's perspective.
type Application struct {
	ID          string
	Name        string
	Description string
	Channels    []Channel
}

// Channel returns the channel with the supplied id, if registered.
func (a Application) Channel(channelID string) (Channel, bool) {
	for _, ch := range a.Channels {
		if ch.ChannelID == channelID {
			return ch, true
		}
	}
	return Channel{}, false
}
