// Package notify posts operator notifications to Slack. The only one today
// is the gallery-complete notice, sent once when every table has locked.
package notify

import (
	"fmt"
	"sort"
	"strings"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Notifier posts to a single Slack channel.
type Notifier struct {
	client    slackClient
	channelID string
}

// Opts holds parameters for creating a Notifier.
type Opts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Notifier.
func New(opts Opts) (*Notifier, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: channel id is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.BotToken)
	}
	return &Notifier{client: client, channelID: opts.ChannelID}, nil
}

// GalleryComplete announces that every table has locked its image.
func (n *Notifier) GalleryComplete(eventName string, ready map[string]bool) error {
	tables := make([]string, 0, len(ready))
	for id := range ready {
		tables = append(tables, id)
	}
	sort.Strings(tables)

	text := fmt.Sprintf("*%s*: all %d tables have locked their images (%s). The gallery is complete.",
		eventName, len(tables), strings.Join(tables, ", "))
	_, _, err := n.client.PostMessage(n.channelID, slackapi.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("notify: post gallery complete: %w", err)
	}
	return nil
}
