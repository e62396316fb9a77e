package poster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Discord sends announcements to a single channel through the bot REST API.
// No gateway connection is opened; message sends only need the REST session.
type Discord struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscord creates a Discord poster for channelID.
func NewDiscord(token, channelID string) (*Discord, error) {
	if token == "" || channelID == "" {
		return nil, fmt.Errorf("discord: %w: bot token and channel id are required", ErrNotConfigured)
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	return &Discord{session: session, channelID: channelID}, nil
}

// Session exposes the underlying session so callers can swap its HTTP client.
func (d *Discord) Session() *discordgo.Session { return d.session }

// Post sends text to the channel and returns the message id.
func (d *Discord) Post(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("discord: empty text")
	}
	msg, err := d.session.ChannelMessageSend(d.channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		var rest *discordgo.RESTError
		if errors.As(err, &rest) && rest.Response != nil {
			return "", &APIError{Destination: "discord", StatusCode: rest.Response.StatusCode, Body: string(rest.ResponseBody)}
		}
		return "", fmt.Errorf("failed to send Discord message: %w", err)
	}
	return msg.ID, nil
}
