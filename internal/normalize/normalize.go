// Package normalize flattens the channel provider's nested webhook envelope
// (entries → changes → value → messages) into a list of NormalizedMessage.
package normalize

import "encoding/json"

// Envelope is the provider-specific webhook payload
type Envelope struct {
	Object string  `json:"object,omitempty"`
	Entry  []Entry `json:"entry"`
}

// Entry is one webhook entry
type Entry struct {
	ID      string   `json:"id,omitempty"`
	Changes []Change `json:"changes"`
}

// Change is one change within an entry
type Change struct {
	Field string       `json:"field,omitempty"`
	Value *ChangeValue `json:"value"`
}

// ChangeValue carries the messages and channel metadata of a change
type ChangeValue struct {
	Metadata *ChannelMetadata `json:"metadata,omitempty"`
	Messages []Message        `json:"messages"`
}

// ChannelMetadata identifies the receiving channel
type ChannelMetadata struct {
	PhoneNumberID      string `json:"phone_number_id,omitempty"`
	DisplayPhoneNumber string `json:"display_phone_number,omitempty"`
}

// Message is one inbound message in provider shape
type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Text        *TextBody    `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Image       *MediaBody   `json:"image,omitempty"`
	Document    *MediaBody   `json:"document,omitempty"`
}

// TextBody is the body of a text message
type TextBody struct {
	Body string `json:"body"`
}

// Interactive holds button or list reply payloads
type Interactive struct {
	Type        string `json:"type,omitempty"`
	ButtonReply *Reply `json:"button_reply,omitempty"`
	ListReply   *Reply `json:"list_reply,omitempty"`
}

// Reply is a button or list selection
type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// MediaBody is an image or document attachment
type MediaBody struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

// NormalizedMessage is one inbound message with the provider shape stripped
// away. It is created once during normalization and never mutated.
type NormalizedMessage struct {
	From             string            `json:"from"`
	MessageID        string            `json:"messageId"`
	Type             string            `json:"type"`
	Text             string            `json:"text,omitempty"`
	KeywordCandidate string            `json:"keywordCandidate,omitempty"`
	Interactive      *InteractiveReply `json:"interactive,omitempty"`
	Media            *MediaRef         `json:"media,omitempty"`
	Metadata         MessageMetadata   `json:"metadata"`
}

// InteractiveReply is a normalized button or list reply
type InteractiveReply struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// MediaRef is a normalized media attachment reference
type MediaRef struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

// MessageMetadata carries the receiving channel identifiers
type MessageMetadata struct {
	ChannelID     string `json:"channelId,omitempty"`
	DisplayNumber string `json:"displayNumber,omitempty"`
}

// Parse decodes a raw envelope
func Parse(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Normalize flattens an envelope into an ordered list of normalized messages.
// An envelope containing zero messages yields an empty list; this is a valid,
// non-error outcome.
func Normalize(env *Envelope) []NormalizedMessage {
	var normalized []NormalizedMessage
	if env == nil {
		return normalized
	}

	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if change.Value == nil {
				continue
			}

			var metadata MessageMetadata
			if change.Value.Metadata != nil {
				metadata = MessageMetadata{
					ChannelID:     change.Value.Metadata.PhoneNumberID,
					DisplayNumber: change.Value.Metadata.DisplayPhoneNumber,
				}
			}

			for _, msg := range change.Value.Messages {
				normalized = append(normalized, normalizeMessage(msg, metadata))
			}
		}
	}

	return normalized
}

func normalizeMessage(msg Message, metadata MessageMetadata) NormalizedMessage {
	out := NormalizedMessage{
		From:      msg.From,
		MessageID: msg.ID,
		Type:      msg.Type,
		Metadata:  metadata,
	}

	switch msg.Type {
	case "text":
		if msg.Text != nil && msg.Text.Body != "" {
			out.Text = msg.Text.Body
			out.KeywordCandidate = msg.Text.Body
		}

	case "interactive":
		if msg.Interactive == nil {
			break
		}
		if reply := msg.Interactive.ButtonReply; reply != nil {
			out.Interactive = &InteractiveReply{Type: "button_reply", ID: reply.ID, Title: reply.Title}
			out.KeywordCandidate = reply.ID
		} else if reply := msg.Interactive.ListReply; reply != nil {
			out.Interactive = &InteractiveReply{Type: "list_reply", ID: reply.ID, Title: reply.Title}
			out.KeywordCandidate = reply.ID
		}

	case "image":
		if msg.Image != nil {
			out.Media = &MediaRef{Type: "image", ID: msg.Image.ID, Caption: msg.Image.Caption}
			if msg.Image.Caption != "" {
				out.KeywordCandidate = msg.Image.Caption
			}
		}

	case "document":
		if msg.Document != nil {
			out.Media = &MediaRef{Type: "document", ID: msg.Document.ID, Caption: msg.Document.Caption}
			if msg.Document.Caption != "" {
				out.KeywordCandidate = msg.Document.Caption
			}
		}
	}

	return out
}
