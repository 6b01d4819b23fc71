package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelopeWith(messages ...Message) *Envelope {
	return &Envelope{
		Object: "whatsapp_business_account",
		Entry: []Entry{{
			ID: "entry-1",
			Changes: []Change{{
				Field: "messages",
				Value: &ChangeValue{
					Metadata: &ChannelMetadata{
						PhoneNumberID:      "chan-1",
						DisplayPhoneNumber: "250780000000",
					},
					Messages: messages,
				},
			}},
		}},
	}
}

func TestNormalize_TextMessage(t *testing.T) {
	msgs := Normalize(envelopeWith(Message{
		From: "250780000001",
		ID:   "m1",
		Type: "text",
		Text: &TextBody{Body: "basket please"},
	}))

	require.Len(t, msgs, 1)
	assert.Equal(t, "250780000001", msgs[0].From)
	assert.Equal(t, "m1", msgs[0].MessageID)
	assert.Equal(t, "basket please", msgs[0].Text)
	assert.Equal(t, "basket please", msgs[0].KeywordCandidate)
	assert.Equal(t, "chan-1", msgs[0].Metadata.ChannelID)
	assert.Equal(t, "250780000000", msgs[0].Metadata.DisplayNumber)
}

func TestNormalize_ButtonReply(t *testing.T) {
	msgs := Normalize(envelopeWith(Message{
		From: "s", ID: "m2", Type: "interactive",
		Interactive: &Interactive{ButtonReply: &Reply{ID: "wallet", Title: "My Wallet"}},
	}))

	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Interactive)
	assert.Equal(t, "button_reply", msgs[0].Interactive.Type)
	assert.Equal(t, "wallet", msgs[0].Interactive.ID)
	assert.Equal(t, "My Wallet", msgs[0].Interactive.Title)
	assert.Equal(t, "wallet", msgs[0].KeywordCandidate)
}

func TestNormalize_ListReply(t *testing.T) {
	msgs := Normalize(envelopeWith(Message{
		From: "s", ID: "m3", Type: "interactive",
		Interactive: &Interactive{ListReply: &Reply{ID: "insurance_claim", Title: "File a claim"}},
	}))

	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Interactive)
	assert.Equal(t, "list_reply", msgs[0].Interactive.Type)
	assert.Equal(t, "insurance_claim", msgs[0].KeywordCandidate)
}

func TestNormalize_ImageWithCaption(t *testing.T) {
	msgs := Normalize(envelopeWith(Message{
		From: "s", ID: "m4", Type: "image",
		Image: &MediaBody{ID: "media-1", Caption: "receipt"},
	}))

	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Media)
	assert.Equal(t, "image", msgs[0].Media.Type)
	assert.Equal(t, "receipt", msgs[0].Media.Caption)
	assert.Equal(t, "receipt", msgs[0].KeywordCandidate)
}

func TestNormalize_DocumentWithoutCaption(t *testing.T) {
	msgs := Normalize(envelopeWith(Message{
		From: "s", ID: "m5", Type: "document",
		Document: &MediaBody{ID: "media-2"},
	}))

	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Media)
	assert.Equal(t, "document", msgs[0].Media.Type)
	assert.Empty(t, msgs[0].KeywordCandidate)
}

func TestNormalize_UnknownTypeKeepsIdentity(t *testing.T) {
	msgs := Normalize(envelopeWith(Message{From: "s", ID: "m6", Type: "audio"}))

	require.Len(t, msgs, 1)
	assert.Equal(t, "m6", msgs[0].MessageID)
	assert.Equal(t, "audio", msgs[0].Type)
	assert.Empty(t, msgs[0].KeywordCandidate)
	assert.Nil(t, msgs[0].Media)
}

func TestNormalize_EmptyEnvelope(t *testing.T) {
	assert.Empty(t, Normalize(&Envelope{}))
	assert.Empty(t, Normalize(nil))
	assert.Empty(t, Normalize(&Envelope{Entry: []Entry{{Changes: []Change{{Value: nil}}}}}))
}

func TestNormalize_MultipleMessagesPreserveOrder(t *testing.T) {
	msgs := Normalize(envelopeWith(
		Message{From: "s", ID: "m7", Type: "text", Text: &TextBody{Body: "one"}},
		Message{From: "s", ID: "m8", Type: "text", Text: &TextBody{Body: "two"}},
	))

	require.Len(t, msgs, 2)
	assert.Equal(t, "m7", msgs[0].MessageID)
	assert.Equal(t, "m8", msgs[1].MessageID)
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	assert.Error(t, err)
}
