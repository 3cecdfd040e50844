package update

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func textUpdate(text string) tele.Update {
	return tele.Update{
		ID: 10,
		Message: &tele.Message{
			ID:     99,
			Text:   text,
			Chat:   &tele.Chat{ID: 42},
			Sender: &tele.User{ID: 7, FirstName: "Asha", Username: "asha"},
		},
	}
}

func callbackUpdate(data string) tele.Update {
	return tele.Update{
		ID: 11,
		Callback: &tele.Callback{
			ID:      "cb-1",
			Data:    data,
			Sender:  &tele.User{ID: 7},
			Message: &tele.Message{ID: 120, Chat: &tele.Chat{ID: 42}},
		},
	}
}

func TestDecodeCommands(t *testing.T) {
	cases := map[string]Kind{
		"/start":                  KindStart,
		"/help":                   KindHelp,
		"/select_language":        KindSelectLanguage,
		"/select_bot":             KindSelectPersona,
		"/start@PitaraBot":        KindStart,
		"/START extra words":      KindStart,
		"/unknown":                KindQuery,
		"tell me about elephants": KindQuery,
	}
	for text, want := range cases {
		ev := Decode(textUpdate(text))
		assert.Equal(t, want, ev.Kind, text)
		assert.Equal(t, int64(42), ev.ChatID)
		assert.Equal(t, int64(7), ev.UserID)
		assert.Equal(t, 99, ev.MessageID)
	}
}

func TestDecodeVoice(t *testing.T) {
	u := tele.Update{Message: &tele.Message{
		ID:     5,
		Chat:   &tele.Chat{ID: 42},
		Sender: &tele.User{ID: 7},
		Voice:  &tele.Voice{File: tele.File{FileID: "voice-file"}},
	}}
	ev := Decode(u)
	assert.Equal(t, KindQuery, ev.Kind)
	assert.Equal(t, "voice-file", ev.VoiceFileID)
	assert.Empty(t, ev.Text)
}

func TestDecodeUnsupportedContent(t *testing.T) {
	u := tele.Update{Message: &tele.Message{
		ID:      5,
		Chat:    &tele.Chat{ID: 42},
		Sticker: &tele.Sticker{File: tele.File{FileID: "st"}},
	}}
	assert.Equal(t, KindUnknown, Decode(u).Kind)
	assert.Equal(t, KindUnknown, Decode(tele.Update{ID: 3}).Kind)
}

func TestDecodeCallbacks(t *testing.T) {
	ev := Decode(callbackUpdate("lang_hi"))
	assert.Equal(t, KindLanguageChosen, ev.Kind)
	assert.Equal(t, "hi", ev.Payload)
	assert.Equal(t, "cb-1", ev.CallbackID)
	assert.Equal(t, 120, ev.MessageID)
	assert.True(t, ev.IsCallback())

	ev = Decode(callbackUpdate("botname_teacher"))
	assert.Equal(t, KindPersonaChosen, ev.Kind)
	assert.Equal(t, "teacher", ev.Payload)

	ev = Decode(callbackUpdate("message-liked__99"))
	assert.Equal(t, KindFeedback, ev.Kind)
	assert.Equal(t, "message-liked", ev.Subtype)
	assert.Equal(t, "99", ev.RequestID)
	assert.Equal(t, int64(42), ev.ChatID)

	ev = Decode(callbackUpdate("replymessage_liked"))
	assert.Equal(t, KindFeedbackReply, ev.Kind)
	assert.Equal(t, "liked", ev.Payload)
}

func TestDecodeCallbackPrefixesAnchored(t *testing.T) {
	for _, data := range []string{"xlang_en", "the botname_story", "message-loved__1", "message-liked__", "other"} {
		ev := Decode(callbackUpdate(data))
		assert.Equal(t, KindUnknown, ev.Kind, data)
		assert.Equal(t, "cb-1", ev.CallbackID, "unknown callbacks keep the id so they can be answered")
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "query", KindQuery.String())
	assert.Equal(t, "select_bot", KindSelectPersona.String())
	assert.Equal(t, "unknown", Kind(99).String())
	assert.Len(t, Kinds(), 9)
}

func TestUnmarshalWebhookBody(t *testing.T) {
	body := []byte(`{"update_id":5,"message":{"message_id":9,"chat":{"id":42,"type":"private"},"from":{"id":7,"first_name":"A"},"text":"/start"}}`)
	u, err := Unmarshal(body)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	ev := Decode(u)
	if ev.Kind != KindStart || ev.ChatID != 42 || ev.UserID != 7 || ev.UpdateID != 5 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	for _, body := range []string{"not json", "{}", ""} {
		_, err := Unmarshal([]byte(body))
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("body %q: err = %v", body, err)
		}
	}
}
