package update

import (
	"encoding/json"
	"fmt"

	tele "gopkg.in/telebot.v4"
)

// DecodeError reports a webhook body that is not a valid update.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode update: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Unmarshal parses a webhook body into a telebot update.
func Unmarshal(body []byte) (tele.Update, error) {
	var u tele.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return tele.Update{}, &DecodeError{Err: err}
	}
	if u.ID == 0 && u.Message == nil && u.Callback == nil {
		return tele.Update{}, &DecodeError{Err: fmt.Errorf("empty update")}
	}
	return u, nil
}
