package commands

import "github.com/m3rciful/pitarabot/core/telegram/update"

// Command describes one slash command shown in the bot menu.
type Command struct {
	Kind        update.Kind
	Description string
	Hidden      bool
}
