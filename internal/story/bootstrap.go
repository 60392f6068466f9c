package story

import (
	"storyloom/internal/logger"
	"storyloom/internal/store"
)

// RestoreSession reopens the story recorded as last active and returns
// its title. It reports false, leaving the controller idle, when no
// last-active record exists or the record points at a story missing
// from the catalog; the shell then starts from the first-run state.
func RestoreSession(controller *TurnController, chats *store.ChatStore) (string, bool) {
	title := chats.LastActive()
	if title == "" {
		logger.Debug("no last-active story, starting fresh")
		return "", false
	}
	if !chats.HasTitle(title) {
		logger.Warn("last-active story missing from catalog, starting fresh", "title", title)
		return "", false
	}
	if err := controller.LoadStory(title); err != nil {
		logger.Warn("failed to restore last-active story", "title", title, "error", err)
		return "", false
	}
	return title, true
}
