package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"crudeidle/internal/game"
)

// DefaultChannel is the NOTIFY channel and Redis pub/sub channel used to move
// updates from the worker to API processes.
const DefaultChannel = "crudeidle_game_state"

func encodeUpdate(u game.Update) ([]byte, error) {
	return json.Marshal(u)
}

func decodeUpdate(payload []byte) (game.Update, error) {
	var u game.Update
	if err := json.Unmarshal(payload, &u); err != nil {
		return u, fmt.Errorf("decode update: %w", err)
	}
	return u, nil
}

// Listener receives updates from another process and forwards them to sink.
type Listener interface {
	Run(ctx context.Context, sink game.Publisher) error
}
