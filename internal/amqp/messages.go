package amqp

import (
	"encoding/json"
	"fmt"

	"fintrack/internal/remote"
)

func encodeChangeEvent(ev remote.ChangeEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func decodeChangeEvent(data []byte) (remote.ChangeEvent, error) {
	var ev remote.ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return remote.ChangeEvent{}, err
	}
	if ev.Op != remote.OpInsert && ev.Op != remote.OpUpdate && ev.Op != remote.OpDelete {
		return remote.ChangeEvent{}, fmt.Errorf("unknown change op %q", ev.Op)
	}
	return ev, nil
}
