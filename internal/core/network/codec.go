package network

import (
	"fmt"

	"github.com/goccy/go-json"
)

func EncodeEvent(ev NetworkEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func DecodeEvent(data []byte) (NetworkEvent, error) {
	var ev NetworkEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return NetworkEvent{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if ev.Component == "" || ev.Entity == "" {
		return NetworkEvent{}, fmt.Errorf("%w: event without component or entity", ErrInvalidFrame)
	}
	return ev, nil
}

func EncodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	for i, ev := range f.Events {
		if ev.Component == "" || ev.Entity == "" {
			return Frame{}, fmt.Errorf("%w: event %d without component or entity", ErrInvalidFrame, i)
		}
	}
	return f, nil
}

func EncodeSubscribe(req SubscribeRequest) ([]byte, error) {
	return json.Marshal(req)
}

func DecodeSubscribe(data []byte) (SubscribeRequest, error) {
	var req SubscribeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return SubscribeRequest{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return req, nil
}
