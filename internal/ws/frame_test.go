package ws

import "testing"

func TestRoomTopicRoundTrip(t *testing.T) {
	topic := RoomTopic("r-42")
	if topic != "topic/chat/r-42" {
		t.Errorf("RoomTopic = %q", topic)
	}
	roomID, ok := RoomFromTopic(topic)
	if !ok || roomID != "r-42" {
		t.Errorf("RoomFromTopic(%q) = %q, %v", topic, roomID, ok)
	}
}

func TestRoomFromTopicRejectsOtherTopics(t *testing.T) {
	for _, topic := range []string{"", AnnounceTopic, "topic/chat/", "topic/other/r-1"} {
		if _, ok := RoomFromTopic(topic); ok {
			t.Errorf("RoomFromTopic(%q) accepted", topic)
		}
	}
}
