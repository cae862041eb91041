//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"testing"

	"tovala-go-home/internal/store"
)

func TestDiscoveryRemainingSensor(t *testing.T) {
	oven := &store.Oven{ID: "AB12CD", Account: "home", Name: "Kitchen Oven"}

	msgs := buildDiscovery(oven, "tovala")
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}

	var remaining *discoveryMsg
	for i := range msgs {
		if msgs[i].Topic == "homeassistant/sensor/tovala_ab12cd/remaining/config" {
			remaining = &msgs[i]
			break
		}
	}
	if remaining == nil {
		t.Fatal("remaining sensor discovery not found")
	}

	var payload haDiscovery
	if err := json.Unmarshal(remaining.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	if payload.Name != "Kitchen Oven Time Remaining" {
		t.Errorf("name = %q", payload.Name)
	}
	if payload.UniqueID != "tovala_ab12cd_remaining" {
		t.Errorf("unique_id = %q", payload.UniqueID)
	}
	if payload.UnitOfMeasurement != "s" {
		t.Errorf("unit = %q, want s", payload.UnitOfMeasurement)
	}
	if payload.DeviceClass != "duration" {
		t.Errorf("device_class = %q", payload.DeviceClass)
	}
	if payload.StateTopic != "tovala/kitchen_oven" {
		t.Errorf("state_topic = %q", payload.StateTopic)
	}
	if payload.AvailabilityTopic != "tovala/bridge/state" {
		t.Errorf("availability_topic = %q", payload.AvailabilityTopic)
	}
	if payload.ValueTemplate != "{{ value_json.remaining_seconds }}" {
		t.Errorf("value_template = %q", payload.ValueTemplate)
	}
	if payload.Device.Manufacturer != "Tovala" {
		t.Errorf("device.manufacturer = %q", payload.Device.Manufacturer)
	}
}

func TestDiscoveryBinarySensor(t *testing.T) {
	oven := &store.Oven{ID: "AB12CD"}

	msgs := buildDiscovery(oven, "tovala")
	var cooking *discoveryMsg
	for i := range msgs {
		if msgs[i].Topic == "homeassistant/binary_sensor/tovala_ab12cd/cooking/config" {
			cooking = &msgs[i]
			break
		}
	}
	if cooking == nil {
		t.Fatal("cooking binary sensor discovery not found")
	}

	var payload haDiscovery
	if err := json.Unmarshal(cooking.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.DeviceClass != "running" {
		t.Errorf("device_class = %q, want running", payload.DeviceClass)
	}
	if payload.PayloadOn != "ON" || payload.PayloadOff != "OFF" {
		t.Errorf("payloads = %q/%q", payload.PayloadOn, payload.PayloadOff)
	}
	// Unnamed oven falls back to an id-derived topic and display name.
	if payload.StateTopic != "tovala/ab12cd" {
		t.Errorf("state_topic = %q", payload.StateTopic)
	}
	if payload.Name != "Tovala Oven AB12CD Timer Running" {
		t.Errorf("name = %q", payload.Name)
	}
}

func TestRemoveDiscoveryCoversAllComponents(t *testing.T) {
	oven := &store.Oven{ID: "gone1"}

	built := buildDiscovery(oven, "tovala")
	removed := buildRemoveDiscovery(oven)

	if len(removed) != len(built) {
		t.Fatalf("remove messages = %d, built = %d", len(removed), len(built))
	}

	builtTopics := make(map[string]bool, len(built))
	for _, m := range built {
		builtTopics[m.Topic] = true
	}
	for _, m := range removed {
		if !builtTopics[m.Topic] {
			t.Errorf("removal topic %q has no matching discovery", m.Topic)
		}
		if len(m.Payload) != 0 {
			t.Errorf("removal payload for %q not empty", m.Topic)
		}
	}
}

func TestSanitizeTopic(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Kitchen Oven", "kitchen_oven"},
		{"oven#2 (beta)", "oven_2__beta_"},
		{"simple", "simple"},
		{"ÜmlautOven", "_mlautoven"},
	}
	for _, tt := range tests {
		if got := sanitizeTopic(tt.in); got != tt.want {
			t.Errorf("sanitizeTopic(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
