//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"tovala-go-home/internal/store"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/tovala_abc123/remaining/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	Device            haDevice `json:"device"`
}

// ovenDisplayName returns a display name for the oven.
func ovenDisplayName(oven *store.Oven) string {
	if oven.Name != "" {
		return oven.Name
	}
	return "Tovala Oven " + oven.ID
}

// ovenIdentifier returns the unique identifier for the HA device registry.
func ovenIdentifier(oven *store.Oven) string {
	return "tovala_" + sanitizeTopic(oven.ID)
}

// ovenTopicName returns the topic segment for an oven (name or id).
func ovenTopicName(oven *store.Oven) string {
	if oven.Name != "" {
		return sanitizeTopic(oven.Name)
	}
	return sanitizeTopic(oven.ID)
}

// sanitizeTopic lowercases and keeps only characters safe in an MQTT topic.
func sanitizeTopic(s string) string {
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, s)
}

// buildDiscovery generates the HA discovery messages for one oven: a
// remaining-time sensor, a cook-state sensor, and a "cooking" binary sensor.
func buildDiscovery(oven *store.Oven, prefix string) []discoveryMsg {
	avail := prefix + "/bridge/state"
	stateTopic := prefix + "/" + ovenTopicName(oven)
	nodeID := ovenIdentifier(oven)
	displayName := ovenDisplayName(oven)

	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: "Tovala",
		Model:        "Smart Oven",
		Name:         displayName,
	}

	return []discoveryMsg{
		{
			Topic: fmt.Sprintf("homeassistant/sensor/%s/remaining/config", nodeID),
			Payload: mustJSON(haDiscovery{
				Name:              displayName + " Time Remaining",
				UniqueID:          nodeID + "_remaining",
				StateTopic:        stateTopic,
				AvailabilityTopic: avail,
				ValueTemplate:     "{{ value_json.remaining_seconds }}",
				UnitOfMeasurement: "s",
				DeviceClass:       "duration",
				StateClass:        "measurement",
				Icon:              "mdi:timer-outline",
				Device:            haDev,
			}),
		},
		{
			Topic: fmt.Sprintf("homeassistant/sensor/%s/cook_state/config", nodeID),
			Payload: mustJSON(haDiscovery{
				Name:              displayName + " Cook State",
				UniqueID:          nodeID + "_cook_state",
				StateTopic:        stateTopic,
				AvailabilityTopic: avail,
				ValueTemplate:     "{{ value_json.state }}",
				Icon:              "mdi:toaster-oven",
				Device:            haDev,
			}),
		},
		{
			Topic: fmt.Sprintf("homeassistant/binary_sensor/%s/cooking/config", nodeID),
			Payload: mustJSON(haDiscovery{
				Name:              displayName + " Timer Running",
				UniqueID:          nodeID + "_cooking",
				StateTopic:        stateTopic,
				AvailabilityTopic: avail,
				ValueTemplate:     "{{ 'ON' if value_json.remaining_seconds > 0 else 'OFF' }}",
				DeviceClass:       "running",
				Icon:              "mdi:timer-sand",
				PayloadOn:         "ON",
				PayloadOff:        "OFF",
				Device:            haDev,
			}),
		},
	}
}

// buildRemoveDiscovery generates empty retained messages to drop an oven's
// entities from HA when its account is unloaded.
func buildRemoveDiscovery(oven *store.Oven) []discoveryMsg {
	nodeID := ovenIdentifier(oven)
	components := []struct{ comp, obj string }{
		{"sensor", "remaining"},
		{"sensor", "cook_state"},
		{"binary_sensor", "cooking"},
	}

	var msgs []discoveryMsg
	for _, c := range components {
		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("homeassistant/%s/%s/%s/config", c.comp, nodeID, c.obj),
			Payload: nil, // empty retained = delete
		})
	}
	return msgs
}
