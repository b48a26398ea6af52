package publish

import "nmea-bridge/internal/throttle"

type devicePayload struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

type discovery struct {
	Name             string        `json:"name"`
	UniqueID         string        `json:"unique_id"`
	StateTopic       string        `json:"state_topic"`
	AttributesTopic  string        `json:"json_attributes_topic,omitempty"`
	Availability     string        `json:"availability_topic"`
	Device           devicePayload `json:"device"`
	Icon             string        `json:"icon,omitempty"`
	Unit             string        `json:"unit_of_measurement,omitempty"`
	DeviceClass      string        `json:"device_class,omitempty"`
	DisplayPrecision *int          `json:"suggested_display_precision,omitempty"`
	SourceType       string        `json:"source_type,omitempty"`
	PayloadHome      string        `json:"payload_home,omitempty"`
	PayloadNotHome   string        `json:"payload_not_home,omitempty"`
}

func (p *Publisher) device() devicePayload {
	d := p.cfg.Device
	return devicePayload{
		Identifiers:  []string{d.Identifiers},
		Name:         d.Name,
		Manufacturer: d.Manufacturer,
		Model:        d.Model,
	}
}

func (p *Publisher) sensorDiscovery(f throttle.Field) discovery {
	d := discovery{
		Name:         f.Name,
		UniqueID:     "navnet_" + f.ID,
		StateTopic:   p.subject("sensor", f.ID, "state"),
		Availability: p.StatusSubject(),
		Device:       p.device(),
		Icon:         f.Icon,
		Unit:         f.Unit,
		DeviceClass:  f.DeviceClass,
	}
	if !f.Integer {
		prec := f.Precision
		d.DisplayPrecision = &prec
	}
	return d
}

// trackerDiscovery describes a device tracker whose state and attributes
// live under base.state and base.attributes.
func (p *Publisher) trackerDiscovery(name, uniqueID, base string) discovery {
	return discovery{
		Name:            name,
		UniqueID:        uniqueID,
		StateTopic:      base + ".state",
		AttributesTopic: base + ".attributes",
		Availability:    p.StatusSubject(),
		Device:          p.device(),
		Icon:            "mdi:ferry",
		SourceType:      "gps",
		PayloadHome:     "home",
		PayloadNotHome:  trackerState,
	}
}
