package node

import (
	"fmt"
	"net"
	"strings"
)

// Identity is derived once from ClientConfig and the hardware address and
// is read-only afterwards.
type Identity struct {
	ClientID       string
	PublishTopic   string
	SubscribeTopic string
	Username       string
	Password       string
}

// BuildIdentity formats every identity field and checks it against
// cfg.IdentityCapacity. The first field that does not fit is reported as a
// *CapacityError.
func BuildIdentity(cfg ClientConfig, hw net.HardwareAddr) (Identity, error) {
	capacity := cfg.IdentityCapacity
	if capacity <= 0 {
		capacity = DefaultIdentityCapacity
	}

	clientID, err := ClientIDFromHardware(hw, capacity)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{ClientID: clientID}
	fields := []struct {
		name string
		dst  *string
		val  string
	}{
		{"subscribe topic", &id.SubscribeTopic, expandTopic(cfg.SubscribeTopic, clientID, cfg)},
		{"publish topic", &id.PublishTopic, expandTopic(cfg.PublishTopic, clientID, cfg)},
		{"username", &id.Username, cfg.Username},
		{"password", &id.Password, cfg.Password},
	}
	for _, f := range fields {
		if err := fits(f.name, f.val, capacity); err != nil {
			return Identity{}, err
		}
		*f.dst = f.val
	}
	if id.PublishTopic == "" || id.SubscribeTopic == "" {
		return Identity{}, fmt.Errorf("%w: empty topic", ErrConfiguration)
	}
	return id, nil
}

// ClientIDFromHardware renders "d:" followed by six octets of hw in hex.
// For an 8-byte EUI-64 the two filler octets in the middle are skipped.
func ClientIDFromHardware(hw net.HardwareAddr, capacity int) (string, error) {
	var octets []byte
	switch len(hw) {
	case 6:
		octets = hw
	case 8:
		octets = []byte{hw[0], hw[1], hw[2], hw[5], hw[6], hw[7]}
	default:
		return "", fmt.Errorf("%w: hardware address %q must be 6 or 8 bytes", ErrConfiguration, hw.String())
	}
	id := fmt.Sprintf("d:%02x%02x%02x%02x%02x%02x", octets[0], octets[1], octets[2], octets[3], octets[4], octets[5])
	if err := fits("client id", id, capacity); err != nil {
		return "", err
	}
	return id, nil
}

func expandTopic(tmpl, clientID string, cfg ClientConfig) string {
	return strings.NewReplacer(
		"{client}", clientID,
		"{event}", cfg.EventTypeID,
		"{cmd}", cfg.SubscribeCommandType,
	).Replace(tmpl)
}

func fits(field, val string, capacity int) error {
	if len(val) > capacity {
		return &CapacityError{Field: field, Length: len(val), Capacity: capacity}
	}
	return nil
}
