package redis

import (
	"fmt"

	"github.com/MrSnakeDoc/factsync/internal/domain"
)

const (
	// KeyPublicIP holds the latest PublicIPRecord
	KeyPublicIP = "ip.control.publicIp"
	// KeyServerTime holds the latest ServerTimeRecord
	KeyServerTime = "timestamp.servertime"
)

// KeyFor returns the store key for a fact kind.
func KeyFor(kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindPublicIP:
		return KeyPublicIP, nil
	case domain.KindServerTime:
		return KeyServerTime, nil
	default:
		return "", fmt.Errorf("no store key for kind %q", kind)
	}
}
