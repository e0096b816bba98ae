package mqtt

import "fmt"

// Topic prefixes.
const (
	TopicPrefix       = "newsdesk"
	TopicPrefixAuth   = TopicPrefix + "/auth"
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics builds newsdesk topic names.
//
//	mqtt.Topics{}.AuthEvent("login") // newsdesk/auth/login
type Topics struct{}

// AuthEvent returns the topic for one account or session event type.
func (Topics) AuthEvent(eventType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixAuth, eventType)
}

// AllAuthEvents returns a wildcard matching every auth event topic.
func (Topics) AllAuthEvents() string {
	return TopicPrefixAuth + "/+"
}

// SystemStatus returns the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
